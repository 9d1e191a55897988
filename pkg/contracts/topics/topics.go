package topics

const (
	// Ciclo de vida das apostas
	BetCreated = "duel_bet_created"
	BetActive  = "duel_bet_active"
	BetSettled = "duel_bet_settled"

	// DLQs
	AttestationDLQ = "oracle_attestation_dlq"
)
