package events

import "time"

// Payload da DLQ de atestações: atestação recebida que não conseguiu ser
// processada (parse, decriptação ou persistência). Guarda o conteúdo cru
// pra reprocessamento manual.
type AttestationFailed struct {
	OracleEventID      string    `json:"oracle_event_id"`
	AttestationEventID string    `json:"attestation_event_id"`
	BetID              string    `json:"bet_id,omitempty"`
	Reason             string    `json:"reason"`
	Payload            string    `json:"payload"`
	Ts                 time.Time `json:"ts"`
}
