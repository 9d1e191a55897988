package events

import "time"

// Evento emitido pelo resolver depois de liquidar uma aposta com a
// atestação do oráculo.
type BetSettled struct {
	BetID              string    `json:"bet_id"`
	OracleEventID      string    `json:"oracle_event_id"`
	Outcome            string    `json:"outcome"`
	WinOutcomeEventID  string    `json:"win_outcome_event_id,omitempty"`
	LoseOutcomeEventID string    `json:"lose_outcome_event_id,omitempty"`
	NoPayout           bool      `json:"no_payout"` // nenhuma das partes cobriu o outcome atestado
	Ts                 time.Time `json:"ts"`
}
