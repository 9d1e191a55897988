package events

// Evento publicado no tópico "duel_bet_created" quando a parte A registra a
// aposta e fica esperando a contraparte.
type BetCreated struct {
	BetID         string   `json:"bet_id"`
	OracleEventID string   `json:"oracle_event_id"`
	UserA         string   `json:"user_a"`
	UserB         string   `json:"user_b"`
	Outcomes      []string `json:"outcomes"`
	TsUnixMs      int64    `json:"ts_unix_ms"`
}
