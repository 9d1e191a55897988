package events

// Evento publicado quando a parte B responde com as assinaturas dela e a
// aposta entra na escuta de atestações.
type BetActive struct {
	BetID         string `json:"bet_id"`
	OracleEventID string `json:"oracle_event_id"`
	TsUnixMs      int64  `json:"ts_unix_ms"`
}
