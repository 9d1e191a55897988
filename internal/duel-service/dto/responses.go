package dto

import "github.com/radieske/dlc-duel-platform-poc/pkg/nostr"

type CreateBetResponse struct {
	ID string `json:"id"`
}

type AddSigsResponse struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

// UserBet é uma aposta na perspectiva de quem consultou: as quatro notas
// de payout, o anúncio re-encodado em base64 e os outcomes de cada lado.
type UserBet struct {
	ID                   string      `json:"id"`
	WinA                 nostr.Event `json:"win_a"`
	LoseA                nostr.Event `json:"lose_a"`
	WinB                 nostr.Event `json:"win_b"`
	LoseB                nostr.Event `json:"lose_b"`
	OracleAnnouncement   string      `json:"oracle_announcement"`
	OracleEventID        string      `json:"oracle_event_id"`
	UserOutcomes         []string    `json:"user_outcomes"`
	CounterpartyOutcomes []string    `json:"counterparty_outcomes"`
	WinOutcomeEventID    *string     `json:"win_outcome_event_id"`
	LoseOutcomeEventID   *string     `json:"lose_outcome_event_id"`
}
