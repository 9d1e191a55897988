package dto

import (
	"github.com/go-playground/validator/v10"

	"github.com/radieske/dlc-duel-platform-poc/pkg/nostr"
)

var validate = validator.New()

// CreateBetRequest abre um duelo: anúncio do oráculo em TLV (hex ou
// base64), as quatro notas de payout sem assinatura e as adaptor
// signatures da parte A, uma por outcome, em hex de 64 bytes.
type CreateBetRequest struct {
	OracleAnnouncement    string            `json:"oracle_announcement" validate:"required"`
	OracleEventID         string            `json:"oracle_event_id" validate:"required"`
	WinEvent              nostr.Event       `json:"win_event" validate:"required"`
	LoseEvent             nostr.Event       `json:"lose_event" validate:"required"`
	CounterpartyWinEvent  nostr.Event       `json:"counterparty_win_event" validate:"required"`
	CounterpartyLoseEvent nostr.Event       `json:"counterparty_lose_event" validate:"required"`
	Sigs                  map[string]string `json:"sigs" validate:"required,min=1,dive,hexadecimal,len=128"`
}

func (r *CreateBetRequest) Validate() error {
	return validate.Struct(r)
}

// AddSigsRequest é a resposta da parte B com o lote de assinaturas dela.
type AddSigsRequest struct {
	ID   string            `json:"id" validate:"required,uuid4"`
	Sigs map[string]string `json:"sigs" validate:"required,min=1,dive,hexadecimal,len=128"`
}

func (r *AddSigsRequest) Validate() error {
	return validate.Struct(r)
}

// RejectBetRequest descarta uma aposta em nome de uma das partes.
type RejectBetRequest struct {
	ID     string `json:"id" validate:"required,uuid4"`
	Pubkey string `json:"pubkey" validate:"required,hexadecimal,len=64"`
}

func (r *RejectBetRequest) Validate() error {
	return validate.Struct(r)
}
