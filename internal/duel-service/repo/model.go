package repo

import "time"

// ZeroEventID é o sentinela de "liquidada sem payout": a atestação chegou
// mas nenhuma das partes tinha assinatura pro outcome atestado.
const ZeroEventID = "0000000000000000000000000000000000000000000000000000000000000000"

// Bet é o agregado persistido no Postgres. As quatro mensagens de payout
// ficam como jsonb cru (evento nostr sem assinatura); quem precisa delas
// decodifica com pkg/nostr.
type Bet struct {
	ID                 string
	OracleAnnouncement []byte // TLV do anúncio, imutável
	OracleEventID      string // id do evento de anúncio no relay, hex
	UserA              string // pubkey x-only hex
	UserB              string
	WinA               []byte
	LoseA              []byte
	WinB               []byte
	LoseB              []byte
	NeedsReply         bool
	WinOutcomeEventID  *string
	LoseOutcomeEventID *string
	CreatedAt          time.Time
}

// Settled diz se os dois lados já foram resolvidos (payout publicado ou
// sentinela de zero).
func (b *Bet) Settled() bool {
	return b.WinOutcomeEventID != nil && b.LoseOutcomeEventID != nil
}

// Sig é a assinatura encriptada que uma parte depositou pra um outcome.
type Sig struct {
	ID       int64
	BetID    string
	IsPartyA bool
	IsWin    bool
	Outcome  string
	Sig      []byte
}
