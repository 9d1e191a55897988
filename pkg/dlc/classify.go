package dlc

import (
	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/radieske/dlc-duel-platform-poc/pkg/adaptor"
)

// Side é o resultado da classificação de uma assinatura encriptada.
type Side int

const (
	// SideInvalid: não encripta assinatura nenhuma das duas mensagens, ou
	// encripta as duas ao mesmo tempo (entrada ambígua é rejeitada).
	SideInvalid Side = iota
	SideWin
	SideLose
)

func (s Side) String() string {
	switch s {
	case SideWin:
		return "win"
	case SideLose:
		return "lose"
	default:
		return "invalid"
	}
}

// IsWin facilita a conversão pro flag persistido junto da assinatura.
func (s Side) IsWin() bool { return s == SideWin }

// ClassifySignature decide qual das duas mensagens candidatas (win ou lose)
// a assinatura encriptada cobre, sob o adaptor point do outcome dado. Testa
// as duas hipóteses de forma independente; sem estado, roda uma vez por par
// (outcome, sig) submetido.
func ClassifySignature(sig *adaptor.Signature, info OracleInfo, outcome string,
	signerPub *btcec.PublicKey, winMsg, loseMsg []byte) Side {

	encKey, err := AdaptorPoint(info, outcome)
	if err != nil {
		return SideInvalid
	}

	isWin := sig.Verify(winMsg, signerPub, encKey)
	isLose := sig.Verify(loseMsg, signerPub, encKey)

	switch {
	case isWin && isLose:
		// só acontece com win e lose apontando pra mesma mensagem
		return SideInvalid
	case isWin:
		return SideWin
	case isLose:
		return SideLose
	default:
		return SideInvalid
	}
}
