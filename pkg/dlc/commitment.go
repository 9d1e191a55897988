package dlc

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/radieske/dlc-duel-platform-poc/pkg/adaptor"
)

// OracleInfo carrega o material do anúncio necessário pra derivar adaptor
// points: a chave do oráculo e os nonces pré-comprometidos.
type OracleInfo struct {
	PubKey [32]byte
	Nonces [][32]byte
}

// AdaptorPoint deriva o ponto de encriptação do outcome dado: o ponto da
// futura assinatura do oráculo, T = R + H(R || P || sha256(outcome))*P.
// Quando o oráculo atestar o outcome, o s da atestação é exatamente o log
// discreto de T. Determinístico, função pura dos argumentos.
func AdaptorPoint(info OracleInfo, outcome string) (*btcec.PublicKey, error) {
	if len(info.Nonces) == 0 {
		return nil, fmt.Errorf("%w: announcement has no nonces", ErrMalformedCommitment)
	}

	oraclePub, err := adaptor.LiftX(info.PubKey[:])
	if err != nil {
		return nil, fmt.Errorf("%w: bad oracle pubkey: %v", ErrMalformedCommitment, err)
	}
	nonce, err := adaptor.LiftX(info.Nonces[0][:])
	if err != nil {
		return nil, fmt.Errorf("%w: bad oracle nonce: %v", ErrMalformedCommitment, err)
	}

	msg := sha256.Sum256([]byte(outcome))
	e := adaptor.Challenge(info.Nonces[0][:], info.PubKey[:], msg[:])

	// T = R + e*P
	var rj, pj, eP, tj secp256k1.JacobianPoint
	nonce.AsJacobian(&rj)
	oraclePub.AsJacobian(&pj)
	secp256k1.ScalarMultNonConst(&e, &pj, &eP)
	secp256k1.AddNonConst(&rj, &eP, &tj)
	if tj.Z.IsZero() {
		return nil, fmt.Errorf("%w: adaptor point at infinity", ErrMalformedCommitment)
	}
	tj.ToAffine()
	return secp256k1.NewPublicKey(&tj.X, &tj.Y), nil
}
