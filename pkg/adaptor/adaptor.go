// Package adaptor implementa assinaturas Schnorr encriptadas (adaptor
// signatures) compatíveis com BIP340. Uma assinatura encriptada sob um ponto
// T só vira assinatura válida pra quem conhece o log discreto t de T; quem
// tem a assinatura encriptada e a final consegue recuperar t de volta.
package adaptor

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// SignatureSize é o tamanho serializado: R'.x (32) seguido de s' (32).
const SignatureSize = 64

var (
	ErrInvalidEncoding = errors.New("invalid adaptor signature encoding")
	ErrInvalidPoint    = errors.New("invalid curve point")
	ErrNonceMismatch   = errors.New("signatures do not share a nonce")
)

// Signature é uma assinatura encriptada: o par (R'.x, s') onde
// R' = k*G + T tem Y par e s' = k + H(R'.x || P.x || m)*x.
type Signature struct {
	r secp256k1.FieldVal
	s secp256k1.ModNScalar
}

// NewSignature monta uma assinatura a partir das componentes cruas.
func NewSignature(r *secp256k1.FieldVal, s *secp256k1.ModNScalar) *Signature {
	var sig Signature
	sig.r.Set(r).Normalize()
	sig.s.Set(s)
	return &sig
}

// ParseSignature decodifica os 64 bytes de uma assinatura encriptada.
func ParseSignature(b []byte) (*Signature, error) {
	if len(b) != SignatureSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidEncoding, len(b), SignatureSize)
	}

	var sig Signature
	if overflow := sig.r.SetByteSlice(b[0:32]); overflow {
		return nil, fmt.Errorf("%w: r >= field prime", ErrInvalidEncoding)
	}
	if overflow := sig.s.SetByteSlice(b[32:64]); overflow {
		return nil, fmt.Errorf("%w: s >= group order", ErrInvalidEncoding)
	}
	return &sig, nil
}

// Serialize devolve R'.x || s'.
func (sig *Signature) Serialize() []byte {
	out := make([]byte, 0, SignatureSize)
	rb := sig.r.Bytes()
	sb := sig.s.Bytes()
	out = append(out, rb[:]...)
	out = append(out, sb[:]...)
	return out
}

// LiftX levanta uma coordenada x de 32 bytes pro ponto de Y par, como o
// BIP340 interpreta chaves x-only.
func LiftX(x []byte) (*btcec.PublicKey, error) {
	if len(x) != 32 {
		return nil, fmt.Errorf("%w: x must have 32 bytes", ErrInvalidPoint)
	}

	var fx secp256k1.FieldVal
	if overflow := fx.SetByteSlice(x); overflow {
		return nil, fmt.Errorf("%w: x >= field prime", ErrInvalidPoint)
	}

	var fy secp256k1.FieldVal
	if !secp256k1.DecompressY(&fx, false, &fy) {
		return nil, fmt.Errorf("%w: x is not on the curve", ErrInvalidPoint)
	}
	fy.Normalize()

	return secp256k1.NewPublicKey(&fx, &fy), nil
}

// Challenge calcula o scalar de desafio BIP340: H_tag(r || pubkey || msg).
func Challenge(r, pubKey, msg []byte) secp256k1.ModNScalar {
	var e secp256k1.ModNScalar
	h := chainhash.TaggedHash(chainhash.TagBIP0340Challenge, r, pubKey, msg)
	e.SetBytes((*[32]byte)(h))
	return e
}

// Sign produz a assinatura de hash encriptada sob encKey. O nonce é
// derivado de forma determinística e re-sorteado até R' = k*G + T cair com
// Y par, então a serialização fica nos mesmos 64 bytes de sempre.
func Sign(privKey *btcec.PrivateKey, encKey *btcec.PublicKey, hash []byte) (*Signature, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("message hash must have 32 bytes, got %d", len(hash))
	}
	if privKey.Key.IsZero() {
		return nil, errors.New("private key is zero")
	}

	// BIP340: a chave efetiva é a que gera o ponto de Y par
	keyScalar := privKey.Key
	pub := privKey.PubKey()
	if pub.SerializeCompressed()[0] == secp256k1.PubKeyFormatCompressedOdd {
		keyScalar.Negate()
	}
	pubBytes := schnorr.SerializePubKey(pub)

	keyBytes := keyScalar.Bytes()
	defer func() {
		for i := range keyBytes {
			keyBytes[i] = 0
		}
	}()

	// o ponto de encriptação entra na derivação do nonce pra não repetir
	// k entre adaptor points diferentes da mesma mensagem
	extra := encKey.SerializeCompressed()

	for iteration := uint32(0); ; iteration++ {
		k := secp256k1.NonceRFC6979(keyBytes[:], hash, extra, nil, iteration)
		if k.IsZero() {
			continue
		}

		// R' = k*G + T
		var kG, tj, rj secp256k1.JacobianPoint
		secp256k1.ScalarBaseMultNonConst(k, &kG)
		encKey.AsJacobian(&tj)
		secp256k1.AddNonConst(&kG, &tj, &rj)
		if rj.Z.IsZero() {
			continue
		}
		rj.ToAffine()
		if rj.Y.IsOdd() {
			continue
		}

		rBytes := rj.X.Bytes()
		e := Challenge(rBytes[:], pubBytes, hash)

		// s' = k + e*x
		e.Mul(&keyScalar)
		e.Add(k)
		k.Zero()

		sig := NewSignature(&rj.X, &e)
		if !sig.Verify(hash, pub, encKey) {
			return nil, errors.New("produced signature does not verify")
		}
		return sig, nil
	}
}

// Verify confere se sig é uma encriptação válida, sob encKey, de uma
// assinatura de hash pela chave pubKey. Vale a equação
// s'*G == R' + e*P + T, checada aqui como R' == s'*G + T - e*P.
func (sig *Signature) Verify(hash []byte, pubKey, encKey *btcec.PublicKey) bool {
	if len(hash) != 32 {
		return false
	}

	pubBytes := schnorr.SerializePubKey(pubKey)
	liftedPub, err := LiftX(pubBytes)
	if err != nil {
		return false
	}

	rBytes := sig.r.Bytes()
	e := Challenge(rBytes[:], pubBytes, hash)

	// R = s'*G + T + (-e)*P
	var sG, tj, pj, eP, sum, rj secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&sig.s, &sG)
	encKey.AsJacobian(&tj)
	secp256k1.AddNonConst(&sG, &tj, &sum)
	e.Negate()
	liftedPub.AsJacobian(&pj)
	secp256k1.ScalarMultNonConst(&e, &pj, &eP)
	secp256k1.AddNonConst(&sum, &eP, &rj)

	if rj.Z.IsZero() {
		return false
	}
	rj.ToAffine()
	if rj.Y.IsOdd() {
		return false
	}
	return rj.X.Equals(&sig.r)
}

// Decrypt completa a assinatura com o segredo t, devolvendo uma assinatura
// BIP340 comum: (R'.x, s' + t). Quem chama ainda precisa verificar o
// resultado contra a chave do signatário.
func (sig *Signature) Decrypt(secret *secp256k1.ModNScalar) *schnorr.Signature {
	s := sig.s
	s.Add(secret)
	r := sig.r
	return schnorr.NewSignature(&r, &s)
}

// RecoverSecret extrai o segredo t a partir da assinatura final publicada:
// t = s - s'. As duas assinaturas precisam compartilhar o mesmo nonce R'.
func (sig *Signature) RecoverSecret(final *schnorr.Signature) (*secp256k1.ModNScalar, error) {
	fb := final.Serialize()
	rb := sig.r.Bytes()
	if !bytes.Equal(fb[:32], rb[:]) {
		return nil, ErrNonceMismatch
	}

	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(fb[32:]); overflow {
		return nil, fmt.Errorf("%w: s >= group order", ErrInvalidEncoding)
	}

	// t = s - s'
	var neg secp256k1.ModNScalar
	neg.NegateVal(&sig.s)
	s.Add(&neg)
	if s.IsZero() {
		return nil, errors.New("recovered secret is zero")
	}
	return &s, nil
}
