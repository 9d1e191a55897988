package dlc

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/radieske/dlc-duel-platform-poc/pkg/adaptor"
)

type oracleEventState struct {
	nonce    [32]byte
	k        secp256k1.ModNScalar
	outcomes []string
}

// Oracle é o lado emissor dos compromissos: anuncia eventos e depois atesta
// outcomes, guardando o nonce secreto de cada anúncio. É o coração do
// simulador de oráculo e o gerador de material dos testes.
type Oracle struct {
	priv *btcec.PrivateKey
	key  secp256k1.ModNScalar // chave efetiva (Y par)

	mu     sync.Mutex
	events map[string]*oracleEventState
}

// NewOracle cria um oráculo com a chave dada.
func NewOracle(priv *btcec.PrivateKey) *Oracle {
	key := priv.Key
	if priv.PubKey().SerializeCompressed()[0] == secp256k1.PubKeyFormatCompressedOdd {
		key.Negate()
	}
	return &Oracle{
		priv:   priv,
		key:    key,
		events: make(map[string]*oracleEventState),
	}
}

// PubKey devolve a chave x-only do oráculo.
func (o *Oracle) PubKey() [32]byte {
	var out [32]byte
	copy(out[:], schnorr.SerializePubKey(o.priv.PubKey()))
	return out
}

// Announce monta e assina o anúncio de um evento de enumeração, sorteando o
// nonce que depois sustenta a atestação.
func (o *Oracle) Announce(eventID string, outcomes []string, maturity uint32) (*OracleAnnouncement, error) {
	if len(outcomes) == 0 {
		return nil, fmt.Errorf("event %q has no outcomes", eventID)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.events[eventID]; ok {
		return nil, fmt.Errorf("event %q already announced", eventID)
	}

	// nonce aleatório, normalizado pra R de Y par
	noncePriv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	k := noncePriv.Key
	if noncePriv.PubKey().SerializeCompressed()[0] == secp256k1.PubKeyFormatCompressedOdd {
		k.Negate()
	}
	var nonce [32]byte
	copy(nonce[:], schnorr.SerializePubKey(noncePriv.PubKey()))

	ann := &OracleAnnouncement{
		OraclePubKey: o.PubKey(),
		OracleEvent: OracleEvent{
			Nonces:        [][32]byte{nonce},
			MaturityEpoch: maturity,
			Descriptor:    EnumDescriptor{Outcomes: outcomes},
			EventID:       eventID,
		},
	}

	digest := sha256.Sum256(ann.OracleEvent.serialize())
	sig, err := schnorr.Sign(o.priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign announcement: %w", err)
	}
	copy(ann.AnnouncementSignature[:], sig.Serialize())

	st := &oracleEventState{nonce: nonce, k: k}
	st.outcomes = append(st.outcomes, outcomes...)
	o.events[eventID] = st
	return ann, nil
}

// Attest assina o outcome real de um evento já anunciado. A componente s da
// assinatura devolvida é o log discreto do adaptor point daquele outcome.
func (o *Oracle) Attest(eventID, outcome string) (*OracleAttestation, error) {
	o.mu.Lock()
	st, ok := o.events[eventID]
	o.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("event %q was never announced", eventID)
	}

	known := false
	for _, candidate := range st.outcomes {
		if candidate == outcome {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("outcome %q not announced for event %q", outcome, eventID)
	}

	pub := o.PubKey()
	msg := sha256.Sum256([]byte(outcome))

	// s = k + H(R || P || m)*x
	e := adaptor.Challenge(st.nonce[:], pub[:], msg[:])
	e.Mul(&o.key)
	s := st.k
	s.Add(&e)

	var sig [64]byte
	copy(sig[:32], st.nonce[:])
	sb := s.Bytes()
	copy(sig[32:], sb[:])

	return &OracleAttestation{
		OraclePubKey: pub,
		Signatures:   [][64]byte{sig},
		Outcomes:     []string{outcome},
	}, nil
}
