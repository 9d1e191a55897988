package nostr

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Kinds de evento usados pela plataforma. Anúncios e atestações de oráculo
// seguem a numeração do note-duel (88/89); notas de payout são kind 1.
const (
	KindTextNote           = 1
	KindOracleAnnouncement = 88
	KindOracleAttestation  = 89
)

var (
	ErrInvalidSignature = errors.New("invalid event signature")
	ErrInvalidEventID   = errors.New("event id does not match content")
)

// Tag é uma tag NIP-01: array de strings, o primeiro elemento é o nome.
type Tag []string

// Event é um evento NIP-01. Com Sig vazio representa um evento ainda não
// assinado (unsigned); o ID é sempre derivável do conteúdo.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      []Tag  `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig,omitempty"`
}

// Serialize gera a forma canônica [0,pubkey,created_at,kind,tags,content]
// usada no cálculo do id. Sem escape de HTML pra bater com o formato NIP-01.
func (e *Event) Serialize() []byte {
	tags := e.Tags
	if tags == nil {
		tags = []Tag{}
	}
	arr := []interface{}{0, e.PubKey, e.CreatedAt, e.Kind, tags, e.Content}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(arr)
	return bytes.TrimRight(buf.Bytes(), "\n")
}

// ComputeID retorna o sha256 da serialização canônica, em hex.
func (e *Event) ComputeID() string {
	h := sha256.Sum256(e.Serialize())
	return hex.EncodeToString(h[:])
}

// IDBytes decodifica o id do evento para os 32 bytes da mensagem assinada.
func (e *Event) IDBytes() ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(e.ID)
	if err != nil || len(b) != 32 {
		return out, fmt.Errorf("invalid event id %q", e.ID)
	}
	copy(out[:], b)
	return out, nil
}

// Sign preenche ID, PubKey e Sig assinando o evento com a chave dada (BIP340).
func (e *Event) Sign(priv *btcec.PrivateKey) error {
	e.PubKey = hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))
	e.ID = e.ComputeID()

	id, err := e.IDBytes()
	if err != nil {
		return err
	}
	sig, err := schnorr.Sign(priv, id[:])
	if err != nil {
		return fmt.Errorf("sign event: %w", err)
	}
	e.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// CheckSignature valida a auto-assinatura do evento: recomputa o id e
// verifica o Schnorr contra o pubkey declarado.
func (e *Event) CheckSignature() error {
	if e.ComputeID() != e.ID {
		return ErrInvalidEventID
	}

	pubBytes, err := hex.DecodeString(e.PubKey)
	if err != nil || len(pubBytes) != 32 {
		return fmt.Errorf("invalid pubkey %q", e.PubKey)
	}
	pub, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return fmt.Errorf("parse pubkey: %w", err)
	}

	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil || len(sigBytes) != schnorr.SignatureSize {
		return ErrInvalidSignature
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return ErrInvalidSignature
	}

	id, err := e.IDBytes()
	if err != nil {
		return err
	}
	if !sig.Verify(id[:], pub) {
		return ErrInvalidSignature
	}
	return nil
}

// AddSignature completa um evento não assinado com uma assinatura pronta
// (ex.: decriptada de uma adaptor signature). Recomputa o id e só aceita a
// assinatura se ela verificar contra o pubkey do evento.
func (e *Event) AddSignature(sig *schnorr.Signature) (*Event, error) {
	signed := *e
	signed.ID = signed.ComputeID()
	signed.Sig = hex.EncodeToString(sig.Serialize())
	if err := signed.CheckSignature(); err != nil {
		return nil, err
	}
	return &signed, nil
}

// FirstTagValue retorna o valor da primeira tag com o nome dado ("" se ausente).
func (e *Event) FirstTagValue(name string) string {
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			return t[1]
		}
	}
	return ""
}
