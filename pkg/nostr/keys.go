package nostr

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// GenerateKey cria uma chave nova pra identidades efêmeras (simulador, testes).
func GenerateKey() (*btcec.PrivateKey, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return priv, nil
}

// ParsePrivateKey lê uma chave privada em hex (32 bytes).
func ParsePrivateKey(s string) (*btcec.PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return nil, fmt.Errorf("invalid private key hex")
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv, nil
}

// PublicKeyHex retorna o pubkey x-only da chave, em hex minúsculo.
func PublicKeyHex(priv *btcec.PrivateKey) string {
	return hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))
}
