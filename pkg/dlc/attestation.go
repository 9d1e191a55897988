package dlc

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// OracleAttestation é a publicação pós-evento do oráculo: uma assinatura
// BIP340 por outcome revelado, na mesma ordem da lista de outcomes.
type OracleAttestation struct {
	OraclePubKey [32]byte
	Signatures   [][64]byte
	Outcomes     []string
}

// ParseOracleAttestation lê uma atestação codificada em hex ou base64.
func ParseOracleAttestation(s string) (*OracleAttestation, error) {
	b, err := decodeBytes(s)
	if err != nil {
		return nil, err
	}
	return ReadOracleAttestation(b)
}

// ReadOracleAttestation lê uma atestação do formato binário TLV.
func ReadOracleAttestation(b []byte) (*OracleAttestation, error) {
	r := newTLVReader(b)
	typ, body, err := r.readTLV()
	if err != nil {
		return nil, err
	}
	if typ != typeOracleAttestation {
		return nil, fmt.Errorf("%w: unexpected tlv type %d for attestation", ErrMalformedCommitment, typ)
	}
	if err := r.expectEnd(); err != nil {
		return nil, err
	}

	var att OracleAttestation
	pub, err := body.readBytes(32)
	if err != nil {
		return nil, err
	}
	copy(att.OraclePubKey[:], pub)

	nbSigs, err := body.readU16()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(nbSigs); i++ {
		sig, err := body.readBytes(64)
		if err != nil {
			return nil, err
		}
		var s [64]byte
		copy(s[:], sig)
		att.Signatures = append(att.Signatures, s)
	}
	for i := 0; i < int(nbSigs); i++ {
		outcome, err := body.readString()
		if err != nil {
			return nil, err
		}
		att.Outcomes = append(att.Outcomes, outcome)
	}
	if err := body.expectEnd(); err != nil {
		return nil, err
	}
	return &att, nil
}

// Serialize devolve o TLV completo da atestação.
func (a *OracleAttestation) Serialize() []byte {
	var body bytes.Buffer
	body.Write(a.OraclePubKey[:])
	writeU16(&body, uint16(len(a.Signatures)))
	for _, s := range a.Signatures {
		body.Write(s[:])
	}
	for _, o := range a.Outcomes {
		writeString(&body, o)
	}

	var out bytes.Buffer
	writeTLV(&out, typeOracleAttestation, body.Bytes())
	return out.Bytes()
}

// EncodeBase64 é o formato publicado no conteúdo dos eventos de atestação.
func (a *OracleAttestation) EncodeBase64() string {
	return base64.StdEncoding.EncodeToString(a.Serialize())
}

// Validate confere cada assinatura da atestação contra o sha256 do outcome
// correspondente.
func (a *OracleAttestation) Validate() error {
	if len(a.Signatures) == 0 || len(a.Signatures) != len(a.Outcomes) {
		return fmt.Errorf("%w: %d signatures for %d outcomes",
			ErrMalformedCommitment, len(a.Signatures), len(a.Outcomes))
	}

	pub, err := schnorr.ParsePubKey(a.OraclePubKey[:])
	if err != nil {
		return fmt.Errorf("%w: bad oracle pubkey: %v", ErrMalformedCommitment, err)
	}
	for i, sigBytes := range a.Signatures {
		sig, err := schnorr.ParseSignature(sigBytes[:])
		if err != nil {
			return fmt.Errorf("%w: bad signature %d: %v", ErrMalformedCommitment, i, err)
		}
		digest := sha256.Sum256([]byte(a.Outcomes[i]))
		if !sig.Verify(digest[:], pub) {
			return fmt.Errorf("%w: signature %d does not verify for outcome %q",
				ErrMalformedCommitment, i, a.Outcomes[i])
		}
	}
	return nil
}

// ExtractSigningScalar decompõe uma assinatura de atestação e devolve a
// componente s, o segredo que destranca as assinaturas encriptadas do
// outcome atestado.
func ExtractSigningScalar(sig [64]byte) (*secp256k1.ModNScalar, error) {
	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(sig[32:]); overflow {
		return nil, fmt.Errorf("%w: s >= group order", ErrInvalidScalar)
	}
	if s.IsZero() {
		return nil, fmt.Errorf("%w: s is zero", ErrInvalidScalar)
	}
	return &s, nil
}
