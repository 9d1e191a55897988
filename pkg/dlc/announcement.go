// Package dlc implementa o codec dos compromissos de oráculo DLC: anúncios
// e atestações no formato TLV versionado, mais a derivação dos adaptor
// points por outcome que tranca as assinaturas encriptadas de cada aposta.
package dlc

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Tipos TLV dos compromissos de oráculo (numeração da especificação DLC).
const (
	typeOracleAnnouncement = 55332
	typeOracleEvent        = 55330
	typeEnumDescriptor     = 55302
	typeDigitDescriptor    = 55306
	typeOracleAttestation  = 55400
)

// OracleAnnouncement é o pré-compromisso publicado pelo oráculo: a chave,
// os nonces e os outcomes possíveis, tudo assinado pelo próprio oráculo.
type OracleAnnouncement struct {
	AnnouncementSignature [64]byte
	OraclePubKey          [32]byte
	OracleEvent           OracleEvent
}

// OracleEvent descreve o evento anunciado.
type OracleEvent struct {
	Nonces        [][32]byte
	MaturityEpoch uint32
	Descriptor    EventDescriptor
	EventID       string
}

// EventDescriptor é o conjunto de outcomes possíveis. Só enumeração é
// suportada de ponta a ponta; decomposição por dígitos é reconhecida no
// parse mas rejeitada na hora de montar uma aposta.
type EventDescriptor interface {
	descriptorType() uint64
}

// EnumDescriptor lista outcomes discretos, rotulados por string.
type EnumDescriptor struct {
	Outcomes []string
}

func (EnumDescriptor) descriptorType() uint64 { return typeEnumDescriptor }

// DigitDecompositionDescriptor descreve eventos numéricos assinados dígito
// a dígito. Fica aqui só pro parse não engasgar com anúncios desse tipo.
type DigitDecompositionDescriptor struct {
	Base      uint64
	IsSigned  bool
	Unit      string
	Precision int32
	NumDigits uint16
}

func (DigitDecompositionDescriptor) descriptorType() uint64 { return typeDigitDescriptor }

// decodeBytes aceita entrada em hex ou, se não for hex, em base64.
func decodeBytes(s string) ([]byte, error) {
	if b, err := hex.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: input is neither hex nor base64", ErrMalformedCommitment)
	}
	return b, nil
}

// ParseOracleAnnouncement lê um anúncio codificado em hex ou base64.
func ParseOracleAnnouncement(s string) (*OracleAnnouncement, error) {
	b, err := decodeBytes(s)
	if err != nil {
		return nil, err
	}
	return ReadOracleAnnouncement(b)
}

// ReadOracleAnnouncement lê um anúncio do formato binário TLV.
func ReadOracleAnnouncement(b []byte) (*OracleAnnouncement, error) {
	r := newTLVReader(b)
	typ, body, err := r.readTLV()
	if err != nil {
		return nil, err
	}
	if typ != typeOracleAnnouncement {
		return nil, fmt.Errorf("%w: unexpected tlv type %d for announcement", ErrMalformedCommitment, typ)
	}
	if err := r.expectEnd(); err != nil {
		return nil, err
	}

	var ann OracleAnnouncement
	sig, err := body.readBytes(64)
	if err != nil {
		return nil, err
	}
	copy(ann.AnnouncementSignature[:], sig)

	pub, err := body.readBytes(32)
	if err != nil {
		return nil, err
	}
	copy(ann.OraclePubKey[:], pub)

	if err := readOracleEvent(body, &ann.OracleEvent); err != nil {
		return nil, err
	}
	if err := body.expectEnd(); err != nil {
		return nil, err
	}
	return &ann, nil
}

func readOracleEvent(r *tlvReader, ev *OracleEvent) error {
	typ, body, err := r.readTLV()
	if err != nil {
		return err
	}
	if typ != typeOracleEvent {
		return fmt.Errorf("%w: unexpected tlv type %d for oracle event", ErrMalformedCommitment, typ)
	}

	nbNonces, err := body.readU16()
	if err != nil {
		return err
	}
	for i := 0; i < int(nbNonces); i++ {
		nonce, err := body.readBytes(32)
		if err != nil {
			return err
		}
		var n [32]byte
		copy(n[:], nonce)
		ev.Nonces = append(ev.Nonces, n)
	}

	ev.MaturityEpoch, err = body.readU32()
	if err != nil {
		return err
	}

	ev.Descriptor, err = readDescriptor(body)
	if err != nil {
		return err
	}

	ev.EventID, err = body.readString()
	if err != nil {
		return err
	}
	return body.expectEnd()
}

func readDescriptor(r *tlvReader) (EventDescriptor, error) {
	typ, body, err := r.readTLV()
	if err != nil {
		return nil, err
	}

	switch typ {
	case typeEnumDescriptor:
		nb, err := body.readU16()
		if err != nil {
			return nil, err
		}
		desc := EnumDescriptor{}
		for i := 0; i < int(nb); i++ {
			outcome, err := body.readString()
			if err != nil {
				return nil, err
			}
			desc.Outcomes = append(desc.Outcomes, outcome)
		}
		if err := body.expectEnd(); err != nil {
			return nil, err
		}
		return desc, nil

	case typeDigitDescriptor:
		var desc DigitDecompositionDescriptor
		if desc.Base, err = body.readBigSize(); err != nil {
			return nil, err
		}
		signed, err := body.readByte()
		if err != nil {
			return nil, err
		}
		desc.IsSigned = signed != 0
		if desc.Unit, err = body.readString(); err != nil {
			return nil, err
		}
		prec, err := body.readU32()
		if err != nil {
			return nil, err
		}
		desc.Precision = int32(prec)
		if desc.NumDigits, err = body.readU16(); err != nil {
			return nil, err
		}
		if err := body.expectEnd(); err != nil {
			return nil, err
		}
		return desc, nil

	default:
		return nil, fmt.Errorf("%w: unknown descriptor type %d", ErrMalformedCommitment, typ)
	}
}

// Serialize devolve o TLV completo do anúncio.
func (a *OracleAnnouncement) Serialize() []byte {
	var body bytes.Buffer
	body.Write(a.AnnouncementSignature[:])
	body.Write(a.OraclePubKey[:])
	body.Write(a.OracleEvent.serialize())

	var out bytes.Buffer
	writeTLV(&out, typeOracleAnnouncement, body.Bytes())
	return out.Bytes()
}

// EncodeBase64 é o formato que circula nos payloads HTTP e nos eventos de
// anúncio no relay.
func (a *OracleAnnouncement) EncodeBase64() string {
	return base64.StdEncoding.EncodeToString(a.Serialize())
}

func (ev *OracleEvent) serialize() []byte {
	var body bytes.Buffer
	writeU16(&body, uint16(len(ev.Nonces)))
	for _, n := range ev.Nonces {
		body.Write(n[:])
	}
	writeU32(&body, ev.MaturityEpoch)
	body.Write(serializeDescriptor(ev.Descriptor))
	writeString(&body, ev.EventID)

	var out bytes.Buffer
	writeTLV(&out, typeOracleEvent, body.Bytes())
	return out.Bytes()
}

func serializeDescriptor(d EventDescriptor) []byte {
	var body bytes.Buffer
	switch desc := d.(type) {
	case EnumDescriptor:
		writeU16(&body, uint16(len(desc.Outcomes)))
		for _, o := range desc.Outcomes {
			writeString(&body, o)
		}
	case DigitDecompositionDescriptor:
		writeBigSize(&body, desc.Base)
		if desc.IsSigned {
			body.WriteByte(1)
		} else {
			body.WriteByte(0)
		}
		writeString(&body, desc.Unit)
		var prec [4]byte
		binary.BigEndian.PutUint32(prec[:], uint32(desc.Precision))
		body.Write(prec[:])
		writeU16(&body, desc.NumDigits)
	}

	var out bytes.Buffer
	writeTLV(&out, d.descriptorType(), body.Bytes())
	return out.Bytes()
}

// EnumOutcomes devolve os outcomes declarados, ou ErrUnsupportedDescriptor
// se o evento não for de enumeração.
func (ev *OracleEvent) EnumOutcomes() ([]string, error) {
	desc, ok := ev.Descriptor.(EnumDescriptor)
	if !ok {
		return nil, ErrUnsupportedDescriptor
	}
	return desc.Outcomes, nil
}

// Validate confere a auto-assinatura do anúncio (BIP340 sobre o sha256 do
// TLV do evento) e a coerência entre nonces e descriptor.
func (a *OracleAnnouncement) Validate() error {
	pub, err := schnorr.ParsePubKey(a.OraclePubKey[:])
	if err != nil {
		return fmt.Errorf("%w: bad oracle pubkey: %v", ErrMalformedCommitment, err)
	}
	sig, err := schnorr.ParseSignature(a.AnnouncementSignature[:])
	if err != nil {
		return fmt.Errorf("%w: bad announcement signature: %v", ErrMalformedCommitment, err)
	}

	digest := sha256.Sum256(a.OracleEvent.serialize())
	if !sig.Verify(digest[:], pub) {
		return fmt.Errorf("%w: announcement signature does not verify", ErrMalformedCommitment)
	}

	if _, ok := a.OracleEvent.Descriptor.(EnumDescriptor); ok && len(a.OracleEvent.Nonces) != 1 {
		return fmt.Errorf("%w: enum event wants exactly 1 nonce, got %d",
			ErrMalformedCommitment, len(a.OracleEvent.Nonces))
	}
	return nil
}

// OracleInfo extrai o material criptográfico usado na derivação de adaptor
// points.
func (a *OracleAnnouncement) OracleInfo() OracleInfo {
	return OracleInfo{
		PubKey: a.OraclePubKey,
		Nonces: a.OracleEvent.Nonces,
	}
}
