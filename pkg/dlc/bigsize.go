package dlc

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// BigSize é o varint big-endian do formato lightning, usado nos prefixos de
// tipo, tamanho e string dos TLVs de oráculo. Decodificação exige a forma
// mínima, senão o round-trip byte a byte não fecha.

func writeBigSize(buf *bytes.Buffer, v uint64) {
	switch {
	case v < 0xfd:
		buf.WriteByte(byte(v))
	case v <= 0xffff:
		buf.WriteByte(0xfd)
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(v))
		buf.Write(b[:])
	case v <= 0xffffffff:
		buf.WriteByte(0xfe)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(v))
		buf.Write(b[:])
	default:
		buf.WriteByte(0xff)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		buf.Write(b[:])
	}
}

// tlvReader anda por um buffer binário acumulando as leituras típicas dos
// TLVs: inteiros big-endian, blocos fixos e strings com prefixo BigSize.
type tlvReader struct {
	buf []byte
	pos int
}

func newTLVReader(b []byte) *tlvReader {
	return &tlvReader{buf: b}
}

func (r *tlvReader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *tlvReader) readByte() (byte, error) {
	if r.remaining() < 1 {
		return 0, fmt.Errorf("%w: unexpected end of input", ErrMalformedCommitment)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *tlvReader) readBytes(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, fmt.Errorf("%w: unexpected end of input", ErrMalformedCommitment)
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *tlvReader) readU16() (uint16, error) {
	b, err := r.readBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *tlvReader) readU32() (uint32, error) {
	b, err := r.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *tlvReader) readBigSize() (uint64, error) {
	prefix, err := r.readByte()
	if err != nil {
		return 0, err
	}

	switch prefix {
	case 0xfd:
		b, err := r.readBytes(2)
		if err != nil {
			return 0, err
		}
		v := uint64(binary.BigEndian.Uint16(b))
		if v < 0xfd {
			return 0, fmt.Errorf("%w: non-minimal bigsize", ErrMalformedCommitment)
		}
		return v, nil
	case 0xfe:
		b, err := r.readBytes(4)
		if err != nil {
			return 0, err
		}
		v := uint64(binary.BigEndian.Uint32(b))
		if v <= 0xffff {
			return 0, fmt.Errorf("%w: non-minimal bigsize", ErrMalformedCommitment)
		}
		return v, nil
	case 0xff:
		b, err := r.readBytes(8)
		if err != nil {
			return 0, err
		}
		v := binary.BigEndian.Uint64(b)
		if v <= 0xffffffff {
			return 0, fmt.Errorf("%w: non-minimal bigsize", ErrMalformedCommitment)
		}
		return v, nil
	default:
		return uint64(prefix), nil
	}
}

// readString lê uma string UTF-8 com tamanho em BigSize na frente.
func (r *tlvReader) readString() (string, error) {
	n, err := r.readBigSize()
	if err != nil {
		return "", err
	}
	if n > uint64(r.remaining()) {
		return "", fmt.Errorf("%w: string length %d exceeds input", ErrMalformedCommitment, n)
	}
	b, err := r.readBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// readTLV lê o par tipo+tamanho e devolve o corpo delimitado.
func (r *tlvReader) readTLV() (uint64, *tlvReader, error) {
	typ, err := r.readBigSize()
	if err != nil {
		return 0, nil, err
	}
	length, err := r.readBigSize()
	if err != nil {
		return 0, nil, err
	}
	if length > uint64(r.remaining()) {
		return 0, nil, fmt.Errorf("%w: tlv length %d exceeds input", ErrMalformedCommitment, length)
	}
	body, err := r.readBytes(int(length))
	if err != nil {
		return 0, nil, err
	}
	return typ, newTLVReader(body), nil
}

// expectEnd garante que o corpo foi consumido inteiro.
func (r *tlvReader) expectEnd() error {
	if r.remaining() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedCommitment, r.remaining())
	}
	return nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeBigSize(buf, uint64(len(s)))
	buf.WriteString(s)
}

func writeTLV(buf *bytes.Buffer, typ uint64, body []byte) {
	writeBigSize(buf, typ)
	writeBigSize(buf, uint64(len(body)))
	buf.Write(body)
}
