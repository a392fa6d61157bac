// Package shortvec implements the compact-u16 length prefix used in Solana
// transaction encoding: 7 bits per byte, little endian, high bit set on every
// byte but the last. Lengths are limited to 3 bytes.
package shortvec

import (
	"io"
	"math"

	"github.com/pkg/errors"
)

const maxEncodedLen = 3

// AppendLen appends the encoded length to b.
func AppendLen(b []byte, length int) ([]byte, error) {
	if length < 0 || length > math.MaxUint16 {
		return b, errors.Errorf("length %d out of range [0, %d]", length, math.MaxUint16)
	}

	for length >= 0x80 {
		b = append(b, byte(length&0x7f)|0x80)
		length >>= 7
	}
	return append(b, byte(length)), nil
}

// EncodeLen writes the encoded length to w and returns the bytes written.
func EncodeLen(w io.Writer, length int) (int, error) {
	var scratch [maxEncodedLen]byte
	encoded, err := AppendLen(scratch[:0], length)
	if err != nil {
		return 0, err
	}
	return w.Write(encoded)
}

// DecodeLen reads an encoded length from r.
func DecodeLen(r io.Reader) (int, error) {
	var val int
	var b [1]byte

	for i := 0; i < maxEncodedLen; i++ {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			if i > 0 && err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}

		val |= int(b[0]&0x7f) << (i * 7)
		if b[0]&0x80 != 0 {
			continue
		}

		if i > 0 && b[0] == 0 {
			return 0, errors.New("non-canonical length encoding")
		}
		if val > math.MaxUint16 {
			return 0, errors.Errorf("length %d exceeds %d", val, math.MaxUint16)
		}
		return val, nil
	}

	return 0, errors.Errorf("length encoding exceeds %d bytes", maxEncodedLen)
}
