package solana

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrInvalidKeypair is returned when keypair material can't be decoded into
// a consistent ed25519 key.
var ErrInvalidKeypair = errors.New("invalid keypair")

// ParseKeypair decodes a keypair in the Solana CLI format: a JSON array of
// 64 bytes holding the secret seed followed by the public key.
func ParseKeypair(raw []byte) (ed25519.PrivateKey, error) {
	var values []int
	if err := json.Unmarshal(bytes.TrimSpace(raw), &values); err != nil {
		return nil, errors.Wrap(ErrInvalidKeypair, "expected a json array of bytes")
	}
	if len(values) != ed25519.PrivateKeySize {
		return nil, errors.Wrapf(ErrInvalidKeypair, "expected %d bytes, got %d", ed25519.PrivateKeySize, len(values))
	}

	key := make([]byte, ed25519.PrivateKeySize)
	for i, v := range values {
		if v < 0 || v > 255 {
			ZeroKey(key)
			return nil, errors.Wrapf(ErrInvalidKeypair, "byte %d out of range: %d", i, v)
		}
		key[i] = byte(v)
	}

	derived := ed25519.NewKeyFromSeed(key[:ed25519.SeedSize])
	defer ZeroKey(derived)
	if !bytes.Equal(derived[ed25519.SeedSize:], key[ed25519.SeedSize:]) {
		ZeroKey(key)
		return nil, errors.Wrap(ErrInvalidKeypair, "public key does not match secret")
	}

	return ed25519.PrivateKey(key), nil
}

// ZeroKey overwrites the key material in place.
func ZeroKey(key ed25519.PrivateKey) {
	for i := range key {
		key[i] = 0
	}
}
