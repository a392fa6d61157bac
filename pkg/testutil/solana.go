package testutil

import (
	"crypto/ed25519"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func GenerateSolanaKeypair(t *testing.T) ed25519.PrivateKey {
	_, p, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return p
}

func GenerateSolanaKeys(t *testing.T, n int) []ed25519.PublicKey {
	keys := make([]ed25519.PublicKey, n)
	for i := 0; i < n; i++ {
		p, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		keys[i] = p
	}
	return keys
}

// SolanaKeypairJSON encodes key the way the Solana CLI writes keypair files:
// a JSON array of the 64 private key bytes.
func SolanaKeypairJSON(t *testing.T, key ed25519.PrivateKey) []byte {
	values := make([]int, len(key))
	for i, b := range key {
		values[i] = int(b)
	}

	encoded, err := json.Marshal(values)
	require.NoError(t, err)
	return encoded
}
