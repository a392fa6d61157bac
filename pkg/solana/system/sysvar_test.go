package system

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSysVars(t *testing.T) {
	for _, key := range []ed25519.PublicKey{SystemAccount, InstructionsSysVar} {
		assert.Len(t, key, ed25519.PublicKeySize)
	}

	assert.Equal(t, make(ed25519.PublicKey, ed25519.PublicKeySize), SystemAccount)
	assert.Equal(t, ed25519.PublicKey{6, 167, 213, 23, 24, 123, 209, 102, 53, 218, 212, 4, 85, 253, 194, 192, 193, 36, 198, 143, 33, 86, 117, 165, 219, 186, 203, 95, 8, 0, 0, 0}, InstructionsSysVar)
}
