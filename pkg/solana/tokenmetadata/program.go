// Package tokenmetadata builds instructions for the Metaplex Token Metadata
// program, which attaches descriptive metadata to SPL token mints.
package tokenmetadata

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

var (
	ErrFieldTooLong    = errors.New("field too long")
	ErrInvalidField    = errors.New("invalid field")
	ErrInvalidRoyalty  = errors.New("invalid seller fee basis points")
	ErrInvalidCreators = errors.New("invalid creators")
)

// ProgramKey is the address of the Token Metadata program.
//
// Current key: metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s
var ProgramKey = ed25519.PublicKey(mustBase58Decode("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"))

// Reference: https://github.com/metaplex-foundation/mpl-token-metadata/blob/main/programs/token-metadata/program/src/state/mod.rs
const (
	MaxNameLength           = 32
	MaxSymbolLength         = 10
	MaxURILength            = 200
	MaxCreatorLimit         = 5
	MaxSellerFeeBasisPoints = 10000
)

// Token Metadata instructions are identified by a single byte, the index of
// the variant in the program's instruction enum.
type instructionType uint8

const (
	instructionTypeCreate instructionType = 42
)

// Create takes an argument enum; V1 is its only variant.
const createArgsV1 uint8 = 0

func mustBase58Decode(value string) []byte {
	decoded, err := base58.Decode(value)
	if err != nil {
		panic(err)
	}
	return decoded
}
