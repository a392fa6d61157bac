package token

import (
	"crypto/ed25519"

	"github.com/code-payments/metadata-provisioner/pkg/solana/binary"
)

// Reference: https://github.com/solana-labs/solana-program-library/blob/11b1e3eefdd4e523768d63f7c70a7aa391ea0d02/token/program/src/state.rs#L37
const MintSize = 82

// AccountSize is the size of a token account. Token-2022 mints with
// extensions are padded to it so the two can be told apart.
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/11b1e3eefdd4e523768d63f7c70a7aa391ea0d02/token/program/src/state.rs#L129
const AccountSize = 165

// AccountTypeMint is the Token-2022 account type tag stored at AccountSize.
const AccountTypeMint = 1

const optionSize = 4

type Mint struct {
	// Optional authority used to mint new tokens. Absent once supply is fixed.
	MintAuthority ed25519.PublicKey
	// Total supply of tokens.
	Supply uint64
	// Number of base 10 digits to the right of the decimal place.
	Decimals      uint8
	IsInitialized bool
	// Optional authority to freeze token accounts.
	FreezeAuthority ed25519.PublicKey
}

func (m *Mint) Marshal() []byte {
	b := make([]byte, MintSize)

	var offset int
	binary.PutOptionalKey32(b[offset:], m.MintAuthority, &offset, optionSize)
	binary.PutUint64(b[offset:], m.Supply, &offset)
	binary.PutUint8(b[offset:], m.Decimals, &offset)
	binary.PutBool(b[offset:], m.IsInitialized, &offset)
	binary.PutOptionalKey32(b[offset:], m.FreezeAuthority, &offset, optionSize)

	return b
}

// Unmarshal decodes the base mint layout. The data must be exactly MintSize,
// or a Token-2022 mint whose extensions follow an AccountTypeMint tag at
// AccountSize. Extension data is ignored.
func (m *Mint) Unmarshal(b []byte) bool {
	if !IsMintData(b) {
		return false
	}

	var offset int
	binary.GetOptionalKey32(b[offset:], &m.MintAuthority, &offset, optionSize)
	binary.GetUint64(b[offset:], &m.Supply, &offset)
	binary.GetUint8(b[offset:], &m.Decimals, &offset)
	binary.GetBool(b[offset:], &m.IsInitialized, &offset)
	binary.GetOptionalKey32(b[offset:], &m.FreezeAuthority, &offset, optionSize)

	return true
}

// IsMintData reports whether b has the layout of a mint rather than a token
// account.
func IsMintData(b []byte) bool {
	if len(b) == MintSize {
		return true
	}
	return len(b) > AccountSize && b[AccountSize] == AccountTypeMint
}
