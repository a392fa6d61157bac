package system

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"
)

// https://explorer.solana.com/address/11111111111111111111111111111111
var SystemAccount ed25519.PublicKey

// InstructionsSysVar points to the system variable "Instructions", which lets
// programs introspect the transaction they're executing in.
//
// Source: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/program/src/sysvar/instructions.rs#L31
var InstructionsSysVar ed25519.PublicKey

func init() {
	var err error

	InstructionsSysVar, err = base58.Decode("Sysvar1nstructions1111111111111111111111111")
	if err != nil {
		panic(err)
	}

	SystemAccount, err = base58.Decode("11111111111111111111111111111111")
	if err != nil {
		panic(err)
	}
}
