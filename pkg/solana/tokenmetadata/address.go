package tokenmetadata

import (
	"crypto/ed25519"

	"github.com/code-payments/metadata-provisioner/pkg/solana"
)

var (
	MetadataPrefix = []byte("metadata")
	EditionPrefix  = []byte("edition")
)

type GetMetadataAddressArgs struct {
	Mint ed25519.PublicKey
}

// GetMetadataAddress derives the metadata account for a mint:
// PDA("metadata", ProgramKey, mint) under ProgramKey.
func GetMetadataAddress(args *GetMetadataAddressArgs) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		ProgramKey,
		MetadataPrefix,
		ProgramKey,
		args.Mint,
	)
}

type GetMasterEditionAddressArgs struct {
	Mint ed25519.PublicKey
}

// GetMasterEditionAddress derives the master edition account for a mint:
// PDA("metadata", ProgramKey, mint, "edition") under ProgramKey.
func GetMasterEditionAddress(args *GetMasterEditionAddressArgs) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		ProgramKey,
		MetadataPrefix,
		ProgramKey,
		args.Mint,
		EditionPrefix,
	)
}
