package tokenmetadata

import (
	"crypto/ed25519"
	"unicode/utf8"

	"github.com/near/borsh-go"
	"github.com/pkg/errors"

	"github.com/code-payments/metadata-provisioner/pkg/solana"
	"github.com/code-payments/metadata-provisioner/pkg/solana/system"
	"github.com/code-payments/metadata-provisioner/pkg/solana/token"
)

type CreateV1InstructionArgs struct {
	AssetData   AssetData
	Decimals    *uint8
	PrintSupply *PrintSupply
}

type CreateV1InstructionAccounts struct {
	Metadata ed25519.PublicKey
	// Optional. Required by the program for non-fungible assets.
	MasterEdition   ed25519.PublicKey
	Mint            ed25519.PublicKey
	Authority       ed25519.PublicKey
	Payer           ed25519.PublicKey
	UpdateAuthority ed25519.PublicKey
	// Optional. Defaults to the SPL token program.
	SplTokenProgram ed25519.PublicKey
}

// Validate checks the asset data against the program's limits.
func (a *CreateV1InstructionArgs) Validate() error {
	d := &a.AssetData

	for _, f := range []struct {
		name  string
		value string
		max   int
	}{
		{"name", d.Name, MaxNameLength},
		{"symbol", d.Symbol, MaxSymbolLength},
		{"uri", d.URI, MaxURILength},
	} {
		if len(f.value) > f.max {
			return errors.Wrapf(ErrFieldTooLong, "%s is %d bytes, max %d", f.name, len(f.value), f.max)
		}
		if !utf8.ValidString(f.value) {
			return errors.Wrapf(ErrInvalidField, "%s is not valid utf-8", f.name)
		}
	}

	if d.SellerFeeBasisPoints > MaxSellerFeeBasisPoints {
		return errors.Wrapf(ErrInvalidRoyalty, "%d exceeds %d", d.SellerFeeBasisPoints, MaxSellerFeeBasisPoints)
	}

	if d.Creators != nil {
		creators := *d.Creators
		if len(creators) == 0 || len(creators) > MaxCreatorLimit {
			return errors.Wrapf(ErrInvalidCreators, "expected 1 to %d creators, got %d", MaxCreatorLimit, len(creators))
		}

		var total int
		seen := make(map[[32]byte]struct{})
		for _, c := range creators {
			if _, ok := seen[c.Address]; ok {
				return errors.Wrap(ErrInvalidCreators, "duplicate creator address")
			}
			seen[c.Address] = struct{}{}
			total += int(c.Share)
		}
		if total != 100 {
			return errors.Wrapf(ErrInvalidCreators, "shares sum to %d, expected 100", total)
		}
	}

	return nil
}

// Marshal returns the instruction data: the Create discriminator, the V1
// argument variant, then the borsh encoded arguments.
func (a *CreateV1InstructionArgs) Marshal() ([]byte, error) {
	encoded, err := borsh.Serialize(*a)
	if err != nil {
		return nil, errors.Wrap(err, "failed to borsh encode arguments")
	}

	data := make([]byte, 0, 2+len(encoded))
	data = append(data, byte(instructionTypeCreate), createArgsV1)
	return append(data, encoded...), nil
}

// NewCreateV1Instruction returns an instruction that creates the metadata
// account (and master edition, when provided) for an existing mint.
//
// The mint is not marked as a signer since it must already exist.
func NewCreateV1Instruction(
	accounts *CreateV1InstructionAccounts,
	args *CreateV1InstructionArgs,
) (solana.Instruction, error) {
	if err := args.Validate(); err != nil {
		return solana.Instruction{}, err
	}

	for _, a := range []struct {
		name string
		key  ed25519.PublicKey
	}{
		{"metadata", accounts.Metadata},
		{"mint", accounts.Mint},
		{"authority", accounts.Authority},
		{"payer", accounts.Payer},
		{"update authority", accounts.UpdateAuthority},
	} {
		if len(a.key) != ed25519.PublicKeySize {
			return solana.Instruction{}, errors.Errorf("invalid %s account", a.name)
		}
	}

	data, err := args.Marshal()
	if err != nil {
		return solana.Instruction{}, err
	}

	// Absent optional accounts are passed as the program id.
	masterEdition := solana.NewReadonlyAccountMeta(ProgramKey, false)
	if len(accounts.MasterEdition) > 0 {
		masterEdition = solana.NewAccountMeta(accounts.MasterEdition, false)
	}

	splTokenProgram := token.ProgramKey
	if len(accounts.SplTokenProgram) > 0 {
		splTokenProgram = accounts.SplTokenProgram
	}

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(accounts.Metadata, false),
		masterEdition,
		solana.NewAccountMeta(accounts.Mint, false),
		solana.NewReadonlyAccountMeta(accounts.Authority, true),
		solana.NewAccountMeta(accounts.Payer, true),
		solana.NewReadonlyAccountMeta(accounts.UpdateAuthority, true),
		solana.NewReadonlyAccountMeta(system.SystemAccount, false),
		solana.NewReadonlyAccountMeta(system.InstructionsSysVar, false),
		solana.NewReadonlyAccountMeta(splTokenProgram, false),
	), nil
}
