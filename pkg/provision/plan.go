package provision

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/metadata-provisioner/pkg/solana"
	"github.com/code-payments/metadata-provisioner/pkg/solana/token"
)

// Plan is the outcome of a dry run: the derived addresses and the unsigned
// create instruction.
type Plan struct {
	Payer         ed25519.PublicKey
	Mint          ed25519.PublicKey
	Metadata      ed25519.PublicKey
	MetadataBump  uint8
	MasterEdition ed25519.PublicKey
	Instruction   solana.Instruction
}

// Plan validates cfg, derives the accounts and builds the instruction payer
// would submit, without any network call. The mint is assumed to be owned by
// the SPL token program.
func (p *Provisioner) Plan(payer ed25519.PublicKey, cfg Config) (*Plan, error) {
	if len(payer) != ed25519.PublicKeySize {
		return nil, &StageError{
			Stage: StageConfigure,
			Err:   errors.Wrapf(ErrConfiguration, "payer must be %d bytes, got %d", ed25519.PublicKeySize, len(payer)),
		}
	}

	args, err := cfg.instructionArgs()
	if err != nil {
		return nil, &StageError{Stage: StageConfigure, Err: err}
	}

	accounts, err := p.deriveAccounts(cfg)
	if err != nil {
		return nil, &StageError{Stage: StageDerive, Err: err}
	}

	ix, err := p.buildInstruction(payer, accounts, token.ProgramKey, args)
	if err != nil {
		return nil, &StageError{Stage: StageBuild, Err: err}
	}

	return &Plan{
		Payer:         payer,
		Mint:          accounts.mint,
		Metadata:      accounts.metadata,
		MetadataBump:  accounts.metadataBump,
		MasterEdition: accounts.masterEdition,
		Instruction:   ix,
	}, nil
}

func (p *Plan) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Payer: %s\n", base58.Encode(p.Payer)))
	sb.WriteString(fmt.Sprintf("Mint: %s\n", base58.Encode(p.Mint)))
	sb.WriteString(fmt.Sprintf("Metadata PDA: %s (bump %d)\n", base58.Encode(p.Metadata), p.MetadataBump))
	if len(p.MasterEdition) > 0 {
		sb.WriteString(fmt.Sprintf("Master Edition PDA: %s\n", base58.Encode(p.MasterEdition)))
	}
	sb.WriteString(fmt.Sprintf("Program: %s\n", base58.Encode(p.Instruction.Program)))
	sb.WriteString("Accounts:\n")
	for i, a := range p.Instruction.Accounts {
		var flags []string
		if a.IsWritable {
			flags = append(flags, "writable")
		}
		if a.IsSigner {
			flags = append(flags, "signer")
		}
		if len(flags) == 0 {
			flags = append(flags, "readonly")
		}
		sb.WriteString(fmt.Sprintf("  %d: %s [%s]\n", i, base58.Encode(a.PublicKey), strings.Join(flags, ", ")))
	}
	sb.WriteString(fmt.Sprintf("Data: %s\n", base64.StdEncoding.EncodeToString(p.Instruction.Data)))
	return sb.String()
}
