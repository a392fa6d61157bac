// Package provision creates the token metadata account for an existing mint:
// it derives the metadata address, builds the create instruction, signs the
// transaction and submits it to the ledger for confirmation.
package provision

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/metadata-provisioner/pkg/metrics"
	"github.com/code-payments/metadata-provisioner/pkg/solana"
	"github.com/code-payments/metadata-provisioner/pkg/solana/token"
	"github.com/code-payments/metadata-provisioner/pkg/solana/tokenmetadata"
)

const (
	metricsStructName = "provision.provisioner"

	provisionDurationMetricName = "Provision/Duration"
	provisionOutcomeMetricName  = "Provision/Outcome/"
	provisionEventName          = "MetadataProvisioned"
)

// Ledger is the subset of solana.Client the provisioner needs.
type Ledger interface {
	GetAccountInfo(ed25519.PublicKey, solana.Commitment) (solana.AccountInfo, error)
	GetLatestBlockhash() (solana.Blockhash, error)
	SubmitAndConfirmTransaction(solana.Transaction, solana.Commitment) (*solana.ConfirmationReceipt, error)
}

// Receipt describes a confirmed provisioning transaction.
type Receipt struct {
	Mint          ed25519.PublicKey
	Metadata      ed25519.PublicKey
	MetadataBump  uint8
	MasterEdition ed25519.PublicKey

	Signature          solana.Signature
	Slot               uint64
	ConfirmationStatus string
	State              State
}

type Provisioner struct {
	log         *logrus.Entry
	ledger      Ledger
	tokenClient *token.Client

	commitment    solana.Commitment
	masterEdition bool
}

type Option func(p *Provisioner)

// WithCommitment sets the commitment level used for mint lookups and
// confirmation. Defaults to confirmed.
func WithCommitment(commitment solana.Commitment) Option {
	return func(p *Provisioner) {
		p.commitment = commitment
	}
}

// WithMasterEdition controls whether the master edition account is passed to
// the create instruction. Enabled by default.
func WithMasterEdition(enabled bool) Option {
	return func(p *Provisioner) {
		p.masterEdition = enabled
	}
}

func NewProvisioner(ledger Ledger, opts ...Option) *Provisioner {
	p := &Provisioner{
		log:           logrus.StandardLogger().WithField("type", "provision/provisioner"),
		ledger:        ledger,
		tokenClient:   token.NewClient(ledger),
		commitment:    solana.CommitmentConfirmed,
		masterEdition: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision creates the metadata account described by cfg, paid for and
// authorized by keypair. The keypair is copied for signing and the copy is
// zeroed once the transaction is signed; the caller owns the original.
//
// Failures are returned as a *StageError.
func (p *Provisioner) Provision(ctx context.Context, keypair ed25519.PrivateKey, cfg Config) (*Receipt, error) {
	if len(keypair) != ed25519.PrivateKeySize {
		return nil, &StageError{
			Stage: StageConfigure,
			State: StateUnsigned,
			Err:   errors.Wrapf(ErrConfiguration, "keypair must be %d bytes, got %d", ed25519.PrivateKeySize, len(keypair)),
		}
	}

	signer := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
	copy(signer, keypair)
	defer solana.ZeroKey(signer)

	return p.provision(ctx, signer.Public().(ed25519.PublicKey), []ed25519.PrivateKey{signer}, cfg)
}

func (p *Provisioner) provision(ctx context.Context, payer ed25519.PublicKey, signers []ed25519.PrivateKey, cfg Config) (receipt *Receipt, err error) {
	ctx, end := metrics.StartTransaction(ctx, "Provision")
	defer end()

	start := time.Now()
	log := p.log.WithFields(logrus.Fields{
		"method": "Provision",
		"payer":  base58.Encode(payer),
		"mint":   cfg.Mint,
	})

	var stage Stage
	state := StateUnsigned
	defer func() {
		metrics.RecordDuration(ctx, provisionDurationMetricName, time.Since(start))
		if state.Terminal() {
			metrics.RecordCount(ctx, provisionOutcomeMetricName+state.String(), 1)
		}

		event := map[string]interface{}{
			"mint":  cfg.Mint,
			"state": state.String(),
		}
		if err != nil {
			event["failed_stage"] = string(stage)
			event["error"] = err.Error()
		}
		metrics.RecordEvent(ctx, provisionEventName, event)
	}()

	fail := func(cause error) error {
		log.WithError(cause).WithFields(logrus.Fields{
			"stage": stage,
			"state": state.String(),
		}).Warn("provisioning failed")
		return &StageError{Stage: stage, State: state, Err: cause}
	}

	stage = StageConfigure
	args, err := traceStage(ctx, stage, func() (*tokenmetadata.CreateV1InstructionArgs, error) {
		return cfg.instructionArgs()
	})
	if err != nil {
		return nil, fail(err)
	}

	stage = StageDerive
	accounts, err := traceStage(ctx, stage, func() (*derivedAccounts, error) {
		return p.deriveAccounts(cfg)
	})
	if err != nil {
		return nil, fail(err)
	}
	log = log.WithField("metadata", base58.Encode(accounts.metadata))

	splTokenProgram := token.ProgramKey
	if cfg.ValidateMint {
		stage = StageValidateMint
		splTokenProgram, err = traceStage(ctx, stage, func() (ed25519.PublicKey, error) {
			return p.validateMint(ctx, accounts.mint)
		})
		if err != nil {
			return nil, fail(err)
		}
	}

	stage = StageBuild
	txn, err := traceStage(ctx, stage, func() (*solana.Transaction, error) {
		ix, err := p.buildInstruction(payer, accounts, splTokenProgram, args)
		if err != nil {
			return nil, err
		}

		txn := solana.NewTransaction(payer, ix)
		if err := checkSigners(&txn, signers); err != nil {
			return nil, err
		}
		return &txn, nil
	})
	if err != nil {
		return nil, fail(err)
	}

	stage = StageFetchBlockhash
	blockhash, err := traceStage(ctx, stage, func() (solana.Blockhash, error) {
		if err := ctx.Err(); err != nil {
			return solana.Blockhash{}, err
		}

		blockhash, err := p.ledger.GetLatestBlockhash()
		if err != nil {
			return solana.Blockhash{}, mark(ErrNetwork, err)
		}
		return blockhash, nil
	})
	if err != nil {
		return nil, fail(err)
	}

	stage = StageSign
	_, err = traceStage(ctx, stage, func() (struct{}, error) {
		txn.SetBlockhash(blockhash)
		err := txn.Sign(signers...)
		for _, s := range signers {
			solana.ZeroKey(s)
		}
		return struct{}{}, err
	})
	if err != nil {
		return nil, fail(err)
	}
	state = StateSigned

	stage = StageSubmit
	if err := ctx.Err(); err != nil {
		return nil, fail(err)
	}
	state = StateSubmitted
	log.WithField("signature", base58.Encode(txn.Signature())).Debug("submitting transaction")

	confirmation, err := traceStage(ctx, stage, func() (*solana.ConfirmationReceipt, error) {
		return p.ledger.SubmitAndConfirmTransaction(*txn, p.commitment)
	})
	if err != nil {
		// A transaction that never confirmed may still land.
		var submissionErr *solana.SubmissionError
		if errors.As(err, &submissionErr) && submissionErr.Kind != solana.SubmissionErrorNotConfirmed {
			state = StateRejected
		}
		return nil, fail(err)
	}
	state = StateConfirmed

	log.WithFields(logrus.Fields{
		"signature": base58.Encode(confirmation.Signature[:]),
		"slot":      confirmation.Slot,
	}).Info("metadata account created")

	return &Receipt{
		Mint:               accounts.mint,
		Metadata:           accounts.metadata,
		MetadataBump:       accounts.metadataBump,
		MasterEdition:      accounts.masterEdition,
		Signature:          confirmation.Signature,
		Slot:               confirmation.Slot,
		ConfirmationStatus: confirmation.ConfirmationStatus,
		State:              state,
	}, nil
}

type derivedAccounts struct {
	mint          ed25519.PublicKey
	metadata      ed25519.PublicKey
	metadataBump  uint8
	masterEdition ed25519.PublicKey
}

func (p *Provisioner) deriveAccounts(cfg Config) (*derivedAccounts, error) {
	mint, err := cfg.MintKey()
	if err != nil {
		return nil, err
	}

	metadata, bump, err := tokenmetadata.GetMetadataAddress(&tokenmetadata.GetMetadataAddressArgs{
		Mint: mint,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive metadata address")
	}

	accounts := &derivedAccounts{
		mint:         mint,
		metadata:     metadata,
		metadataBump: bump,
	}

	if p.masterEdition {
		accounts.masterEdition, _, err = tokenmetadata.GetMasterEditionAddress(&tokenmetadata.GetMasterEditionAddressArgs{
			Mint: mint,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to derive master edition address")
		}
	}

	return accounts, nil
}

func (p *Provisioner) buildInstruction(
	payer ed25519.PublicKey,
	accounts *derivedAccounts,
	splTokenProgram ed25519.PublicKey,
	args *tokenmetadata.CreateV1InstructionArgs,
) (solana.Instruction, error) {
	return tokenmetadata.NewCreateV1Instruction(
		&tokenmetadata.CreateV1InstructionAccounts{
			Metadata:        accounts.metadata,
			MasterEdition:   accounts.masterEdition,
			Mint:            accounts.mint,
			Authority:       payer,
			Payer:           payer,
			UpdateAuthority: payer,
			SplTokenProgram: splTokenProgram,
		},
		args,
	)
}

// validateMint returns the token program owning the mint.
func (p *Provisioner) validateMint(ctx context.Context, address ed25519.PublicKey) (ed25519.PublicKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mint, owner, err := p.tokenClient.GetMint(address, p.commitment)
	switch {
	case errors.Is(err, token.ErrAccountNotFound):
		return nil, errors.Wrap(ErrInvalidMint, "mint account does not exist")
	case errors.Is(err, token.ErrInvalidMint):
		return nil, mark(ErrInvalidMint, err)
	case err != nil:
		return nil, mark(ErrNetwork, err)
	}

	if mint.Decimals != 0 {
		return nil, errors.Wrapf(ErrInvalidMint, "non-fungible mint must have 0 decimals, got %d", mint.Decimals)
	}

	return owner, nil
}

// checkSigners verifies every signer the transaction requires is among keys,
// so a missing key is caught before any network call.
func checkSigners(txn *solana.Transaction, keys []ed25519.PrivateKey) error {
	provided := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if len(k) != ed25519.PrivateKeySize {
			continue
		}
		provided[string(k.Public().(ed25519.PublicKey))] = struct{}{}
	}

	for _, required := range txn.RequiredSigners() {
		if _, ok := provided[string(required)]; !ok {
			return errors.Wrapf(solana.ErrMissingRequiredSignature, "no key for %s", base58.Encode(required))
		}
	}
	return nil
}

func traceStage[T any](ctx context.Context, stage Stage, fn func() (T, error)) (T, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, string(stage))
	defer tracer.End()

	result, err := fn()
	tracer.OnError(err)
	return result, err
}
