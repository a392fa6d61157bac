package provision

import (
	"context"
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/metadata-provisioner/pkg/provision/memory"
	"github.com/code-payments/metadata-provisioner/pkg/solana"
	"github.com/code-payments/metadata-provisioner/pkg/solana/token"
	"github.com/code-payments/metadata-provisioner/pkg/solana/tokenmetadata"
	"github.com/code-payments/metadata-provisioner/pkg/testutil"
)

const (
	sampleMint     = "GLCkK1D5aKAaeeQSLRXHLzdWrrkmad2rJXBD3A5mWTis"
	sampleMetadata = "6u18j6P2BQaLVKqEMbMHycyU2JER7dA4WfcS8jxhkJmA"
)

type testEnv struct {
	ledger      *memory.Ledger
	provisioner *Provisioner
	keypair     ed25519.PrivateKey
	payer       ed25519.PublicKey
	mint        ed25519.PublicKey
}

func setup(t *testing.T, opts ...Option) *testEnv {
	ledger := memory.NewLedger()
	keypair := testutil.GenerateSolanaKeypair(t)

	mint, err := base58.Decode(sampleMint)
	require.NoError(t, err)
	ledger.SetMint(mint, &token.Mint{
		MintAuthority: keypair.Public().(ed25519.PublicKey),
		Supply:        1,
		Decimals:      0,
		IsInitialized: true,
	})

	return &testEnv{
		ledger:      ledger,
		provisioner: NewProvisioner(ledger, opts...),
		keypair:     keypair,
		payer:       keypair.Public().(ed25519.PublicKey),
		mint:        mint,
	}
}

func sampleConfig() Config {
	cfg := DefaultConfig()
	cfg.Mint = sampleMint
	cfg.Name = "Solana Training Token"
	cfg.Symbol = "TRAIN_KHAL"
	cfg.URI = "https://arweave.net/1234"
	cfg.RoyaltyBps = 0
	return cfg
}

func requireStageError(t *testing.T, err error, stage Stage, state State) *StageError {
	require.Error(t, err)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr), err.Error())
	assert.Equal(t, stage, stageErr.Stage)
	assert.Equal(t, state, stageErr.State)
	return stageErr
}

func TestProvision_HappyPath(t *testing.T) {
	env := setup(t)
	original := append(ed25519.PrivateKey(nil), env.keypair...)

	receipt, err := env.provisioner.Provision(context.Background(), env.keypair, sampleConfig())
	require.NoError(t, err)

	assert.Equal(t, sampleMetadata, base58.Encode(receipt.Metadata))
	assert.EqualValues(t, 253, receipt.MetadataBump)
	assert.Equal(t, env.mint, receipt.Mint)
	assert.NotEmpty(t, receipt.MasterEdition)
	assert.Equal(t, StateConfirmed, receipt.State)
	assert.Equal(t, "confirmed", receipt.ConfirmationStatus)

	// The caller's key is left intact.
	assert.Equal(t, original, env.keypair)

	submitted := env.ledger.Submitted()
	require.Len(t, submitted, 1)
	txn := submitted[0]
	assert.Equal(t, receipt.Signature[:], txn.Signature())
	assert.Equal(t, env.payer, txn.Payer())
	assert.Equal(t, env.ledger.Blockhash(), txn.Message.RecentBlockhash)
	require.NoError(t, txn.Verify())

	require.Len(t, txn.RequiredSigners(), 1)
	require.Len(t, txn.Message.Instructions, 1)
	ix := txn.Message.Instructions[0]
	assert.Equal(t, tokenmetadata.ProgramKey, txn.Message.Accounts[ix.ProgramIndex])
	assert.Equal(t, receipt.Metadata, txn.Message.Accounts[ix.Accounts[0]])
	assert.Equal(t, env.mint, txn.Message.Accounts[ix.Accounts[2]])
	assert.Equal(t, env.payer, txn.Message.Accounts[ix.Accounts[4]])
	assert.Equal(t, token.ProgramKey, txn.Message.Accounts[ix.Accounts[8]])

	plan, err := env.provisioner.Plan(env.payer, sampleConfig())
	require.NoError(t, err)
	assert.Equal(t, plan.Instruction.Data, ix.Data)
}

func TestProvision_AlreadyExists(t *testing.T) {
	env := setup(t)

	_, err := env.provisioner.Provision(context.Background(), env.keypair, sampleConfig())
	require.NoError(t, err)

	_, err = env.provisioner.Provision(context.Background(), env.keypair, sampleConfig())
	stageErr := requireStageError(t, err, StageSubmit, StateRejected)
	assert.True(t, errors.Is(err, solana.ErrAlreadyExists))
	assert.False(t, errors.Is(err, solana.ErrProgramError))

	var submissionErr *solana.SubmissionError
	require.True(t, errors.As(err, &submissionErr))
	assert.Equal(t, solana.SubmissionErrorAlreadyExists, submissionErr.Kind)
	assert.Contains(t, stageErr.Error(), "submit failed")
}

func TestProvision_MissingRequiredSignature(t *testing.T) {
	env := setup(t)
	other := testutil.GenerateSolanaKeypair(t)

	cfg := sampleConfig()
	cfg.ValidateMint = false

	_, err := env.provisioner.provision(context.Background(), env.payer, []ed25519.PrivateKey{other}, cfg)
	requireStageError(t, err, StageBuild, StateUnsigned)
	assert.True(t, errors.Is(err, solana.ErrMissingRequiredSignature))
	assert.Equal(t, 0, env.ledger.Calls())
}

func TestProvision_ValidationFailsBeforeNetwork(t *testing.T) {
	for _, tc := range []struct {
		name     string
		mutate   func(*Config)
		expected error
	}{
		{"name too long", func(c *Config) { c.Name = strings.Repeat("n", 33) }, tokenmetadata.ErrFieldTooLong},
		{"symbol too long", func(c *Config) { c.Symbol = strings.Repeat("s", 11) }, tokenmetadata.ErrFieldTooLong},
		{"uri too long", func(c *Config) { c.URI = strings.Repeat("u", 201) }, tokenmetadata.ErrFieldTooLong},
		{"royalty too high", func(c *Config) { c.RoyaltyBps = 10001 }, tokenmetadata.ErrInvalidRoyalty},
		{"negative royalty", func(c *Config) { c.RoyaltyBps = -1 }, tokenmetadata.ErrInvalidRoyalty},
		{"missing mint", func(c *Config) { c.Mint = "" }, ErrConfiguration},
		{"malformed mint", func(c *Config) { c.Mint = "not-base58!" }, ErrConfiguration},
		{"short mint", func(c *Config) { c.Mint = "3yZe7d" }, ErrConfiguration},
		{"bad creator", func(c *Config) { c.Creators = []CreatorConfig{{Address: "bad", Share: 100}} }, ErrConfiguration},
		{"creator shares", func(c *Config) { c.Creators = []CreatorConfig{{Address: sampleMint, Share: 50}} }, tokenmetadata.ErrInvalidCreators},
		{"invalid utf-8 symbol", func(c *Config) { c.Symbol = "TR\xffIN" }, ErrConfiguration},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := setup(t)
			cfg := sampleConfig()
			tc.mutate(&cfg)

			assert.True(t, errors.Is(cfg.Validate(), tc.expected))

			_, err := env.provisioner.Provision(context.Background(), env.keypair, cfg)
			requireStageError(t, err, StageConfigure, StateUnsigned)
			assert.True(t, errors.Is(err, tc.expected), err.Error())
			assert.Equal(t, 0, env.ledger.Calls())
		})
	}
}

func TestProvision_InvalidKeypair(t *testing.T) {
	env := setup(t)

	_, err := env.provisioner.Provision(context.Background(), env.keypair[:32], sampleConfig())
	requireStageError(t, err, StageConfigure, StateUnsigned)
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Equal(t, 0, env.ledger.Calls())
}

func TestProvision_NetworkError(t *testing.T) {
	env := setup(t)
	cause := errors.New("dial tcp: connection refused")
	env.ledger.SetBlockhashError(cause)

	_, err := env.provisioner.Provision(context.Background(), env.keypair, sampleConfig())
	requireStageError(t, err, StageFetchBlockhash, StateUnsigned)
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.True(t, errors.Is(err, cause))
	assert.Empty(t, env.ledger.Submitted())
}

func TestProvision_InvalidMint(t *testing.T) {
	env := setup(t)

	// Fungible mint
	env.ledger.SetMint(env.mint, &token.Mint{Decimals: 6, IsInitialized: true})
	_, err := env.provisioner.Provision(context.Background(), env.keypair, sampleConfig())
	requireStageError(t, err, StageValidateMint, StateUnsigned)
	assert.True(t, errors.Is(err, ErrInvalidMint))

	// Uninitialized mint
	env.ledger.SetMint(env.mint, &token.Mint{})
	_, err = env.provisioner.Provision(context.Background(), env.keypair, sampleConfig())
	requireStageError(t, err, StageValidateMint, StateUnsigned)
	assert.True(t, errors.Is(err, ErrInvalidMint))

	// Not a mint
	env.ledger.SetAccount(env.mint, solana.AccountInfo{Owner: tokenmetadata.ProgramKey, Data: make([]byte, token.MintSize)})
	_, err = env.provisioner.Provision(context.Background(), env.keypair, sampleConfig())
	requireStageError(t, err, StageValidateMint, StateUnsigned)
	assert.True(t, errors.Is(err, ErrInvalidMint))

	// Missing mint
	other := setup(t)
	cfg := sampleConfig()
	cfg.Mint = base58.Encode(testutil.GenerateSolanaKeys(t, 1)[0])
	_, err = other.provisioner.Provision(context.Background(), other.keypair, cfg)
	requireStageError(t, err, StageValidateMint, StateUnsigned)
	assert.True(t, errors.Is(err, ErrInvalidMint))

	// Disabling validation defers to the node.
	cfg.ValidateMint = false
	_, err = other.provisioner.Provision(context.Background(), other.keypair, cfg)
	assert.NoError(t, err)

	assert.Empty(t, env.ledger.Submitted())
}

func TestProvision_Token2022Mint(t *testing.T) {
	env := setup(t)

	data := make([]byte, token.AccountSize+1+83)
	copy(data, (&token.Mint{IsInitialized: true}).Marshal())
	data[token.AccountSize] = token.AccountTypeMint
	env.ledger.SetAccount(env.mint, solana.AccountInfo{
		Owner: token.Program2022Key,
		Data:  data,
	})

	_, err := env.provisioner.Provision(context.Background(), env.keypair, sampleConfig())
	require.NoError(t, err)

	txn := env.ledger.Submitted()[0]
	ix := txn.Message.Instructions[0]
	assert.Equal(t, token.Program2022Key, txn.Message.Accounts[ix.Accounts[8]])
}

func TestProvision_InsufficientFunds(t *testing.T) {
	env := setup(t)
	env.ledger.SetBalance(env.payer, 1000)

	_, err := env.provisioner.Provision(context.Background(), env.keypair, sampleConfig())
	requireStageError(t, err, StageSubmit, StateRejected)
	assert.True(t, errors.Is(err, solana.ErrInsufficientFunds))
}

func TestProvision_NotConfirmed(t *testing.T) {
	env := setup(t)
	env.ledger.RejectNextSubmission(&solana.SubmissionError{
		Kind: solana.SubmissionErrorNotConfirmed,
		Err:  errors.Wrap(solana.ErrSignatureNotFound, "gave up polling"),
	})

	_, err := env.provisioner.Provision(context.Background(), env.keypair, sampleConfig())
	requireStageError(t, err, StageSubmit, StateSubmitted)
	assert.True(t, errors.Is(err, solana.ErrNotConfirmed))
	assert.True(t, errors.Is(err, solana.ErrSignatureNotFound))

	var submissionErr *solana.SubmissionError
	require.True(t, errors.As(err, &submissionErr))
	assert.Equal(t, solana.SubmissionErrorNotConfirmed, submissionErr.Kind)
}

func TestProvision_Cancelled(t *testing.T) {
	env := setup(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.provisioner.Provision(ctx, env.keypair, sampleConfig())
	requireStageError(t, err, StageValidateMint, StateUnsigned)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, env.ledger.Calls())
}

func TestProvision_WithoutMasterEdition(t *testing.T) {
	env := setup(t, WithMasterEdition(false), WithCommitment(solana.CommitmentFinalized))

	receipt, err := env.provisioner.Provision(context.Background(), env.keypair, sampleConfig())
	require.NoError(t, err)
	assert.Empty(t, receipt.MasterEdition)
	assert.Equal(t, "finalized", receipt.ConfirmationStatus)

	txn := env.ledger.Submitted()[0]
	ix := txn.Message.Instructions[0]
	assert.Equal(t, tokenmetadata.ProgramKey, txn.Message.Accounts[ix.Accounts[1]])
}

func TestPlan(t *testing.T) {
	env := setup(t)

	plan, err := env.provisioner.Plan(env.payer, sampleConfig())
	require.NoError(t, err)
	assert.Equal(t, sampleMetadata, base58.Encode(plan.Metadata))
	assert.Equal(t, env.mint, plan.Mint)
	assert.Equal(t, tokenmetadata.ProgramKey, plan.Instruction.Program)
	assert.Len(t, plan.Instruction.Accounts, 9)
	assert.Equal(t, 0, env.ledger.Calls())

	again, err := env.provisioner.Plan(env.payer, sampleConfig())
	require.NoError(t, err)
	assert.Equal(t, plan, again)

	summary := plan.String()
	assert.Contains(t, summary, "Metadata PDA: "+sampleMetadata+" (bump 253)")
	assert.Contains(t, summary, "Master Edition PDA: ")
	assert.Contains(t, summary, base58.Encode(env.payer)+" [writable, signer]")

	cfg := sampleConfig()
	cfg.RoyaltyBps = 10001
	_, err = env.provisioner.Plan(env.payer, cfg)
	requireStageError(t, err, StageConfigure, StateUnsigned)
	assert.True(t, errors.Is(err, tokenmetadata.ErrInvalidRoyalty))

	_, err = env.provisioner.Plan(env.payer[:4], sampleConfig())
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestConfig_Validate(t *testing.T) {
	cfg := sampleConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Name = strings.Repeat("n", 32)
	cfg.Symbol = strings.Repeat("s", 10)
	cfg.URI = strings.Repeat("u", 200)
	cfg.RoyaltyBps = 10000
	cfg.Creators = []CreatorConfig{
		{Address: sampleMint, Share: 60},
		{Address: sampleMetadata, Share: 40},
	}
	assert.NoError(t, cfg.Validate())

	cfg.Creators[0].Share = 101
	assert.True(t, errors.Is(cfg.Validate(), ErrConfiguration))

	defaults := DefaultConfig()
	assert.True(t, defaults.Mutable)
	assert.True(t, defaults.ValidateMint)
	assert.False(t, defaults.PrimarySaleHappened)
}

func TestState(t *testing.T) {
	for _, tc := range []struct {
		state    State
		name     string
		terminal bool
	}{
		{StateUnsigned, "unsigned", false},
		{StateSigned, "signed", false},
		{StateSubmitted, "submitted", false},
		{StateConfirmed, "confirmed", true},
		{StateRejected, "rejected", true},
	} {
		assert.Equal(t, tc.name, tc.state.String())
		assert.Equal(t, tc.terminal, tc.state.Terminal())
	}
	assert.Equal(t, "unknown", State(100).String())
}
