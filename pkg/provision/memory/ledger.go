package memory

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/code-payments/metadata-provisioner/pkg/solana"
	"github.com/code-payments/metadata-provisioner/pkg/solana/token"
	"github.com/code-payments/metadata-provisioner/pkg/solana/tokenmetadata"
)

const (
	// FeeLamports is charged to the fee payer per signature.
	FeeLamports = 5000
	// MetadataRentLamports is the rent exempt balance of a new metadata
	// account.
	MetadataRentLamports = 5616720
)

// Ledger is an in memory stand-in for a Solana RPC node. It verifies
// signatures and simulates the create metadata instruction: the metadata
// account is created on first submission and rejected as already in use on
// any later one.
//
// Fee payers without a balance set via SetBalance are treated as funded.
type Ledger struct {
	mu sync.Mutex

	blockhash     solana.Blockhash
	blockhashErr  error
	nextSubmitErr error

	accounts map[string]solana.AccountInfo
	balances map[string]uint64
	slot     uint64

	calls     int
	submitted []solana.Transaction
}

// NewLedger returns a new in memory Ledger with a fixed blockhash.
func NewLedger() *Ledger {
	return &Ledger{
		blockhash: sha256.Sum256([]byte("memory-ledger")),
		accounts:  make(map[string]solana.AccountInfo),
		balances:  make(map[string]uint64),
		slot:      1,
	}
}

// SetAccount stores account data at address.
func (l *Ledger) SetAccount(address ed25519.PublicKey, info solana.AccountInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.accounts[string(address)] = info
}

// SetMint stores mint at address, owned by the SPL token program.
func (l *Ledger) SetMint(address ed25519.PublicKey, mint *token.Mint) {
	l.SetAccount(address, solana.AccountInfo{
		Data:     mint.Marshal(),
		Owner:    token.ProgramKey,
		Lamports: 1461600,
	})
}

// SetBalance sets the lamports available to account when paying fees.
func (l *Ledger) SetBalance(account ed25519.PublicKey, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[string(account)] = lamports
}

// SetBlockhashError makes GetLatestBlockhash fail with err. A nil err clears it.
func (l *Ledger) SetBlockhashError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.blockhashErr = err
}

// RejectNextSubmission makes the next submission fail with err.
func (l *Ledger) RejectNextSubmission(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextSubmitErr = err
}

// Calls returns the number of ledger calls made.
func (l *Ledger) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.calls
}

// Submitted returns every transaction accepted for submission, including
// those that were later rejected.
func (l *Ledger) Submitted() []solana.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]solana.Transaction(nil), l.submitted...)
}

// Blockhash returns the blockhash handed out by GetLatestBlockhash.
func (l *Ledger) Blockhash() solana.Blockhash {
	return l.blockhash
}

// GetAccountInfo implements provision.Ledger.GetAccountInfo
func (l *Ledger) GetAccountInfo(address ed25519.PublicKey, _ solana.Commitment) (solana.AccountInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++

	info, ok := l.accounts[string(address)]
	if !ok {
		return solana.AccountInfo{}, solana.ErrNoAccountInfo
	}
	return info, nil
}

// GetLatestBlockhash implements provision.Ledger.GetLatestBlockhash
func (l *Ledger) GetLatestBlockhash() (solana.Blockhash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++

	if l.blockhashErr != nil {
		return solana.Blockhash{}, l.blockhashErr
	}
	return l.blockhash, nil
}

// SubmitAndConfirmTransaction implements provision.Ledger.SubmitAndConfirmTransaction
func (l *Ledger) SubmitAndConfirmTransaction(txn solana.Transaction, commitment solana.Commitment) (*solana.ConfirmationReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++

	if err := txn.Verify(); err != nil {
		return nil, errors.Wrap(err, "invalid transaction signatures")
	}
	if txn.Message.RecentBlockhash != l.blockhash {
		return nil, solana.ClassifySubmissionError(
			solana.NewTransactionError(solana.TransactionErrorBlockhashNotFound),
			nil,
			errors.New("blockhash not found"),
		)
	}

	l.submitted = append(l.submitted, txn)

	if err := l.nextSubmitErr; err != nil {
		l.nextSubmitErr = nil
		return nil, err
	}

	if err := l.chargeFees(txn); err != nil {
		return nil, err
	}

	for i, ix := range txn.Message.Instructions {
		if err := l.simulateInstruction(txn, i, ix); err != nil {
			return nil, err
		}
	}

	l.slot++

	var sig solana.Signature
	copy(sig[:], txn.Signature())
	return &solana.ConfirmationReceipt{
		Signature:          sig,
		Slot:               l.slot,
		ConfirmationStatus: commitment.Commitment,
	}, nil
}

func (l *Ledger) chargeFees(txn solana.Transaction) error {
	payer := string(txn.Payer())
	balance, ok := l.balances[payer]
	if !ok {
		return nil
	}

	required := uint64(FeeLamports*len(txn.Signatures)) + MetadataRentLamports
	if balance < required {
		return solana.ClassifySubmissionError(
			solana.NewInstructionTransactionError(0, solana.CustomError(1)),
			[]string{fmt.Sprintf("Transfer: insufficient lamports %d, need %d", balance, required)},
			errors.New("insufficient funds"),
		)
	}

	l.balances[payer] = balance - required
	return nil
}

func (l *Ledger) simulateInstruction(txn solana.Transaction, index int, ix solana.CompiledInstruction) error {
	accounts := txn.Message.Accounts
	if int(ix.ProgramIndex) >= len(accounts) || !tokenmetadata.ProgramKey.Equal(accounts[ix.ProgramIndex]) {
		return nil
	}
	if len(ix.Accounts) == 0 || int(ix.Accounts[0]) >= len(accounts) {
		return solana.ClassifySubmissionError(
			solana.NewInstructionTransactionError(index, errors.New(string(solana.InstructionErrorNotEnoughAccountKeys))),
			nil,
			errors.New("not enough account keys"),
		)
	}

	metadata := accounts[ix.Accounts[0]]
	if _, exists := l.accounts[string(metadata)]; exists {
		return solana.ClassifySubmissionError(
			solana.NewInstructionTransactionError(index, solana.CustomError(0)),
			[]string{"Allocate: account already in use"},
			errors.New("account already in use"),
		)
	}

	l.accounts[string(metadata)] = solana.AccountInfo{
		Data:     ix.Data,
		Owner:    tokenmetadata.ProgramKey,
		Lamports: MetadataRentLamports,
	}
	return nil
}
