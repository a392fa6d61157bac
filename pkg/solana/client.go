package solana

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ybbus/jsonrpc"

	"github.com/code-payments/metadata-provisioner/pkg/retry"
	"github.com/code-payments/metadata-provisioner/pkg/retry/backoff"
)

const (
	ticksPerSec  = 160
	ticksPerSlot = 64
	slotsPerSec  = ticksPerSec / ticksPerSlot

	// PollRate is the rate at which signature statuses are polled.
	PollRate = (time.Second / slotsPerSec) / 2

	// Poll rate is ~2x the slot rate, and a blockhash is valid for ~150 slots,
	// so anything past this is unlikely to ever land.
	sigStatusPollLimit = 2 * 150

	// Reference: https://github.com/solana-labs/solana/blob/14d793b22c1571fb092d5822189d5b64f32605e6/client/src/rpc_custom_error.rs#L10
	sendTransactionPreflightFailureCode = -32002
	signatureVerificationFailureCode    = -32003
	signatureLenMismatchCode            = -32013
	unsupportedTransactionVersionCode   = -32015
	invalidParamCode                    = -32602
)

type Commitment struct {
	Commitment string `json:"commitment"`
}

const (
	confirmationStatusProcessed = "processed"
	confirmationStatusConfirmed = "confirmed"
	confirmationStatusFinalized = "finalized"
)

var (
	CommitmentProcessed = Commitment{Commitment: confirmationStatusProcessed}
	CommitmentConfirmed = Commitment{Commitment: confirmationStatusConfirmed}
	CommitmentFinalized = Commitment{Commitment: confirmationStatusFinalized}
)

// ParseCommitment maps a commitment level name onto a Commitment.
func ParseCommitment(level string) (Commitment, error) {
	switch level {
	case confirmationStatusProcessed:
		return CommitmentProcessed, nil
	case confirmationStatusConfirmed:
		return CommitmentConfirmed, nil
	case confirmationStatusFinalized:
		return CommitmentFinalized, nil
	}
	return Commitment{}, errors.Errorf("unknown commitment level: %q", level)
}

var (
	ErrNoAccountInfo     = errors.New("no account info")
	ErrSignatureNotFound = errors.New("signature not found")
	ErrNotConfirmed      = errors.New("transaction not confirmed")
)

// AccountInfo contains the Solana account information (not to be confused with a TokenAccount)
type AccountInfo struct {
	Data       []byte
	Owner      ed25519.PublicKey
	Lamports   uint64
	Executable bool
}

type SignatureStatus struct {
	Slot        uint64
	ErrorResult *TransactionError

	// Confirmations will be nil if the transaction has been rooted.
	Confirmations      *int
	ConfirmationStatus string
}

func (s SignatureStatus) Confirmed() bool {
	if s.Finalized() {
		return true
	}

	if s.ConfirmationStatus == confirmationStatusConfirmed {
		return true
	}

	return *s.Confirmations >= 1
}

func (s SignatureStatus) Finalized() bool {
	return s.Confirmations == nil || s.ConfirmationStatus == confirmationStatusFinalized
}

// Reached reports whether the status satisfies the commitment level.
func (s SignatureStatus) Reached(commitment Commitment) bool {
	switch commitment {
	case CommitmentConfirmed:
		return s.Confirmed()
	case CommitmentFinalized:
		return s.Finalized()
	default:
		return true
	}
}

// ConfirmationReceipt describes a transaction that reached the requested
// commitment level.
type ConfirmationReceipt struct {
	Signature          Signature
	Slot               uint64
	ConfirmationStatus string
}

// Client provides an interaction with the Solana JSON RPC API.
//
// Reference: https://docs.solana.com/apps/jsonrpc-api
type Client interface {
	GetAccountInfo(ed25519.PublicKey, Commitment) (AccountInfo, error)
	GetLatestBlockhash() (Blockhash, error)
	GetSignatureStatus(Signature, Commitment) (*SignatureStatus, error)
	GetSignatureStatuses([]Signature) ([]*SignatureStatus, error)
	SubmitTransaction(Transaction, Commitment) (Signature, error)
	SubmitAndConfirmTransaction(Transaction, Commitment) (*ConfirmationReceipt, error)
}

type client struct {
	log    *logrus.Entry
	client jsonrpc.RPCClient

	pollRate  time.Duration
	pollLimit uint

	blockMu   sync.RWMutex
	blockhash Blockhash
	lastWrite time.Time
}

// New returns a client using the specified endpoint.
func New(endpoint string) Client {
	return newClient(endpoint, nil)
}

func newClient(endpoint string, opts *jsonrpc.RPCClientOpts) *client {
	return &client{
		log:       logrus.StandardLogger().WithField("type", "solana/client"),
		client:    jsonrpc.NewClientWithOpts(endpoint, opts),
		pollRate:  PollRate,
		pollLimit: sigStatusPollLimit,
	}
}

func (c *client) GetLatestBlockhash() (hash Blockhash, err error) {
	// Refresh on a randomized window so concurrent callers don't all hit the
	// node on the same tick.
	window := time.Duration(float64(2*time.Second) * (0.8 + rand.Float64()))

	c.blockMu.RLock()
	if time.Since(c.lastWrite) < window {
		hash = c.blockhash
	}
	c.blockMu.RUnlock()

	if hash != (Blockhash{}) {
		return hash, nil
	}

	type response struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}

	var resp response
	if err := c.client.CallFor(&resp, "getLatestBlockhash"); err != nil {
		return hash, errors.Wrapf(err, "getLatestBlockhash() failed to send request")
	}

	hashBytes, err := base58.Decode(resp.Value.Blockhash)
	if err != nil {
		return hash, errors.Wrap(err, "invalid base58 encoded hash in response")
	}
	if len(hashBytes) != len(hash) {
		return hash, errors.Errorf("invalid blockhash length: %d", len(hashBytes))
	}

	copy(hash[:], hashBytes)

	c.blockMu.Lock()
	c.blockhash = hash
	c.lastWrite = time.Now()
	c.blockMu.Unlock()

	return hash, nil
}

// SubmitTransaction sends the transaction with preflight simulation enabled at
// the given commitment. A rejection from the node is returned as a
// *SubmissionError. The transaction is sent exactly once.
func (c *client) SubmitTransaction(txn Transaction, commitment Commitment) (Signature, error) {
	if !txn.IsSigned() {
		return Signature{}, ErrMissingRequiredSignature
	}

	sig := txn.Signatures[0]

	config := struct {
		Encoding            string `json:"encoding"`
		SkipPreflight       bool   `json:"skipPreflight"`
		PreflightCommitment string `json:"preflightCommitment"`
	}{
		Encoding:            "base64",
		SkipPreflight:       false,
		PreflightCommitment: commitment.Commitment,
	}

	var sigStr string
	err := c.client.CallFor(&sigStr, "sendTransaction", base64.StdEncoding.EncodeToString(txn.Marshal()), config)
	if err == nil {
		return sig, nil
	}

	jsonRPCErr, ok := err.(*jsonrpc.RPCError)
	if !ok {
		return sig, errors.Wrapf(err, "sendTransaction() failed to send request")
	}

	details, parseErr := ParseRPCError(jsonRPCErr)
	if parseErr != nil {
		c.log.WithError(parseErr).WithField("method", "sendTransaction").Warn("failed to parse rpc error details")
	}

	if !isRejectionCode(jsonRPCErr.Code) && (details == nil || details.TransactionError == nil) {
		return sig, errors.Wrapf(err, "sendTransaction() rejected by node")
	}

	var txErr *TransactionError
	var logs []string
	if details != nil {
		txErr = details.TransactionError
		logs = details.Logs
	}

	submissionErr := ClassifySubmissionError(txErr, logs, jsonRPCErr)
	c.log.WithFields(logrus.Fields{
		"method":    "sendTransaction",
		"signature": base58.Encode(sig[:]),
		"kind":      submissionErr.Kind.String(),
	}).Debug("transaction rejected")

	return sig, submissionErr
}

// SubmitAndConfirmTransaction submits the transaction and polls its status
// until the commitment level is reached, the transaction fails, or polling
// gives up. A transaction that lands with an error, or that never reaches the
// commitment level, is returned as a *SubmissionError.
func (c *client) SubmitAndConfirmTransaction(txn Transaction, commitment Commitment) (*ConfirmationReceipt, error) {
	sig, err := c.SubmitTransaction(txn, commitment)
	if err != nil {
		return nil, err
	}

	status, err := c.GetSignatureStatus(sig, commitment)
	if errors.Is(err, ErrSignatureNotFound) || errors.Is(err, ErrNotConfirmed) {
		return nil, &SubmissionError{Kind: SubmissionErrorNotConfirmed, Err: err}
	}
	if err != nil {
		return nil, err
	}

	if status.ErrorResult != nil {
		return nil, ClassifySubmissionError(status.ErrorResult, nil, nil)
	}

	return &ConfirmationReceipt{
		Signature:          sig,
		Slot:               status.Slot,
		ConfirmationStatus: status.ConfirmationStatus,
	}, nil
}

// isRejectionCode reports whether the node refused the transaction itself,
// rather than failing to serve the request.
func isRejectionCode(code int) bool {
	switch code {
	case sendTransactionPreflightFailureCode,
		signatureVerificationFailureCode,
		signatureLenMismatchCode,
		unsupportedTransactionVersionCode,
		invalidParamCode:
		return true
	}
	return false
}

func (c *client) GetAccountInfo(account ed25519.PublicKey, commitment Commitment) (accountInfo AccountInfo, err error) {
	type rpcResponse struct {
		Value *struct {
			Lamports   uint64   `json:"lamports"`
			Owner      string   `json:"owner"`
			Data       []string `json:"data"`
			Executable bool     `json:"executable"`
		} `json:"value"`
	}

	rpcConfig := struct {
		Commitment string `json:"commitment"`
		Encoding   string `json:"encoding"`
	}{
		Commitment: commitment.Commitment,
		Encoding:   "base64",
	}

	var resp rpcResponse
	if err := c.client.CallFor(&resp, "getAccountInfo", base58.Encode(account[:]), rpcConfig); err != nil {
		return accountInfo, errors.Wrap(err, "getAccountInfo() failed to send request")
	}

	if resp.Value == nil {
		return accountInfo, ErrNoAccountInfo
	}

	accountInfo.Owner, err = base58.Decode(resp.Value.Owner)
	if err != nil {
		return accountInfo, errors.Wrap(err, "invalid base58 encoded owner")
	}

	if len(resp.Value.Data) == 0 {
		return accountInfo, errors.New("missing account data in response")
	}
	accountInfo.Data, err = base64.StdEncoding.DecodeString(resp.Value.Data[0])
	if err != nil {
		return accountInfo, errors.Wrap(err, "invalid base64 encoded data")
	}

	accountInfo.Lamports = resp.Value.Lamports
	accountInfo.Executable = resp.Value.Executable

	return accountInfo, nil
}

// GetSignatureStatus polls until the signature reaches the commitment level
// or lands with an error. ErrSignatureNotFound is returned if the node never
// sees the signature, ErrNotConfirmed if it never reaches the commitment.
func (c *client) GetSignatureStatus(sig Signature, commitment Commitment) (*SignatureStatus, error) {
	var s *SignatureStatus
	errConfirmationsNotReached := errors.New("confirmations not reached")

	_, err := retry.Retry(
		func() error {
			statuses, err := c.GetSignatureStatuses([]Signature{sig})
			if err != nil {
				return err
			}

			s = statuses[0]
			if s == nil {
				return ErrSignatureNotFound
			}

			// Failed transactions are terminal.
			if s.ErrorResult != nil {
				return nil
			}

			if s.Reached(commitment) {
				return nil
			}

			return errConfirmationsNotReached
		},
		retry.RetriableErrors(ErrSignatureNotFound, errConfirmationsNotReached),
		retry.Limit(c.pollLimit),
		retry.BackoffWithJitter(backoff.Constant(c.pollRate), c.pollRate, 0.1),
	)
	if err == errConfirmationsNotReached {
		return s, errors.Wrapf(ErrNotConfirmed, "%s not reached", commitment.Commitment)
	}
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (c *client) GetSignatureStatuses(sigs []Signature) ([]*SignatureStatus, error) {
	b58Sigs := make([]string, len(sigs))
	for i := range sigs {
		b58Sigs[i] = base58.Encode(sigs[i][:])
	}

	req := struct {
		SearchTransactionHistory bool `json:"searchTransactionHistory"`
	}{
		SearchTransactionHistory: true,
	}

	type signatureStatus struct {
		Slot               uint64          `json:"slot"`
		Confirmations      *int            `json:"confirmations"`
		ConfirmationStatus string          `json:"confirmationStatus"`
		Err                json.RawMessage `json:"err"`
	}

	type rpcResp struct {
		Context struct {
			Slot int `json:"slot"`
		} `json:"context"`
		Value []*signatureStatus `json:"value"`
	}

	var resp rpcResp
	if err := c.client.CallFor(&resp, "getSignatureStatuses", b58Sigs, req); err != nil {
		return nil, errors.Wrap(err, "getSignatureStatuses() failed to send request")
	}

	statuses := make([]*SignatureStatus, len(sigs))
	for i, v := range resp.Value {
		if v == nil || i >= len(statuses) {
			continue
		}

		statuses[i] = &SignatureStatus{
			Slot:               v.Slot,
			Confirmations:      v.Confirmations,
			ConfirmationStatus: v.ConfirmationStatus,
		}

		if len(v.Err) > 0 && !bytes.Equal(v.Err, []byte("null")) {
			d := json.NewDecoder(bytes.NewBuffer(v.Err))
			d.UseNumber()

			var txError interface{}
			if err := d.Decode(&txError); err != nil {
				return nil, errors.Wrap(err, "failed to parse transaction result")
			}

			txErr, err := ParseTransactionError(txError)
			if err != nil {
				return nil, errors.Wrap(err, "failed to parse transaction result")
			}
			statuses[i].ErrorResult = txErr
		}
	}

	return statuses, nil
}
