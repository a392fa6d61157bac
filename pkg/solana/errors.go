package solana

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/ybbus/jsonrpc"
)

// TransactionErrorKey is the string key returned in a transaction error.
//
// Source: https://github.com/solana-labs/solana/blob/fc2bf2d3b669d1c6655ae48b0a05f470938f3676/sdk/src/transaction/mod.rs#L37
type TransactionErrorKey string

const (
	TransactionErrorAccountInUse            TransactionErrorKey = "AccountInUse"
	TransactionErrorAccountNotFound         TransactionErrorKey = "AccountNotFound"         // The fee payer has never been credited
	TransactionErrorProgramAccountNotFound  TransactionErrorKey = "ProgramAccountNotFound"  // The invoked program does not exist on the cluster
	TransactionErrorInsufficientFundsForFee TransactionErrorKey = "InsufficientFundsForFee" // The fee payer cannot cover the fee
	TransactionErrorInvalidAccountForFee    TransactionErrorKey = "InvalidAccountForFee"
	TransactionErrorAlreadyProcessed        TransactionErrorKey = "AlreadyProcessed"
	TransactionErrorDuplicateSignature      TransactionErrorKey = "DuplicateSignature"
	TransactionErrorBlockhashNotFound       TransactionErrorKey = "BlockhashNotFound" // The blockhash expired or was never seen
	TransactionErrorInstructionError        TransactionErrorKey = "InstructionError"
	TransactionErrorMissingSignatureForFee  TransactionErrorKey = "MissingSignatureForFee"
	TransactionErrorSignatureFailure        TransactionErrorKey = "SignatureFailure"
	TransactionErrorSanitizeFailure         TransactionErrorKey = "SanitizeFailure"
)

// InstructionErrorKey is the string keys returned in an instruction error.
//
// Source: https://github.com/solana-labs/solana/blob/4e2754341514cd181ae3f373cc2548bd22e918b8/sdk/program/src/instruction.rs#L23
type InstructionErrorKey string

const (
	InstructionErrorGenericError              InstructionErrorKey = "GenericError"
	InstructionErrorInvalidArgument           InstructionErrorKey = "InvalidArgument"
	InstructionErrorInvalidInstructionData    InstructionErrorKey = "InvalidInstructionData"
	InstructionErrorInvalidAccountData        InstructionErrorKey = "InvalidAccountData"
	InstructionErrorInsufficientFunds         InstructionErrorKey = "InsufficientFunds"
	InstructionErrorIncorrectProgramID        InstructionErrorKey = "IncorrectProgramId"
	InstructionErrorMissingRequiredSignature  InstructionErrorKey = "MissingRequiredSignature"
	InstructionErrorAccountAlreadyInitialized InstructionErrorKey = "AccountAlreadyInitialized"
	InstructionErrorUninitializedAccount      InstructionErrorKey = "UninitializedAccount"
	InstructionErrorNotEnoughAccountKeys      InstructionErrorKey = "NotEnoughAccountKeys"
	InstructionErrorCustom                    InstructionErrorKey = "Custom"
	InstructionErrorInvalidSeeds              InstructionErrorKey = "InvalidSeeds"
)

// CustomError is the numerical error returned by a non-system program.
type CustomError int

func (c CustomError) Error() string {
	return fmt.Sprintf("custom program error: 0x%x", int(c))
}

// InstructionError indicates an instruction returned an error in a transaction.
type InstructionError struct {
	Index int
	Err   error
}

func (i InstructionError) Error() string {
	return fmt.Sprintf("Error processing Instruction %d: %v", i.Index, i.Err)
}

// ErrorKey returns the key of the underlying error, or InstructionErrorCustom
// for program specific errors.
func (i InstructionError) ErrorKey() InstructionErrorKey {
	if i.Err == nil {
		return ""
	}
	if i.CustomError() != nil {
		return InstructionErrorCustom
	}
	return InstructionErrorKey(i.Err.Error())
}

func (i InstructionError) CustomError() *CustomError {
	if ce, ok := i.Err.(CustomError); ok {
		return &ce
	}
	return nil
}

func (i InstructionError) toRaw() interface{} {
	if ce, ok := i.Err.(CustomError); ok {
		return []interface{}{
			json.Number(strconv.Itoa(i.Index)),
			map[string]interface{}{string(InstructionErrorCustom): json.Number(strconv.Itoa(int(ce)))},
		}
	}
	return []interface{}{json.Number(strconv.Itoa(i.Index)), i.Err.Error()}
}

// TransactionError contains the transaction error details.
type TransactionError struct {
	key              TransactionErrorKey
	instructionError *InstructionError
	raw              interface{}
}

// NewTransactionError returns a TransactionError for a non instruction error.
func NewTransactionError(key TransactionErrorKey) *TransactionError {
	return &TransactionError{
		key: key,
		raw: string(key),
	}
}

// NewInstructionTransactionError returns a TransactionError wrapping an
// error raised by the instruction at index.
func NewInstructionTransactionError(index int, err error) *TransactionError {
	ie := &InstructionError{Index: index, Err: err}
	return &TransactionError{
		key:              TransactionErrorInstructionError,
		instructionError: ie,
		raw: map[string]interface{}{
			string(TransactionErrorInstructionError): ie.toRaw(),
		},
	}
}

func (t TransactionError) Error() string {
	if t.instructionError != nil {
		return t.instructionError.Error()
	}
	return string(t.key)
}

func (t TransactionError) ErrorKey() TransactionErrorKey {
	return t.key
}

func (t TransactionError) InstructionError() *InstructionError {
	return t.instructionError
}

// JSONString returns the error in the same shape the RPC node reports it.
func (t TransactionError) JSONString() (string, error) {
	b, err := json.Marshal(t.raw)
	return string(b), err
}

// ParseTransactionError parses the JSON error returned from the "err" field in
// sendTransaction preflight results and signature statuses.
func ParseTransactionError(raw interface{}) (*TransactionError, error) {
	switch t := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return &TransactionError{key: TransactionErrorKey(t), raw: raw}, nil
	case map[string]interface{}:
		k, v, err := singleEntry(t)
		if err != nil {
			return nil, errors.Wrap(err, "invalid transaction error")
		}

		if k != string(TransactionErrorInstructionError) {
			return &TransactionError{key: TransactionErrorKey(k), raw: raw}, nil
		}

		ie, err := parseInstructionError(v)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse instruction error")
		}
		return &TransactionError{
			key:              TransactionErrorInstructionError,
			instructionError: &ie,
			raw:              raw,
		}, nil
	default:
		return nil, errors.Errorf("unhandled transaction error type: %T", raw)
	}
}

func parseInstructionError(v interface{}) (e InstructionError, err error) {
	values, ok := v.([]interface{})
	if !ok {
		return e, errors.New("unexpected instruction error format")
	}
	if len(values) != 2 {
		return e, errors.Errorf("unexpected entries in InstructionError tuple: %d", len(values))
	}

	if e.Index, err = parseJSONNumber(values[0]); err != nil {
		return e, err
	}

	switch t := values[1].(type) {
	case string:
		e.Err = errors.New(t)
	case map[string]interface{}:
		k, v, err := singleEntry(t)
		if err != nil {
			return e, errors.Wrap(err, "invalid instruction error")
		}
		if k != string(InstructionErrorCustom) {
			e.Err = errors.New(k)
			break
		}

		code, err := parseJSONNumber(v)
		if err != nil {
			return e, errors.Wrap(err, "invalid custom error code")
		}
		e.Err = CustomError(code)
	default:
		return e, errors.Errorf("unhandled instruction error type: %T", t)
	}

	return e, nil
}

// RPCErrorDetails are the structured fields a node attaches to a failed
// sendTransaction call when preflight simulation fails.
type RPCErrorDetails struct {
	TransactionError *TransactionError
	Logs             []string
}

// ParseRPCError extracts the transaction error and simulation logs from the
// data field of a jsonrpc.RPCError. Errors without structured data yield an
// empty result.
func ParseRPCError(err *jsonrpc.RPCError) (*RPCErrorDetails, error) {
	if err == nil {
		return nil, nil
	}

	details := &RPCErrorDetails{}

	data, ok := err.Data.(map[string]interface{})
	if !ok {
		return details, nil
	}

	if rawLogs, ok := data["logs"].([]interface{}); ok {
		for _, l := range rawLogs {
			if s, ok := l.(string); ok {
				details.Logs = append(details.Logs, s)
			}
		}
	}

	if raw, ok := data["err"]; ok && raw != nil {
		txErr, parseErr := ParseTransactionError(raw)
		if parseErr != nil {
			return details, parseErr
		}
		details.TransactionError = txErr
	}

	return details, nil
}

// SubmissionErrorKind categorizes why a submission was rejected.
type SubmissionErrorKind int

const (
	SubmissionErrorSimulationFailure SubmissionErrorKind = iota
	SubmissionErrorAlreadyExists
	SubmissionErrorInsufficientFunds
	SubmissionErrorProgramError
	SubmissionErrorNotConfirmed
)

var (
	ErrSimulationFailure = errors.New("simulation failure")
	ErrAlreadyExists     = errors.New("account already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrProgramError      = errors.New("program error")
)

func (k SubmissionErrorKind) String() string {
	switch k {
	case SubmissionErrorAlreadyExists:
		return "already_exists"
	case SubmissionErrorInsufficientFunds:
		return "insufficient_funds"
	case SubmissionErrorProgramError:
		return "program_error"
	case SubmissionErrorNotConfirmed:
		return "not_confirmed"
	default:
		return "simulation_failure"
	}
}

func (k SubmissionErrorKind) sentinel() error {
	switch k {
	case SubmissionErrorAlreadyExists:
		return ErrAlreadyExists
	case SubmissionErrorInsufficientFunds:
		return ErrInsufficientFunds
	case SubmissionErrorProgramError:
		return ErrProgramError
	case SubmissionErrorNotConfirmed:
		return ErrNotConfirmed
	default:
		return ErrSimulationFailure
	}
}

// SubmissionError is returned when the node rejects a transaction, either
// during preflight or once it has landed, or when the transaction never
// reaches the requested commitment level.
//
// errors.Is matches the sentinel of the error's kind, so callers can test
// with errors.Is(err, ErrAlreadyExists) without unpacking.
type SubmissionError struct {
	Kind             SubmissionErrorKind
	TransactionError *TransactionError
	Logs             []string
	Err              error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil && errors.Is(e.Err, e.Kind.sentinel()) {
		return e.Err.Error()
	}

	msg := e.Kind.sentinel().Error()
	if e.TransactionError != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.TransactionError.Error())
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

func (e *SubmissionError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Custom error code of the token metadata program's AlreadyInitialized error.
const tokenMetadataAlreadyInitialized = 3

// ClassifySubmissionError maps a rejected transaction onto a SubmissionError.
// The transaction error takes precedence and logs break ties. cause is the
// transport level error, if any.
func ClassifySubmissionError(txErr *TransactionError, logs []string, cause error) *SubmissionError {
	kind := SubmissionErrorSimulationFailure

	if txErr != nil {
		switch txErr.ErrorKey() {
		case TransactionErrorInsufficientFundsForFee, TransactionErrorAccountNotFound:
			kind = SubmissionErrorInsufficientFunds
		case TransactionErrorAlreadyProcessed, TransactionErrorDuplicateSignature:
			kind = SubmissionErrorAlreadyExists
		case TransactionErrorInstructionError:
			kind = classifyInstructionError(txErr.InstructionError(), logs)
		}
	} else if logsContain(logs, "insufficient lamports") {
		kind = SubmissionErrorInsufficientFunds
	} else if logsContain(logs, "already in use") {
		kind = SubmissionErrorAlreadyExists
	}

	return &SubmissionError{
		Kind:             kind,
		TransactionError: txErr,
		Logs:             logs,
		Err:              cause,
	}
}

func classifyInstructionError(ie *InstructionError, logs []string) SubmissionErrorKind {
	if ie == nil {
		return SubmissionErrorProgramError
	}

	switch ie.ErrorKey() {
	case InstructionErrorInsufficientFunds:
		return SubmissionErrorInsufficientFunds
	case InstructionErrorAccountAlreadyInitialized:
		return SubmissionErrorAlreadyExists
	case InstructionErrorCustom:
		if *ie.CustomError() == tokenMetadataAlreadyInitialized {
			return SubmissionErrorAlreadyExists
		}
	}

	switch {
	case logsContain(logs, "insufficient lamports"):
		return SubmissionErrorInsufficientFunds
	case logsContain(logs, "already in use"):
		return SubmissionErrorAlreadyExists
	}

	return SubmissionErrorProgramError
}

func logsContain(logs []string, substr string) bool {
	for _, l := range logs {
		if strings.Contains(strings.ToLower(l), substr) {
			return true
		}
	}
	return false
}

func singleEntry(m map[string]interface{}) (string, interface{}, error) {
	if len(m) != 1 {
		return "", nil, errors.Errorf("expected a single entry, got %d", len(m))
	}
	for k, v := range m {
		return k, v, nil
	}
	return "", nil, nil
}

func parseJSONNumber(v interface{}) (int, error) {
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, errors.Errorf("non int64 value: %v", v)
		}
		return int(n), nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, errors.Errorf("non numeric value: %v", v)
		}
		return int(n), nil
	case float64:
		return int(t), nil
	}

	return 0, errors.Errorf("non numeric value: %v", v)
}
