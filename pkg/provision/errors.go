package provision

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrConfiguration indicates missing or malformed key material or asset
	// configuration.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrNetwork indicates the ledger endpoint could not be reached.
	ErrNetwork = errors.New("network error")
	// ErrInvalidMint indicates the mint failed pre-validation.
	ErrInvalidMint = errors.New("invalid mint")
)

// Stage names a step of the provisioning workflow.
type Stage string

const (
	StageConfigure      Stage = "configure"
	StageDerive         Stage = "derive"
	StageValidateMint   Stage = "validate-mint"
	StageBuild          Stage = "build"
	StageFetchBlockhash Stage = "fetch-blockhash"
	StageSign           Stage = "sign"
	StageSubmit         Stage = "submit"
)

// StageError is returned by Provision and names the stage that failed along
// with the state the transaction had reached.
type StageError struct {
	Stage Stage
	State State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// markedError attaches a sentinel to a cause so both match errors.Is.
type markedError struct {
	sentinel error
	cause    error
}

func mark(sentinel, cause error) error {
	return &markedError{sentinel: sentinel, cause: cause}
}

func (e *markedError) Error() string {
	return fmt.Sprintf("%v: %v", e.sentinel, e.cause)
}

func (e *markedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *markedError) Unwrap() error {
	return e.cause
}
