package preset

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
)

// Stage names the step of the pipeline an error came from.
type Stage string

const (
	StagePacking    Stage = "packing"
	StageNonce      Stage = "nonce"
	StageHash       Stage = "hash computation"
	StageSigning    Stage = "signing"
	StageSubmission Stage = "submission"
)

type Kind int

const (
	// KindTransport is a node that could not be reached or answered with an
	// error unrelated to contract execution.
	KindTransport Kind = iota
	// KindReverted is a contract revert, either in eth_call or in a mined
	// transaction.
	KindReverted
	// KindPrecondition means setup is incomplete.
	KindPrecondition
	// KindValidation is malformed user input or an out of range value.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindReverted:
		return "reverted"
	case KindPrecondition:
		return "precondition"
	case KindValidation:
		return "validation"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var (
	ErrOperationReverted = errors.New("user operation reverted")
	ErrHashComputation   = errors.New("user operation hash computation failed")
	ErrPrecondition      = errors.New("precondition not met")
	ErrInvalidInput      = errors.New("invalid input")
)

// Error reports a pipeline failure. Receipt is set when a handleOps
// transaction was mined with status 0.
type Error struct {
	Stage   Stage
	Kind    Kind
	Err     error
	Receipt *types.Receipt
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is maps the kind and stage onto the package sentinels so callers can use
// errors.Is without inspecting the struct.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrOperationReverted:
		return e.Kind == KindReverted && e.Stage == StageSubmission
	case ErrHashComputation:
		return e.Stage == StageHash
	case ErrPrecondition:
		return e.Kind == KindPrecondition
	case ErrInvalidInput:
		return e.Kind == KindValidation
	}
	return false
}

func newError(stage Stage, kind Kind, err error) *Error {
	return &Error{Stage: stage, Kind: kind, Err: err}
}
