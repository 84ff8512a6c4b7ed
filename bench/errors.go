package bench

import (
	"fmt"

	"github.com/pkg/errors"
)

// Every error returned by Load or Run is a *FatalError wrapping one of
// these. None of them is recoverable: the measurement is void.
var (
	ErrUnsupportedOperation = errors.New("operation unimplemented")
	ErrUnsupportedMode      = errors.New("unsupported workload mode")
	ErrFieldCount           = errors.New("only fieldcount=1 is supported")
	ErrInvalidOperation     = errors.New("invalid operation from workload")
	ErrBackend              = errors.New("backend failure")
)

// FatalError reports the condition that aborted a phase. Op names the
// failing call: an operation kind such as "read", or "sync".
type FatalError struct {
	Backend   string
	Phase     string
	Op        string
	Completed int
	Err       error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s %s: %s failed after %d ops: %v",
		e.Backend, e.Phase, e.Op, e.Completed, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// opSync labels a failed sync in FatalError.Op.
const opSync = "sync"

// backendError marks a failure reported by the adapter while keeping the
// adapter's own error in the chain.
type backendError struct {
	call string
	err  error
}

func (e *backendError) Error() string {
	return e.call + ": " + e.err.Error()
}

func (e *backendError) Unwrap() error {
	return e.err
}

func (e *backendError) Is(target error) bool {
	return target == ErrBackend
}

func backendFailure(call string, err error) error {
	if err == nil {
		return nil
	}
	return &backendError{call: call, err: err}
}
