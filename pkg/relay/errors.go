package relay

import (
	"errors"
	"fmt"
)

// Configuration errors
var (
	ErrInvalidServerNumber      = errors.New("server number must be 1 or 2")
	ErrInvalidRelayMode         = errors.New("invalid relay mode")
	ErrInvalidConfiguredPrimary = errors.New("configured primary must be 1 or 2")
	ErrNoPartner                = errors.New("partner handle cannot be empty")
	ErrMissingDependency        = errors.New("missing relay dependency")
)

// Runtime errors
var (
	// ErrLocalStore wraps every failure of the local store; it aborts the poll cycle
	ErrLocalStore = errors.New("local store fault")
	// ErrCorruptRecord marks partner data that failed to decode or validate
	ErrCorruptRecord = errors.New("corrupt relay record")
	// ErrInvariant is matched by every InvariantError
	ErrInvariant = errors.New("relay invariant violated")
	// ErrDriverStopped is returned by Driver.Do once the driver has exited
	ErrDriverStopped = errors.New("relay driver stopped")
)

// InvariantError reports a programming error in the caller or the relay itself.
// It is never retried.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("relay invariant violated in %s: %s", e.Op, e.Detail)
}

// Is makes errors.Is(err, ErrInvariant) true for any InvariantError
func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariant
}

func invariantf(op, format string, args ...any) error {
	return &InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

func localStoreErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrLocalStore, op, err)
}

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrCorruptRecord}, args...)...)
}
