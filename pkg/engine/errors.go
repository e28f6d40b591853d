package engine

import (
	"errors"
	"fmt"

	"github.com/odvcencio/webrunner/pkg/plan"
)

var (
	// ErrNotFound reports an unknown session id.
	ErrNotFound = errors.New("session not found")

	// ErrSessionConflict reports a start or stop request against a session
	// in the wrong lifecycle state.
	ErrSessionConflict = errors.New("session state conflict")

	// ErrBusy reports that the configured concurrent execution limit is
	// reached.
	ErrBusy = errors.New("max concurrent executions reached")
)

// ResolutionError means the resolver exhausted every candidate for a target
// without finding a ready element.
type ResolutionError struct {
	Target string
	Kind   plan.ActionKind
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("could not find ready element for %s target %q", e.Kind, e.Target)
}

// IsResolutionError reports whether err came from an exhausted resolver.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}

// VerificationError means an explicit verify assertion did not hold.
type VerificationError struct {
	Message string
}

func (e *VerificationError) Error() string {
	return e.Message
}

// IsVerificationError reports whether err is a failed assertion.
func IsVerificationError(err error) bool {
	var ve *VerificationError
	return errors.As(err, &ve)
}
