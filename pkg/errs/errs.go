// Package errs provides the shared error taxonomy used across ClawMiner's
// subsystems, plus a context-wrapping helper in the style of the legacy
// pkg/utils error helper it replaces.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the daemon's shared error taxonomy. Callers
// should compare against these with errors.Is rather than string-matching.
var (
	// ErrConfigInvalid is fatal at startup.
	ErrConfigInvalid = errors.New("config invalid")
	// ErrStoreUnavailable is fatal at startup; non-fatal per-operation in
	// steady state, where it is returned to the caller instead.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrKeyInvalid is surfaced from wallet APIs; recoverable.
	ErrKeyInvalid = errors.New("key invalid")
	// ErrNetworkTransient covers BHS / broadcaster / peer dial failures;
	// retried with backoff, never propagated beyond structured logging.
	ErrNetworkTransient = errors.New("network transient error")
	// ErrValidationReject marks a peer block or message that failed
	// signature, hash, or difficulty checks.
	ErrValidationReject = errors.New("validation rejected")
	// ErrProtocolViolation marks a malformed payload.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrUnavailable marks a disabled subsystem (e.g. header sync with no
	// BHS URL configured). Returned to HTTP callers as a normal response
	// flag, not a 5xx.
	ErrUnavailable = errors.New("subsystem unavailable")
	// ErrCapacity marks a saturated mempool or settlement queue.
	ErrCapacity = errors.New("capacity exceeded")
)

// Wrap adds context to an error message. It returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
