// Package failure defines the error taxonomy shared by the message pipeline.
//
// Usage errors are handled inside the command interpreter and never appear
// here. Transient errors are retried inside the inference gateway and the
// audio pipeline; only terminal errors and model unavailability reach the
// caller, and persistence errors never leave the dispatcher.
package failure

import (
	"errors"
	"fmt"
)

// ErrModelUnavailable is matched (errors.Is) by every error that signals the
// whole inference backend chain is exhausted.
var ErrModelUnavailable = errors.New("all inference backends unavailable")

// TransientInfraError is a network timeout, 5xx, or backend cold start. It is
// safe to retry.
type TransientInfraError struct {
	Op  string
	Err error
}

func (e *TransientInfraError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientInfraError) Unwrap() error { return e.Err }

// TerminalInfraError must not be retried. Guidance is a user-facing sentence
// telling the user what to do next.
type TerminalInfraError struct {
	Op       string
	Err      error
	Guidance string
}

func (e *TerminalInfraError) Error() string {
	return fmt.Sprintf("%s: terminal: %v", e.Op, e.Err)
}

func (e *TerminalInfraError) Unwrap() error { return e.Err }

// PersistenceError is a context-store write failure. It is logged and never
// alters an already dispatched response.
type PersistenceError struct {
	UserID string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist turn for %s: %v", e.UserID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DeliveryError is returned when the messaging platform rejects or cannot
// receive an outbound reply.
type DeliveryError struct {
	Channel   string
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s on %s: %v", e.Recipient, e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientInfraError.
func Transient(op string, err error) error {
	return &TransientInfraError{Op: op, Err: err}
}

// Terminal wraps err as a TerminalInfraError with user guidance.
func Terminal(op string, err error, guidance string) error {
	return &TerminalInfraError{Op: op, Err: err, Guidance: guidance}
}

// IsTransient reports whether err (or anything it wraps) is transient.
func IsTransient(err error) bool {
	var t *TransientInfraError
	return errors.As(err, &t)
}

// IsTerminal reports whether err (or anything it wraps) is terminal.
func IsTerminal(err error) bool {
	var t *TerminalInfraError
	return errors.As(err, &t)
}

// Guidance returns the user-facing guidance of the first TerminalInfraError
// in err's chain, or fallback when there is none.
func Guidance(err error, fallback string) string {
	var t *TerminalInfraError
	if errors.As(err, &t) && t.Guidance != "" {
		return t.Guidance
	}
	return fallback
}
