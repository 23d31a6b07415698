package provider

import (
	"errors"
	"fmt"
)

// TerminalError marks a provider failure that must not be retried,
// e.g. a rejected payload or a batch the provider reports as failed.
// All other provider errors are treated as transient.
type TerminalError struct {
	Op     string
	Reason string
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Terminal wraps a reason as a non-retryable provider error
func Terminal(op, reason string) error {
	return &TerminalError{Op: op, Reason: reason}
}

// IsTerminal reports whether err is (or wraps) a TerminalError
func IsTerminal(err error) bool {
	var te *TerminalError
	return errors.As(err, &te)
}
