package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ledger service.
var (
	ErrValidation          = errors.New("invalid submission")
	ErrConfirmationTimeout = errors.New("confirmation timed out")
	ErrUnknownHandle       = errors.New("unknown submission handle")
)

// ValidationError reports a rejected submission. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
