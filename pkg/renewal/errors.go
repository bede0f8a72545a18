package renewal

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument classifies invalid Start arguments.
	ErrInvalidArgument = errors.New("renewal invalid argument")
	// ErrPanic wraps a panic recovered from a renewal attempt.
	ErrPanic = errors.New("renewal attempt panicked")
)

func renewalError(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}
