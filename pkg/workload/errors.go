package workload

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation classifies invalid workload configuration.
	ErrValidation = errors.New("workload validation error")
	// ErrSetup classifies table creation and bulk load failures. Fatal.
	ErrSetup = errors.New("workload setup error")
	// ErrWaitAborted is returned when the poll sleep ends for any reason other
	// than explicit cancellation.
	ErrWaitAborted = errors.New("workload wait aborted")
)

func workloadError(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}

func setupError(step string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrSetup, step, cause)
}
