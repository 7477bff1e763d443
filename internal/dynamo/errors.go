package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for simulation operations.
var (
	// ErrInvalidState indicates a state vector with invalid dimensions or values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrStepTooSmall indicates adaptive timestep became too small.
	ErrStepTooSmall = errors.New("dynamo: adaptive timestep below minimum")

	// ErrDimensionMismatch indicates mismatched state/system dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")

	// ErrModelDefinition indicates a malformed topology found during initialization.
	ErrModelDefinition = errors.New("dynamo: model definition error")

	// ErrNumericDegeneracy indicates a singular solve or ill-defined geometry.
	ErrNumericDegeneracy = errors.New("dynamo: numeric degeneracy")

	// ErrConvergence indicates an iterative solver exhausted its iteration cap.
	ErrConvergence = errors.New("dynamo: convergence failure")

	// ErrNotInitialized indicates use of a system before its initialization pass.
	ErrNotInitialized = errors.New("dynamo: system not initialized")
)

// ModelError reports a model definition problem at a given element path.
type ModelError struct {
	Path   string
	Reason string
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model definition: %s: %s", e.Path, e.Reason)
}

func (e *ModelError) Unwrap() error { return ErrModelDefinition }

// Modelf builds a ModelError.
func Modelf(path, format string, args ...any) error {
	return &ModelError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// NumericError reports a numerical degeneracy that has no neutral fallback.
type NumericError struct {
	Op     string
	Reason string
}

func (e *NumericError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *NumericError) Unwrap() error { return ErrNumericDegeneracy }

// ProgrammingError is raised via panic when a cache is read outside its
// lifecycle. It is never returned as an ordinary error.
type ProgrammingError struct {
	Where  string
	Reason string
}

func (e *ProgrammingError) Error() string {
	return fmt.Sprintf("programming error in %s: %s", e.Where, e.Reason)
}

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d (t=%.6f): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
