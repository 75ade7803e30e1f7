package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for simulation operations.
var (
	// ErrInvalidState indicates a state vector with invalid dimensions or values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrStepTooSmall indicates the retry step shrank below the configured minimum.
	ErrStepTooSmall = errors.New("dynamo: step size below minimum")

	// ErrRetriesExhausted indicates a step kept producing negative populations.
	ErrRetriesExhausted = errors.New("dynamo: step retries exhausted")

	// ErrDimensionMismatch indicates mismatched state/model dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")

	// ErrIntegrator is the sentinel matched by every *IntegratorError.
	ErrIntegrator = errors.New("dynamo: integrator failure")
)

// Status is an integrator return code.
type Status int

const (
	StatusSuccess Status = iota
	// StatusMemNull: the integrator was used without being initialised.
	StatusMemNull
	// StatusIllInput: tolerances or time arguments were invalid.
	StatusIllInput
	// StatusTooMuchWork: the internal step budget ran out before tTarget.
	StatusTooMuchWork
	// StatusConvFailure: the step size collapsed below machine precision.
	StatusConvFailure
	// StatusRHSFailure: the derivative produced NaN or Inf.
	StatusRHSFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusMemNull:
		return "memory not initialised"
	case StatusIllInput:
		return "illegal input"
	case StatusTooMuchWork:
		return "too much work"
	case StatusConvFailure:
		return "convergence failure"
	case StatusRHSFailure:
		return "derivative failure"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// IntegratorError reports a non-success integrator status.
type IntegratorError struct {
	Status Status
	Time   float64
}

func (e *IntegratorError) Error() string {
	return fmt.Sprintf("dynamo: integrator %s at t=%.6g", e.Status, e.Time)
}

func (e *IntegratorError) Is(target error) bool {
	return target == ErrIntegrator
}

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Trajectory int
	Step       int
	Time       float64
	State      State
	Wrapped    error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("trajectory %d step %d (t=%.6g): %v", e.Trajectory, e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
