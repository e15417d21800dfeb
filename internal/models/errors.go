package models

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}

// StepError wraps a failure with the pipeline step and source location it
// came from. The whole step is aborted; nothing is retried.
type StepError struct {
	Step     string
	Location string
	Err      error
}

// NewStepError wraps err, recording the caller's file:line as the origin
func NewStepError(step string, err error) *StepError {
	location := "unknown"
	if _, file, line, ok := runtime.Caller(1); ok {
		location = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return &StepError{Step: step, Location: location, Err: err}
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed at [%s]: %v", e.Step, e.Location, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// IsTransient returns false; the caller must fix the input and re-run
func (e *StepError) IsTransient() bool {
	return false
}
