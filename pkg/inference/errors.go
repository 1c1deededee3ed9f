package inference

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrMalformedOutput is returned when output buffers break the length invariant.
	ErrMalformedOutput = errors.New("inference: malformed output buffers")

	// ErrEngineClosed is returned when Infer is called after Close.
	ErrEngineClosed = errors.New("inference: engine closed")

	// ErrModelNotFound is returned when the model file does not exist.
	ErrModelNotFound = errors.New("inference: model not found")

	// ErrModelLoad is returned when the model file cannot be loaded.
	ErrModelLoad = errors.New("inference: model load failed")

	// ErrTensorShape is returned when the tensor does not match the model input.
	ErrTensorShape = errors.New("inference: tensor shape mismatch")
)

// EngineError wraps an error with backend context.
type EngineError struct {
	Backend string
	Err     error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("inference [%s]: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with backend context.
func WrapError(backend string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Backend: backend, Err: err}
}
