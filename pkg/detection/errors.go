package detection

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoLabels is returned when a label source contains no labels.
	ErrNoLabels = errors.New("detection: no labels")

	// ErrUnknownClass is matched by every DecodeError.
	ErrUnknownClass = errors.New("detection: class id outside label table")
)

// DecodeError reports a qualifying slot whose class id has no label.
// The slot is dropped; decoding of the remaining slots continues.
type DecodeError struct {
	Slot    int
	ClassID int
	Labels  int
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("detection: slot %d: class %d outside label table of %d", e.Slot, e.ClassID, e.Labels)
}

// Unwrap returns ErrUnknownClass.
func (e *DecodeError) Unwrap() error {
	return ErrUnknownClass
}
