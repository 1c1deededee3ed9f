package preprocess

import (
	"errors"
	"fmt"
)

// ErrInvalidFrame is the sentinel matched by every InvalidFrameError.
var ErrInvalidFrame = errors.New("preprocess: invalid frame")

// InvalidFrameError describes a frame that cannot be turned into a tensor.
type InvalidFrameError struct {
	Width  int
	Height int
	Len    int
	Reason string
}

// Error implements the error interface.
func (e *InvalidFrameError) Error() string {
	return fmt.Sprintf("preprocess: invalid frame %dx%d (%d bytes): %s", e.Width, e.Height, e.Len, e.Reason)
}

// Unwrap returns ErrInvalidFrame so errors.Is works.
func (e *InvalidFrameError) Unwrap() error {
	return ErrInvalidFrame
}
