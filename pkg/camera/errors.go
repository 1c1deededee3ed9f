package camera

import "errors"

var (
	// ErrNotOpened is returned when OpenCV cannot open the configured device.
	ErrNotOpened = errors.New("camera: device not opened")

	// ErrClosed is returned by a closed device.
	ErrClosed = errors.New("camera: device closed")

	// ErrReadFailed is returned when no frame could be grabbed for a still.
	ErrReadFailed = errors.New("camera: read failed")
)
