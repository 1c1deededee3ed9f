// Package camera captures frames from a local camera or video stream through
// OpenCV and exposes runtime-configurable capture settings.
package camera

import "strconv"

// Capture limits accepted by Validate.
const (
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
)

// Config holds the capture settings. They can be changed at runtime through
// Manager, which reopens the device.
type Config struct {
	// Device is a camera index ("0") or a capture URL or file path.
	Device string `json:"device"`

	Width     int `json:"width"`     // Requested frame width in pixels
	Height    int `json:"height"`    // Requested frame height in pixels
	Framerate int `json:"framerate"` // Target FPS
	Quality   int `json:"quality"`   // JPEG quality 1-100 for the dashboard stream

	// BufferSize is the driver-side frame queue. 1 keeps latency low.
	BufferSize int `json:"buffer_size"`
}

// DefaultConfig returns the VGA configuration on the first camera.
func DefaultConfig() Config {
	return Config{
		Device:     "0",
		Width:      640,
		Height:     480,
		Framerate:  30,
		Quality:    80,
		BufferSize: 1,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device == "" {
		errors = append(errors, "device is required")
	}
	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 3840")
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}
	if c.BufferSize < 0 {
		errors = append(errors, "buffer_size must not be negative")
	}

	return errors
}

// DeviceID returns the value handed to OpenCV: an int for camera indexes,
// the string unchanged for URLs and files.
func (c *Config) DeviceID() any {
	if id, err := strconv.Atoi(c.Device); err == nil && id >= 0 {
		return id
	}
	return c.Device
}

// Capabilities describes the accepted ranges, served by the camera API.
func Capabilities() map[string]any {
	return map[string]any{
		"max_width":     MaxWidth,
		"max_height":    MaxHeight,
		"max_framerate": MaxFramerate,
		"presets":       PresetNames(),
	}
}
