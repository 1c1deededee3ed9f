// Package capture implements the capture-freeze state machine.
//
// A capture command taken while Live requests one still capture from the
// source. When it completes the live stream stops and the machine stays
// Frozen for a fixed interval, then streaming restarts and the machine is
// Live again. Commands in any other state are ignored.
//
//	Live --capture--> Capturing --captured--> Frozen --thawed--> Live
//	                  Capturing --failed----> Live
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultFreeze is how long a captured still stays on screen.
const DefaultFreeze = 5000 * time.Millisecond

// Reasons a capture command is not accepted. TryCapture returns them and
// ErrSourceUnavailable is also recorded for Machine.CaptureErr.
var (
	ErrSourceUnavailable = errors.New("capture: source unavailable")
	ErrIgnored           = errors.New("capture: command ignored")
	ErrClosed            = errors.New("capture: machine closed")
)

// State is a capture-freeze state.
type State int

const (
	Live State = iota
	Capturing
	Frozen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Live:
		return "live"
	case Capturing:
		return "capturing"
	case Frozen:
		return "frozen"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{Live, Capturing, Frozen} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("capture: unknown state %q", b)
}

// Event drives a transition.
type Event int

const (
	EventCapture       Event = iota // User capture command
	EventCaptured                   // Still capture completed
	EventCaptureFailed              // Still capture session failed
	EventThawed                     // Freeze interval elapsed
)

// String implements fmt.Stringer.
func (e Event) String() string {
	switch e {
	case EventCapture:
		return "capture"
	case EventCaptured:
		return "captured"
	case EventCaptureFailed:
		return "capture_failed"
	case EventThawed:
		return "thawed"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// transitions is the complete table. Pairs not listed are ignored.
var transitions = map[State]map[Event]State{
	Live: {
		EventCapture: Capturing,
	},
	Capturing: {
		EventCaptured:      Frozen,
		EventCaptureFailed: Live,
	},
	Frozen: {
		EventThawed: Live,
	},
}

// Source is the capture side of a frame source.
// Implementations must not call back into the Machine synchronously.
type Source interface {
	// Available reports whether the device is open and a capture can be issued.
	Available() bool

	// RequestStillCapture starts one still capture. The returned channel
	// receives exactly one value: nil on completion or the session error.
	RequestStillCapture(ctx context.Context) <-chan error

	// StopStreaming pauses live frame delivery.
	StopStreaming() error

	// StartStreaming resumes live frame delivery, reopening the device if needed.
	StartStreaming() error
}

// Snapshot is a point-in-time view of the machine.
type Snapshot struct {
	State       State     `json:"state"`
	FrozenUntil time.Time `json:"frozen_until,omitzero"`
	Captures    uint64    `json:"captures"`
}
