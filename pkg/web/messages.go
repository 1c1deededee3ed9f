package web

import (
	"github.com/teslashibe/go-spotter/pkg/capture"
	"github.com/teslashibe/go-spotter/pkg/pipeline"
	"github.com/teslashibe/go-spotter/pkg/speech"
)

// Message types on /ws/status.
const (
	MessageStatus  = "status"
	MessageCapture = "capture"
)

// CommandCapture is the text message a /ws/status client sends to capture.
const CommandCapture = "capture"

// Status is served on GET /api/status and pushed on /ws/status.
type Status struct {
	Type         string           `json:"type"`
	Capture      capture.Snapshot `json:"capture"`
	CaptureError string           `json:"capture_error,omitempty"`
	Pipeline     pipeline.Stats   `json:"pipeline"`
	Speech       *speech.Stats    `json:"speech,omitempty"`
	FramesShown  uint64           `json:"frames_shown"`
	FrameClients int              `json:"frame_clients"`
	Uptime       string           `json:"uptime"`
}

// CaptureReply answers a capture command.
type CaptureReply struct {
	Type     string        `json:"type"`
	Accepted bool          `json:"accepted"`
	State    capture.State `json:"state"`
	Error    string        `json:"error,omitempty"`
}

// Envelope is used by clients to peek at the type of a /ws/status message.
type Envelope struct {
	Type string `json:"type"`
}
