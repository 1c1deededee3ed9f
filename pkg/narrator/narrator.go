// Package narrator turns detections into spoken announcements.
package narrator

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/teslashibe/go-spotter/pkg/detection"
	"github.com/teslashibe/go-spotter/pkg/speech"
)

// StartupPrompt is spoken once, after the first frame cycle's announcements.
const StartupPrompt = "Please press the screen to start detection"

// Announcement returns the spoken text for d.
func Announcement(d detection.Detection) string {
	return d.Label + " detected with confidence " + d.Confidence()
}

// Narrator announces detections through a speech.Speaker.
// Every utterance flushes the previous one, so only the last detection of a
// frame remains audible.
type Narrator struct {
	speaker speech.Speaker
	logger  *slog.Logger
	prompt  string

	started atomic.Bool
}

// Option configures a Narrator.
type Option func(*Narrator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Narrator) {
		n.logger = logger.With("component", "narrator")
	}
}

// WithStartupPrompt overrides the one-time prompt. Empty disables it.
func WithStartupPrompt(text string) Option {
	return func(n *Narrator) {
		n.prompt = text
	}
}

// New returns a Narrator speaking through s.
func New(s speech.Speaker, opts ...Option) *Narrator {
	n := &Narrator{
		speaker: s,
		logger:  slog.Default().With("component", "narrator"),
		prompt:  StartupPrompt,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Narrate speaks each detection in order, then the startup prompt on the
// first call ever. Speech errors are logged and dropped.
func (n *Narrator) Narrate(ctx context.Context, dets []detection.Detection) {
	for _, d := range dets {
		n.say(ctx, Announcement(d))
	}
	if n.prompt != "" && n.started.CompareAndSwap(false, true) {
		n.say(ctx, n.prompt)
	}
}

// Started reports whether the startup prompt has been issued.
func (n *Narrator) Started() bool {
	return n.started.Load()
}

func (n *Narrator) say(ctx context.Context, text string) {
	if err := n.speaker.Speak(ctx, text, true); err != nil {
		n.logger.Debug("speak failed", "text", text, "error", err)
	}
}
