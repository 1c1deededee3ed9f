// Package speech is the flush-ordered speech boundary.
//
// A Speak call with flush=true discards whatever is speaking or queued and
// makes its own utterance the only pending one, so a burst of flushing calls
// leaves exactly the last one audible. Speak with flush=false appends.
//
// Voice implements the boundary on top of a tts.Provider and a Player. One
// goroutine synthesizes and plays utterances in order.
package speech

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Speak after Close.
var ErrClosed = errors.New("speech: closed")

// Speaker is the speech boundary used by the narrator.
// Speak must not block on playback.
type Speaker interface {
	Speak(ctx context.Context, text string, flush bool) error
}

// Utterance is one accepted Speak request.
type Utterance struct {
	ID       string
	Text     string
	Flush    bool
	Accepted time.Time
}

// Stats counts utterances by outcome.
type Stats struct {
	Accepted   uint64 `json:"accepted"`
	Spoken     uint64 `json:"spoken"`
	Superseded uint64 `json:"superseded"`
	Failed     uint64 `json:"failed"`
}
