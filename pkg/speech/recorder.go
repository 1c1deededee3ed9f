package speech

import (
	"context"
	"sync"
	"time"
)

// Recorder implements Speaker for testing.
// It records every call and models flush semantics without audio.
type Recorder struct {
	// Err, when set, is returned from Speak after recording the call.
	Err error

	mu      sync.Mutex
	calls   []Call
	pending []string
}

// Call records one Speak invocation.
type Call struct {
	Text  string
	Flush bool
	Time  time.Time
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Speak records the call.
func (r *Recorder) Speak(ctx context.Context, text string, flush bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Text: text, Flush: flush, Time: time.Now()})
	if r.Err != nil {
		return r.Err
	}
	if flush {
		r.pending = r.pending[:0]
	}
	r.pending = append(r.pending, text)
	return nil
}

// Calls returns all recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Texts returns the text of every recorded call in order.
func (r *Recorder) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.Text
	}
	return out
}

// Audible returns the utterances that survive all flushes so far.
func (r *Recorder) Audible() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.pending...)
}

// Active returns the last surviving utterance.
func (r *Recorder) Active() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return "", false
	}
	return r.pending[len(r.pending)-1], true
}

// Reset clears recorded state.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.pending = nil
}

// Verify Recorder implements Speaker at compile time.
var _ Speaker = (*Recorder)(nil)
