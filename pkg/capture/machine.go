package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces the wall clock, typically with clock.NewMock in tests.
func WithClock(c clock.Clock) Option {
	return func(m *Machine) {
		m.clk = c
	}
}

// WithFreeze sets the freeze interval.
func WithFreeze(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.freeze = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger.With("component", "capture")
	}
}

// Machine is the capture-freeze state machine. All methods are safe for
// concurrent use.
type Machine struct {
	src    Source
	clk    clock.Clock
	freeze time.Duration
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	frozenUntil time.Time
	timer       *clock.Timer
	captures    uint64
	captureErr  error
	subs        map[chan Snapshot]struct{}
	closed      bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Live machine driving src.
func New(src Source, opts ...Option) *Machine {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine{
		src:    src,
		clk:    clock.New(),
		freeze: DefaultFreeze,
		logger: slog.Default().With("component", "capture"),
		state:  Live,
		subs:   make(map[chan Snapshot]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Capture handles a user capture command and reports whether it was accepted.
// It is ignored unless the machine is Live and the source is available.
func (m *Machine) Capture() bool {
	return m.TryCapture() == nil
}

// TryCapture is Capture with the reason for an ignored command: ErrIgnored
// outside Live, ErrSourceUnavailable or ErrClosed.
func (m *Machine) TryCapture() error {
	return m.fire(EventCapture, nil)
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Frozen reports whether live processing should be suspended.
func (m *Machine) Frozen() bool {
	return m.State() == Frozen
}

// Snapshot returns the current state and freeze deadline.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// CaptureErr returns the reason the last capture command was dropped or
// failed, or nil.
func (m *Machine) CaptureErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captureErr
}

// Subscribe returns a channel receiving a snapshot after every transition.
// Slow readers miss intermediate snapshots. Call the returned func to stop.
func (m *Machine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 4)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.subs[ch]; ok {
				delete(m.subs, ch)
				close(ch)
			}
		})
	}
}

// Close stops a pending freeze timer and abandons an in-flight capture.
// The source is left in whatever streaming state it was in.
func (m *Machine) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	for ch := range m.subs {
		close(ch)
		delete(m.subs, ch)
	}
	m.mu.Unlock()
	return nil
}

// fire applies ev through the transition table. Side effects of entering the
// new state run under the lock so no other event can interleave.
func (m *Machine) fire(ev Event, cause error) error {
	m.mu.Lock()
	from := m.state
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	to, ok := transitions[from][ev]
	if !ok {
		m.mu.Unlock()
		m.logger.Debug("event ignored", "event", ev, "state", from)
		return fmt.Errorf("%w: %v while %v", ErrIgnored, ev, from)
	}
	if ev == EventCapture && !m.src.Available() {
		m.captureErr = ErrSourceUnavailable
		m.mu.Unlock()
		m.logger.Debug("capture ignored, source unavailable")
		return ErrSourceUnavailable
	}

	m.state = to
	m.enter(from, ev, cause)
	snap := m.snapshotLocked()
	m.publishLocked(snap)
	m.mu.Unlock()

	m.logger.Info("capture state", "from", from, "to", to, "event", ev)
	return nil
}

// enter runs the entry action for m.state. Caller holds m.mu.
func (m *Machine) enter(from State, ev Event, cause error) {
	switch m.state {
	case Capturing:
		m.captureErr = nil
		m.captures++
		done := m.src.RequestStillCapture(m.ctx)
		m.wg.Add(1)
		go m.await(done)

	case Frozen:
		if err := m.src.StopStreaming(); err != nil {
			m.logger.Warn("stop streaming failed", "error", err)
		}
		m.frozenUntil = m.clk.Now().Add(m.freeze)
		m.timer = m.clk.AfterFunc(m.freeze, func() {
			m.fire(EventThawed, nil)
		})

	case Live:
		m.frozenUntil = time.Time{}
		m.timer = nil
		switch ev {
		case EventThawed:
			if err := m.src.StartStreaming(); err != nil {
				m.logger.Error("restart streaming failed", "error", err)
			}
		case EventCaptureFailed:
			m.captureErr = cause
			m.logger.Warn("still capture failed", "error", cause, "from", from)
			// The source may have halted the stream before failing.
			if err := m.src.StartStreaming(); err != nil {
				m.logger.Error("restart streaming failed", "error", err)
			}
		}
	}
}

// await turns the completion channel into an event.
func (m *Machine) await(done <-chan error) {
	defer m.wg.Done()
	select {
	case err, ok := <-done:
		if ok && err != nil {
			m.fire(EventCaptureFailed, err)
			return
		}
		m.fire(EventCaptured, nil)
	case <-m.ctx.Done():
	}
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		State:       m.state,
		FrozenUntil: m.frozenUntil,
		Captures:    m.captures,
	}
}

func (m *Machine) publishLocked(s Snapshot) {
	for ch := range m.subs {
		select {
		case ch <- s:
		default:
		}
	}
}
