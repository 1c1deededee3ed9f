package capture

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"

	"github.com/teslashibe/go-spotter/internal/log"
	"github.com/teslashibe/go-spotter/pkg/frame"
)

// fakeSource lets tests decide when and how a still capture completes.
type fakeSource struct {
	available atomic.Bool
	requests  atomic.Int32
	starts    atomic.Int32
	stops     atomic.Int32

	mu      sync.Mutex
	pending chan error
}

func newFakeSource() *fakeSource {
	s := &fakeSource{}
	s.available.Store(true)
	return s
}

func (s *fakeSource) Available() bool { return s.available.Load() }

func (s *fakeSource) RequestStillCapture(ctx context.Context) <-chan error {
	s.requests.Add(1)
	ch := make(chan error, 1)
	s.mu.Lock()
	s.pending = ch
	s.mu.Unlock()
	return ch
}

func (s *fakeSource) complete(err error) {
	s.mu.Lock()
	ch := s.pending
	s.pending = nil
	s.mu.Unlock()
	ch <- err
}

func (s *fakeSource) StopStreaming() error  { s.stops.Add(1); return nil }
func (s *fakeSource) StartStreaming() error { s.starts.Add(1); return nil }

func waitState(t *testing.T, m *Machine, want State) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state: got %v, want %v", m.State(), want)
}

func newMachine(src Source) (*Machine, *clock.Mock) {
	mock := clock.NewMock()
	return New(src, WithClock(mock), WithLogger(log.Discard())), mock
}

func TestMachine_FreezeCycle(t *testing.T) {
	src := newFakeSource()
	m, mock := newMachine(src)
	defer m.Close()

	if m.State() != Live {
		t.Fatalf("initial state: %v", m.State())
	}
	if !m.Capture() {
		t.Fatal("capture from Live should be accepted")
	}
	if m.State() != Capturing {
		t.Fatalf("after capture: %v", m.State())
	}

	src.complete(nil)
	waitState(t, m, Frozen)
	if src.stops.Load() != 1 {
		t.Errorf("expected streaming stopped once, got %d", src.stops.Load())
	}
	snap := m.Snapshot()
	if want := mock.Now().Add(DefaultFreeze); !snap.FrozenUntil.Equal(want) {
		t.Errorf("frozen until: got %v, want %v", snap.FrozenUntil, want)
	}

	mock.Add(4999 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	if !m.Frozen() {
		t.Fatal("should still be frozen at 4999ms")
	}
	if src.starts.Load() != 0 {
		t.Error("streaming restarted early")
	}

	mock.Add(time.Millisecond)
	waitState(t, m, Live)
	if src.starts.Load() != 1 {
		t.Errorf("expected streaming restarted once, got %d", src.starts.Load())
	}
	if !m.Snapshot().FrozenUntil.IsZero() {
		t.Error("deadline should clear when live")
	}
	if m.Snapshot().Captures != 1 {
		t.Errorf("captures: %d", m.Snapshot().Captures)
	}
}

func TestMachine_IgnoredCommands(t *testing.T) {
	src := newFakeSource()
	m, mock := newMachine(src)
	defer m.Close()

	m.Capture()
	if m.Capture() {
		t.Error("capture while Capturing should be ignored")
	}
	if m.State() != Capturing || src.requests.Load() != 1 {
		t.Errorf("state %v requests %d", m.State(), src.requests.Load())
	}

	src.complete(nil)
	waitState(t, m, Frozen)
	until := m.Snapshot().FrozenUntil
	for i := 0; i < 3; i++ {
		if m.Capture() {
			t.Error("capture while Frozen should be ignored")
		}
	}
	if m.State() != Frozen || src.requests.Load() != 1 {
		t.Errorf("state %v requests %d", m.State(), src.requests.Load())
	}
	if !m.Snapshot().FrozenUntil.Equal(until) {
		t.Error("ignored command must not extend the freeze")
	}

	mock.Add(DefaultFreeze)
	waitState(t, m, Live)
	if !m.Capture() {
		t.Error("capture after thaw should be accepted")
	}
}

func TestMachine_CaptureFailureRevertsToLive(t *testing.T) {
	src := newFakeSource()
	m, _ := newMachine(src)
	defer m.Close()

	boom := errors.New("configure failed")
	m.Capture()
	src.complete(boom)
	waitState(t, m, Live)

	if !errors.Is(m.CaptureErr(), boom) {
		t.Errorf("CaptureErr: %v", m.CaptureErr())
	}
	if src.stops.Load() != 0 {
		t.Error("failed capture must not stop streaming")
	}
	if src.starts.Load() != 1 {
		t.Errorf("failed capture should restart streaming once, got %d", src.starts.Load())
	}
	if !m.Capture() {
		t.Error("capture after failure should be accepted")
	}
	if m.CaptureErr() != nil {
		t.Error("a new capture clears the previous error")
	}
}

func TestMachine_FailedStillResumesStream(t *testing.T) {
	sim := frame.NewSim(image.NewRGBA(image.Rect(0, 0, 4, 4)), time.Hour)
	defer sim.Close()
	m, _ := newMachine(sim)
	defer m.Close()

	if err := sim.StartStreaming(); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("grab failed")
	sim.CaptureErr = boom

	for i := 0; i < 2; i++ {
		if !m.Capture() {
			t.Fatalf("capture %d rejected", i)
		}
		waitState(t, m, Live)
		if !sim.Streaming() {
			t.Fatalf("capture %d: live after a failed still but not streaming", i)
		}
		if !errors.Is(m.CaptureErr(), boom) {
			t.Errorf("CaptureErr: %v", m.CaptureErr())
		}
	}
}

func TestMachine_TryCaptureReasons(t *testing.T) {
	src := newFakeSource()
	m, _ := newMachine(src)

	if err := m.TryCapture(); err != nil {
		t.Fatalf("first capture: %v", err)
	}
	err := m.TryCapture()
	if !errors.Is(err, ErrIgnored) || errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("capture while Capturing: %v", err)
	}

	src.complete(errors.New("configure failed"))
	waitState(t, m, Live)
	src.available.Store(false)
	if err := m.TryCapture(); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("unavailable source: %v", err)
	}

	m.Close()
	if err := m.TryCapture(); !errors.Is(err, ErrClosed) {
		t.Errorf("closed machine: %v", err)
	}
}

func TestMachine_SourceUnavailable(t *testing.T) {
	src := newFakeSource()
	src.available.Store(false)
	m, _ := newMachine(src)
	defer m.Close()

	if m.Capture() {
		t.Error("capture should be ignored when source unavailable")
	}
	if m.State() != Live || src.requests.Load() != 0 {
		t.Errorf("state %v requests %d", m.State(), src.requests.Load())
	}
	if !errors.Is(m.CaptureErr(), ErrSourceUnavailable) {
		t.Errorf("CaptureErr: %v", m.CaptureErr())
	}
}

func TestMachine_ConcurrentCaptures(t *testing.T) {
	src := newFakeSource()
	m, _ := newMachine(src)
	defer m.Close()

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Capture() {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	if accepted.Load() != 1 || src.requests.Load() != 1 {
		t.Errorf("accepted %d, requests %d", accepted.Load(), src.requests.Load())
	}
}

func TestMachine_Subscribe(t *testing.T) {
	src := newFakeSource()
	m, mock := newMachine(src)
	defer m.Close()

	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()

	m.Capture()
	src.complete(nil)
	waitState(t, m, Frozen)
	mock.Add(DefaultFreeze)
	waitState(t, m, Live)

	var got []State
	for len(got) < 3 {
		select {
		case s := <-ch:
			got = append(got, s.State)
		case <-time.After(time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}
	if diff := cmp.Diff([]State{Capturing, Frozen, Live}, got); diff != "" {
		t.Errorf("states (-want +got):\n%s", diff)
	}
}

func TestMachine_CloseStopsTimer(t *testing.T) {
	src := newFakeSource()
	m, mock := newMachine(src)

	ch, _ := m.Subscribe()
	m.Capture()
	src.complete(nil)
	waitState(t, m, Frozen)

	m.Close()
	mock.Add(2 * DefaultFreeze)
	time.Sleep(10 * time.Millisecond)
	if src.starts.Load() != 0 {
		t.Error("timer fired after Close")
	}
	if m.Capture() {
		t.Error("closed machine should ignore commands")
	}

	// Subscriber channels are closed.
	for range ch {
	}
}

func TestMachine_CloseAbandonsPendingCapture(t *testing.T) {
	src := newFakeSource()
	m, _ := newMachine(src)
	m.Capture()

	done := make(chan struct{})
	go func() {
		m.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on in-flight capture")
	}
}

func TestMachine_CustomFreeze(t *testing.T) {
	src := newFakeSource()
	mock := clock.NewMock()
	m := New(src, WithClock(mock), WithFreeze(time.Second), WithLogger(log.Discard()))
	defer m.Close()

	m.Capture()
	src.complete(nil)
	waitState(t, m, Frozen)
	mock.Add(time.Second)
	waitState(t, m, Live)
}

func TestTransitionTable(t *testing.T) {
	events := []Event{EventCapture, EventCaptured, EventCaptureFailed, EventThawed}
	want := map[State]map[Event]State{
		Live:      {EventCapture: Capturing},
		Capturing: {EventCaptured: Frozen, EventCaptureFailed: Live},
		Frozen:    {EventThawed: Live},
	}

	for _, s := range []State{Live, Capturing, Frozen} {
		for _, ev := range events {
			got, ok := transitions[s][ev]
			exp, expOK := want[s][ev]
			if ok != expOK || got != exp {
				t.Errorf("%v --%v--> got (%v, %v), want (%v, %v)", s, ev, got, ok, exp, expOK)
			}
		}
	}
}

func TestStateStrings(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Live, "live"},
		{Capturing, "capturing"},
		{Frozen, "frozen"},
		{State(9), "state(9)"},
	}
	for _, tc := range tests {
		if got := tc.s.String(); got != tc.want {
			t.Errorf("String(%d): got %q, want %q", tc.s, got, tc.want)
		}
	}
	b, _ := Frozen.MarshalText()
	if string(b) != "frozen" {
		t.Errorf("MarshalText: %s", b)
	}
	var s State
	if err := s.UnmarshalText([]byte("capturing")); err != nil || s != Capturing {
		t.Errorf("UnmarshalText: %v %v", s, err)
	}
	if err := s.UnmarshalText([]byte("melting")); err == nil {
		t.Error("unknown state should fail")
	}
}
