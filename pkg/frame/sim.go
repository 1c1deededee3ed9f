package frame

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSourceClosed is returned by a closed simulated source.
var ErrSourceClosed = errors.New("frame: source closed")

// Sim is a simulated frame source that republishes a still image at a fixed
// interval. It satisfies Source and the capture command boundary, which makes
// it usable without a camera (tests, --sim mode).
type Sim struct {
	*Mailbox

	interval time.Duration

	mu        sync.Mutex
	img       image.Image
	streaming bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    bool

	// CaptureErr, when set, is delivered as the still-capture result.
	CaptureErr error

	stillRequests atomic.Int64
	starts        atomic.Int64
	stops         atomic.Int64
}

// NewSim creates a simulated source. Streaming must be started explicitly.
func NewSim(img image.Image, interval time.Duration) *Sim {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	return &Sim{
		Mailbox:  NewMailbox(),
		interval: interval,
		img:      img,
	}
}

// SetImage replaces the image used for subsequent frames.
func (s *Sim) SetImage(img image.Image) {
	s.mu.Lock()
	s.img = img
	s.mu.Unlock()
}

// Push publishes one frame built from img immediately.
func (s *Sim) Push(img image.Image) uint64 {
	return s.Publish(FromImage(img, time.Now()))
}

// Available reports whether the source accepts commands.
func (s *Sim) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Streaming reports whether continuous frames are being published.
func (s *Sim) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// StartStreaming begins publishing frames every interval.
func (s *Sim) StartStreaming() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSourceClosed
	}
	s.starts.Add(1)
	if s.streaming {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.streaming = true
	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// StopStreaming halts continuous publishing. The last frame stays readable.
func (s *Sim) StopStreaming() error {
	s.stops.Add(1)
	s.halt()
	return nil
}

func (s *Sim) halt() {
	s.mu.Lock()
	if !s.streaming {
		s.mu.Unlock()
		return
	}
	s.streaming = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

// RequestStillCapture ends the live stream, publishes one still frame and
// completes the returned channel. Like a camera, it halts the stream before
// the capture can fail, so a failed capture leaves streaming stopped.
func (s *Sim) RequestStillCapture(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	s.stillRequests.Add(1)

	s.mu.Lock()
	closed, img, captureErr := s.closed, s.img, s.CaptureErr
	s.mu.Unlock()
	if !closed {
		s.halt()
	}

	switch {
	case closed:
		done <- ErrSourceClosed
	case captureErr != nil:
		done <- captureErr
	case ctx.Err() != nil:
		done <- ctx.Err()
	default:
		if img != nil {
			f := FromImage(img, time.Now())
			f.Still = true
			s.Publish(f)
		}
		done <- nil
	}
	close(done)
	return done
}

// StillRequests returns how many still captures were requested.
func (s *Sim) StillRequests() int64 { return s.stillRequests.Load() }

// Starts returns how many times StartStreaming was called.
func (s *Sim) Starts() int64 { return s.starts.Load() }

// Stops returns how many times StopStreaming was called.
func (s *Sim) Stops() int64 { return s.stops.Load() }

// Close stops streaming and rejects further commands.
func (s *Sim) Close() error {
	if err := s.StopStreaming(); err != nil {
		return err
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Sim) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			img := s.img
			s.mu.Unlock()
			if img != nil {
				s.Push(img)
			}
		}
	}
}
