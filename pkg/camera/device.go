package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-spotter/pkg/frame"
)

const (
	stillAttempts = 5
	readBackoff   = 50 * time.Millisecond
	maxBackoff    = 2 * time.Second
)

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Device) {
		d.logger = logger.With("component", "camera")
	}
}

// Device streams frames from an OpenCV VideoCapture into a frame mailbox.
// It implements frame.Source and the capture command boundary: streaming
// can be stopped and restarted, and a still can be grabbed on request.
//
// Stopping the stream releases the device; starting it opens the device again.
type Device struct {
	*frame.Mailbox
	logger *slog.Logger

	mu        sync.Mutex
	cfg       Config
	vc        *gocv.VideoCapture
	streaming bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    bool

	// readMu serializes access to vc between the stream loop, stills and release.
	readMu sync.Mutex

	readErrors atomic.Uint64
}

// Open opens the device described by cfg. Streaming must be started
// explicitly.
func Open(cfg Config, opts ...Option) (*Device, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera: invalid config: %v", errs)
	}
	d := &Device{
		Mailbox: frame.NewMailbox(),
		logger:  slog.Default().With("component", "camera"),
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(d)
	}

	vc, err := d.open(cfg)
	if err != nil {
		return nil, err
	}
	d.vc = vc
	return d, nil
}

func (d *Device) open(cfg Config) (*gocv.VideoCapture, error) {
	vc, err := gocv.OpenVideoCapture(cfg.DeviceID())
	if err != nil {
		return nil, fmt.Errorf("camera: open %s: %w", cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotOpened, cfg.Device)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	if cfg.BufferSize > 0 {
		vc.Set(gocv.VideoCaptureBufferSize, float64(cfg.BufferSize))
	}

	d.logger.Info("camera opened",
		"device", cfg.Device,
		"width", int(vc.Get(gocv.VideoCaptureFrameWidth)),
		"height", int(vc.Get(gocv.VideoCaptureFrameHeight)),
		"fps", vc.Get(gocv.VideoCaptureFPS),
	)
	return vc, nil
}

// Config returns the active capture settings.
func (d *Device) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Available reports whether the device accepts commands.
func (d *Device) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed
}

// Streaming reports whether the live stream is running.
func (d *Device) Streaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streaming
}

// ReadErrors returns how many grabs failed since the device was opened.
func (d *Device) ReadErrors() uint64 { return d.readErrors.Load() }

// StartStreaming opens the device if needed and starts the live stream.
func (d *Device) StartStreaming() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.streaming {
		return nil
	}
	if err := d.ensureOpenLocked(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.streaming = true
	d.wg.Add(1)
	go d.loop(ctx)
	return nil
}

// StopStreaming stops the live stream and releases the device.
// The last frame stays readable from the mailbox.
func (d *Device) StopStreaming() error {
	d.halt()
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.releaseLocked()
}

// RequestStillCapture ends the live stream, grabs one frame, publishes it
// marked as a still and completes the returned channel. It does not block.
func (d *Device) RequestStillCapture(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- d.still(ctx)
	}()
	return done
}

func (d *Device) still(ctx context.Context) error {
	d.halt()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if err := d.ensureOpenLocked(); err != nil {
		d.mu.Unlock()
		return err
	}
	d.mu.Unlock()

	mat := gocv.NewMat()
	defer mat.Close()

	for attempt := 1; attempt <= stillAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := d.grab(&mat)
		if err == nil {
			f.Still = true
			d.Publish(f)
			d.logger.Debug("still captured", "seq", f.Seq, "attempt", attempt)
			return nil
		}
		d.logger.Debug("still grab failed", "attempt", attempt, "error", err)
	}
	return fmt.Errorf("%w: no frame after %d attempts", ErrReadFailed, stillAttempts)
}

// Reconfigure applies cfg by reopening the device. A running stream is
// restarted with the new settings.
func (d *Device) Reconfigure(cfg Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("camera: invalid config: %v", errs)
	}
	wasStreaming := d.Streaming()
	d.halt()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if err := d.releaseLocked(); err != nil {
		d.logger.Warn("release failed", "error", err)
	}
	d.cfg = cfg
	d.mu.Unlock()

	if wasStreaming {
		return d.StartStreaming()
	}
	return nil
}

// Close stops streaming, releases the device and rejects further commands.
func (d *Device) Close() error {
	d.halt()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.releaseLocked()
}

// halt stops the stream loop and waits for it to exit.
func (d *Device) halt() {
	d.mu.Lock()
	if !d.streaming {
		d.mu.Unlock()
		return
	}
	d.streaming = false
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	cancel()
	d.wg.Wait()
}

// ensureOpenLocked reopens a released device. Caller holds d.mu.
func (d *Device) ensureOpenLocked() error {
	if d.vc != nil {
		return nil
	}
	vc, err := d.open(d.cfg)
	if err != nil {
		return err
	}
	d.readMu.Lock()
	d.vc = vc
	d.readMu.Unlock()
	return nil
}

// releaseLocked closes the VideoCapture. Caller holds d.mu.
func (d *Device) releaseLocked() error {
	d.readMu.Lock()
	defer d.readMu.Unlock()
	if d.vc == nil {
		return nil
	}
	err := d.vc.Close()
	d.vc = nil
	d.logger.Debug("camera released")
	return err
}

// grab reads one frame from the device into mat and converts it.
func (d *Device) grab(mat *gocv.Mat) (frame.Frame, error) {
	d.readMu.Lock()
	vc := d.vc
	if vc == nil {
		d.readMu.Unlock()
		return frame.Frame{}, ErrNotOpened
	}
	ok := vc.Read(mat)
	d.readMu.Unlock()

	if !ok || mat.Empty() {
		d.readErrors.Add(1)
		return frame.Frame{}, ErrReadFailed
	}
	img, err := mat.ToImage()
	if err != nil {
		d.readErrors.Add(1)
		return frame.Frame{}, fmt.Errorf("camera: convert frame: %w", err)
	}
	return frame.FromImage(img, time.Now()), nil
}

// loop publishes frames until ctx is cancelled. Failed reads back off
// exponentially so a disconnected stream does not spin.
func (d *Device) loop(ctx context.Context) {
	defer d.wg.Done()

	mat := gocv.NewMat()
	defer mat.Close()

	backoff := readBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		f, err := d.grab(&mat)
		if err == nil {
			d.Publish(f)
			backoff = readBackoff
			continue
		}

		d.logger.Warn("frame read failed", "error", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
