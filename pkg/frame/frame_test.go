package frame

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestFromImage(t *testing.T) {
	img := solid(4, 3, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	f := FromImage(img, time.Unix(10, 0))

	if !f.Valid() {
		t.Fatal("expected valid frame")
	}
	if f.Width != 4 || f.Height != 3 {
		t.Errorf("size: got %dx%d", f.Width, f.Height)
	}
	// Mutating the source must not leak into the frame.
	img.Pix[0] = 99
	if f.Pix[0] != 10 {
		t.Errorf("frame shares pixels with source image")
	}
}

func TestFrameCopies(t *testing.T) {
	f := FromImage(solid(2, 2, color.RGBA{R: 1, A: 255}), time.Now())

	c := f.Clone()
	c.Pix[0] = 200
	if f.Pix[0] != 1 {
		t.Error("Clone shares pixels")
	}

	rgba := f.RGBA()
	rgba.Pix[0] = 200
	if f.Pix[0] != 1 {
		t.Error("RGBA shares pixels")
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		f    Frame
		want bool
	}{
		{"ok", Frame{Pix: make([]byte, 16), Width: 2, Height: 2}, true},
		{"zero width", Frame{Pix: make([]byte, 16), Width: 0, Height: 2}, false},
		{"negative height", Frame{Pix: make([]byte, 16), Width: 2, Height: -2}, false},
		{"empty pixels", Frame{Width: 2, Height: 2}, false},
		{"short buffer", Frame{Pix: make([]byte, 15), Width: 2, Height: 2}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.f.Valid(); got != tc.want {
				t.Errorf("Valid: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMailboxKeepsNewest(t *testing.T) {
	m := NewMailbox()

	if _, ok := m.Current(); ok {
		t.Fatal("empty mailbox should report no frame")
	}

	for i := 0; i < 5; i++ {
		m.Publish(Frame{Width: i + 1})
	}

	select {
	case <-m.Ready():
	default:
		t.Fatal("expected a pending notification")
	}
	select {
	case <-m.Ready():
		t.Fatal("notifications must coalesce")
	default:
	}

	f, ok := m.Current()
	if !ok || f.Width != 5 || f.Seq != 5 {
		t.Errorf("got width=%d seq=%d, want newest frame 5", f.Width, f.Seq)
	}
	if m.Drops() != 4 {
		t.Errorf("drops: got %d, want 4", m.Drops())
	}

	// A read frame is not counted as dropped when replaced.
	m.Publish(Frame{Width: 6})
	if m.Drops() != 4 {
		t.Errorf("drops after read: got %d, want 4", m.Drops())
	}
}

func TestSimStreaming(t *testing.T) {
	sim := NewSim(solid(8, 8, color.RGBA{G: 255, A: 255}), 5*time.Millisecond)
	defer sim.Close()

	if err := sim.StartStreaming(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-sim.Ready():
	case <-time.After(time.Second):
		t.Fatal("no frame from streaming sim")
	}
	if !sim.Streaming() {
		t.Error("expected streaming")
	}

	if err := sim.StopStreaming(); err != nil {
		t.Fatal(err)
	}
	seq := sim.Seq()
	time.Sleep(30 * time.Millisecond)
	if sim.Seq() != seq {
		t.Error("frames published after StopStreaming")
	}
}

func TestSimFailedStillHaltsStream(t *testing.T) {
	sim := NewSim(solid(8, 8, color.RGBA{R: 255, A: 255}), time.Hour)
	defer sim.Close()
	if err := sim.StartStreaming(); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("grab failed")
	sim.CaptureErr = boom
	if err := <-sim.RequestStillCapture(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected configured error, got %v", err)
	}
	if sim.Streaming() {
		t.Error("failed still should leave the stream halted")
	}
	if _, ok := sim.Current(); ok {
		t.Error("failed still must not publish a frame")
	}
}

func TestSimStillCapture(t *testing.T) {
	sim := NewSim(solid(8, 8, color.RGBA{B: 255, A: 255}), time.Hour)
	if err := sim.StartStreaming(); err != nil {
		t.Fatal(err)
	}

	if err := <-sim.RequestStillCapture(context.Background()); err != nil {
		t.Fatalf("still capture: %v", err)
	}
	if sim.Streaming() {
		t.Error("still capture should end the live stream")
	}
	f, ok := sim.Current()
	if !ok || !f.Still || f.Seq != 1 {
		t.Errorf("expected still frame 1, got ok=%v still=%v seq=%d", ok, f.Still, f.Seq)
	}

	boom := errors.New("session configure failed")
	sim.CaptureErr = boom
	if err := <-sim.RequestStillCapture(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected configured error, got %v", err)
	}

	sim.Close()
	if sim.Available() {
		t.Error("closed sim should not be available")
	}
	if err := <-sim.RequestStillCapture(context.Background()); !errors.Is(err, ErrSourceClosed) {
		t.Errorf("expected ErrSourceClosed, got %v", err)
	}
	if sim.StillRequests() != 3 {
		t.Errorf("still requests: got %d", sim.StillRequests())
	}
}
