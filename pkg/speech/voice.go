package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-spotter/pkg/tts"
)

// Option configures a Voice.
type Option func(*Voice)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Voice) {
		v.logger = logger.With("component", "speech")
	}
}

// WithOnSpoken registers a callback invoked after each utterance finishes playing.
func WithOnSpoken(fn func(Utterance)) Option {
	return func(v *Voice) {
		v.onSpoken = fn
	}
}

type pending struct {
	Utterance
	ctx    context.Context
	cancel context.CancelFunc
}

// Voice speaks through a tts.Provider and a Player.
type Voice struct {
	provider tts.Provider
	player   Player
	logger   *slog.Logger
	onSpoken func(Utterance)

	mu      sync.Mutex
	queue   []*pending
	current *pending
	closed  bool

	wake      chan struct{}
	root      context.Context
	stop      context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	accepted   atomic.Uint64
	spoken     atomic.Uint64
	superseded atomic.Uint64
	failed     atomic.Uint64
}

// NewVoice starts the playback goroutine. Call Close to stop it.
func NewVoice(provider tts.Provider, player Player, opts ...Option) *Voice {
	root, stop := context.WithCancel(context.Background())
	v := &Voice{
		provider: provider,
		player:   player,
		logger:   slog.Default().With("component", "speech"),
		wake:     make(chan struct{}, 1),
		root:     root,
		stop:     stop,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.player == nil {
		v.player = NopPlayer{}
	}
	go v.run()
	return v
}

// Speak accepts text for playback and returns immediately.
func (v *Voice) Speak(ctx context.Context, text string, flush bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}

	if flush {
		if v.current != nil {
			v.current.cancel()
			v.current = nil
			v.superseded.Add(1)
		}
		for _, p := range v.queue {
			p.cancel()
			v.superseded.Add(1)
		}
		v.queue = v.queue[:0]
	}

	uctx, cancel := context.WithCancel(v.root)
	p := &pending{
		Utterance: Utterance{
			ID:       uuid.NewString(),
			Text:     text,
			Flush:    flush,
			Accepted: time.Now(),
		},
		ctx:    uctx,
		cancel: cancel,
	}
	v.queue = append(v.queue, p)
	v.mu.Unlock()

	v.accepted.Add(1)
	select {
	case v.wake <- struct{}{}:
	default:
	}
	return nil
}

// Active returns the newest utterance not superseded by a flush, if any is
// still queued or playing.
func (v *Voice) Active() (Utterance, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if n := len(v.queue); n > 0 {
		return v.queue[n-1].Utterance, true
	}
	if v.current != nil {
		return v.current.Utterance, true
	}
	return Utterance{}, false
}

// Pending returns the number of queued utterances, excluding the one playing.
func (v *Voice) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.queue)
}

// Stats returns a snapshot of the counters.
func (v *Voice) Stats() Stats {
	return Stats{
		Accepted:   v.accepted.Load(),
		Spoken:     v.spoken.Load(),
		Superseded: v.superseded.Load(),
		Failed:     v.failed.Load(),
	}
}

// Close cancels pending speech and waits for the playback goroutine.
func (v *Voice) Close() error {
	v.closeOnce.Do(func() {
		v.mu.Lock()
		v.closed = true
		v.mu.Unlock()
		v.stop()
		<-v.done
	})
	return nil
}

func (v *Voice) run() {
	defer close(v.done)
	for {
		select {
		case <-v.root.Done():
			return
		case <-v.wake:
		}

		for {
			p := v.next()
			if p == nil {
				break
			}
			v.play(p)
		}
	}
}

// next pops the queue head and makes it current.
func (v *Voice) next() *pending {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.queue) == 0 || v.closed {
		return nil
	}
	p := v.queue[0]
	v.queue = v.queue[1:]
	v.current = p
	return p
}

func (v *Voice) play(p *pending) {
	defer func() {
		p.cancel()
		v.mu.Lock()
		if v.current == p {
			v.current = nil
		}
		v.mu.Unlock()
	}()

	audio, err := v.provider.Synthesize(p.ctx, p.Text)
	if err == nil {
		err = v.player.Play(p.ctx, audio)
	}

	switch {
	case err == nil:
		v.spoken.Add(1)
		v.logger.Debug("spoken", "id", p.ID, "text", p.Text)
		if v.onSpoken != nil {
			v.onSpoken(p.Utterance)
		}
	case p.ctx.Err() != nil || errors.Is(err, context.Canceled):
		v.logger.Debug("utterance superseded", "id", p.ID)
	default:
		v.failed.Add(1)
		v.logger.Warn("speech failed", "id", p.ID, "error", err)
	}
}

// Verify Voice implements Speaker at compile time.
var _ Speaker = (*Voice)(nil)
