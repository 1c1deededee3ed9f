package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultCooldown is how long a failed provider is passed over.
const DefaultCooldown = 30 * time.Second

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithCooldown sets how long a failed provider moves to the back of the line.
func WithCooldown(d time.Duration) ChainOption {
	return func(c *Chain) {
		c.cooldown = d
	}
}

// WithChainClock replaces the wall clock, typically with clock.NewMock in tests.
func WithChainClock(clk clock.Clock) ChainOption {
	return func(c *Chain) {
		c.clk = clk
	}
}

// WithChainLogger sets the structured logger.
func WithChainLogger(logger *slog.Logger) ChainOption {
	return func(c *Chain) {
		c.logger = logger.With("component", "tts.chain")
	}
}

// Chain implements Provider over a preference-ordered list, typically a
// hosted voice followed by a local engine. A provider that fails is benched
// for a cooldown so the next detections are not held up waiting on it; a
// benched provider is still tried after the others.
type Chain struct {
	providers []Provider
	cooldown  time.Duration
	clk       clock.Clock
	logger    *slog.Logger

	mu      sync.Mutex
	benched []time.Time // Zero when the provider is in good standing
}

// NewChain creates a chain over providers in preference order.
func NewChain(providers []Provider, opts ...ChainOption) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	c := &Chain{
		providers: providers,
		cooldown:  DefaultCooldown,
		clk:       clock.New(),
		logger:    slog.Default().With("component", "tts.chain"),
		benched:   make([]time.Time, len(providers)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Synthesize tries providers until one succeeds. A flushed utterance (ctx
// done) ends the attempt without benching anyone or falling back.
func (c *Chain) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	var errs []error
	for _, i := range c.order() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := c.providers[i].Synthesize(ctx, text)
		if err == nil {
			c.reinstate(i)
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrEmptyText) {
			return nil, err
		}

		c.bench(i)
		errs = append(errs, err)
		c.logger.Warn("provider failed, trying next", "provider_index", i, "error", err)
	}
	return nil, &ChainError{Errors: errs}
}

// order lists providers in good standing first, benched ones after, each
// group in preference order.
func (c *Chain) order() []int {
	now := c.clk.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	ready := make([]int, 0, len(c.providers))
	var benched []int
	for i, until := range c.benched {
		if now.Before(until) {
			benched = append(benched, i)
		} else {
			ready = append(ready, i)
		}
	}
	return append(ready, benched...)
}

func (c *Chain) bench(i int) {
	until := c.clk.Now().Add(c.cooldown)
	c.mu.Lock()
	c.benched[i] = until
	c.mu.Unlock()
}

func (c *Chain) reinstate(i int) {
	c.mu.Lock()
	was := !c.benched[i].IsZero()
	c.benched[i] = time.Time{}
	c.mu.Unlock()
	if was {
		c.logger.Info("provider recovered", "provider_index", i)
	}
}

// Health is nil when at least one provider is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var errs []error
	for _, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return &ChainError{Errors: errs}
}

// Close closes every provider.
func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Providers returns the providers in preference order.
func (c *Chain) Providers() []Provider {
	return c.providers
}

// ChainError holds one error per provider that failed.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("tts chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("tts chain: all %d providers failed: %v", len(e.Errors), errors.Join(e.Errors...))
}

// Unwrap exposes every provider error to errors.Is and errors.As.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}

var _ Provider = (*Chain)(nil)
