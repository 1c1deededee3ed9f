package inference

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-spotter/pkg/preprocess"
)

// Mock implements Engine for testing.
type Mock struct {
	// InferFunc is called when Infer is invoked.
	// If nil, returns empty buffers of Capacity slots.
	InferFunc func(ctx context.Context, t *preprocess.Tensor) (*RawDetections, error)

	// Capacity is used by the default InferFunc.
	Capacity int

	mu     sync.Mutex
	calls  []MockCall
	closed bool
}

// MockCall records an Infer invocation.
type MockCall struct {
	Width  int
	Height int
	Time   time.Time
}

// NewMock creates a mock returning empty detections.
func NewMock() *Mock {
	return &Mock{Capacity: DefaultCapacity}
}

// Returning creates a mock that always returns a copy of raw.
func Returning(raw *RawDetections) *Mock {
	m := NewMock()
	m.InferFunc = func(ctx context.Context, t *preprocess.Tensor) (*RawDetections, error) {
		return raw.clone(), nil
	}
	return m
}

// WithError creates a mock that always fails with err.
func WithError(err error) *Mock {
	m := NewMock()
	m.InferFunc = func(ctx context.Context, t *preprocess.Tensor) (*RawDetections, error) {
		return nil, WrapError("mock", err)
	}
	return m
}

// WithLatency wraps a mock to block for delay before answering.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	inner := m.InferFunc
	m.InferFunc = func(ctx context.Context, t *preprocess.Tensor) (*RawDetections, error) {
		time.Sleep(delay)
		if inner != nil {
			return inner(ctx, t)
		}
		return NewRawDetections(m.Capacity), nil
	}
	return m
}

// Infer records the call and delegates to InferFunc.
func (m *Mock) Infer(ctx context.Context, t *preprocess.Tensor) (*RawDetections, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, WrapError("mock", ErrEngineClosed)
	}
	call := MockCall{Time: time.Now()}
	if t != nil {
		call.Width, call.Height = t.Width, t.Height
	}
	m.calls = append(m.calls, call)
	fn := m.InferFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, t)
	}
	return NewRawDetections(m.Capacity), nil
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Infer calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (r *RawDetections) clone() *RawDetections {
	return &RawDetections{
		Locations: append([]float32(nil), r.Locations...),
		Classes:   append([]float32(nil), r.Classes...),
		Scores:    append([]float32(nil), r.Scores...),
	}
}

// Verify Mock implements Engine at compile time.
var _ Engine = (*Mock)(nil)
