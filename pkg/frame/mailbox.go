package frame

import (
	"sync"
	"sync/atomic"
)

// Mailbox is a single-slot frame buffer with overwrite semantics.
//
// Publish never blocks: a new frame replaces the previous one and a coalesced
// notification is sent on Ready. If the consumer has not read the previous
// frame it is counted as dropped. There is no queue, so a slow consumer
// always sees the most recent frame.
type Mailbox struct {
	mu     sync.Mutex
	frame  Frame
	has    bool
	unread bool
	seq    uint64

	drops atomic.Uint64
	ready chan struct{}
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{ready: make(chan struct{}, 1)}
}

// Publish stores f as the newest frame and assigns its sequence number.
// The mailbox takes ownership of f.Pix.
func (m *Mailbox) Publish(f Frame) uint64 {
	m.mu.Lock()
	if m.unread {
		m.drops.Add(1)
	}
	m.seq++
	f.Seq = m.seq
	m.frame = f
	m.has = true
	m.unread = true
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
		// Notification already pending
	}
	return f.Seq
}

// Ready returns the notification channel. It carries at most one pending signal.
func (m *Mailbox) Ready() <-chan struct{} {
	return m.ready
}

// Current returns the newest frame and marks it consumed.
// The returned frame shares its buffer with the mailbox and must not be mutated.
func (m *Mailbox) Current() (Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unread = false
	return m.frame, m.has
}

// Drops returns how many frames were overwritten before being read.
func (m *Mailbox) Drops() uint64 {
	return m.drops.Load()
}

// Seq returns the sequence number of the newest frame.
func (m *Mailbox) Seq() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}
