// Package bus carries messages from the sandboxed renderer to the
// controller. It is one-directional, bounded and lossy by design: the
// sandbox posts, the controller loop receives, nothing is acknowledged.
package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the channel buffer when none is configured.
const DefaultCapacity = 16

// Bus is a bounded single-producer/single-consumer channel of decoded
// messages.
type Bus struct {
	ch     chan Message
	logger *slog.Logger

	closeOnce sync.Once
	closed    atomic.Bool

	delivered atomic.Uint64
	noise     atomic.Uint64
	dropped   atomic.Uint64
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// New creates a Bus holding at most capacity undelivered messages.
func New(capacity int, opts ...Option) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Bus{
		ch:     make(chan Message, capacity),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Post decodes a raw message from the sandbox and enqueues it. Noise is
// discarded silently. It never blocks and reports whether a message was
// enqueued.
func (b *Bus) Post(data []byte) bool {
	msg, err := Decode(data)
	if err != nil {
		b.noise.Add(1)
		b.logger.Debug("bus: discarded message", "error", err, "size", len(data))
		return false
	}
	return b.Send(msg)
}

// Send enqueues a decoded message without blocking. When the buffer is
// full or the bus is closed the message is dropped.
func (b *Bus) Send(msg Message) bool {
	if b.closed.Load() {
		b.dropped.Add(1)
		return false
	}
	select {
	case b.ch <- msg:
		b.delivered.Add(1)
		return true
	default:
		b.dropped.Add(1)
		b.logger.Warn("bus: buffer full, message dropped", "type", msg.Type())
		return false
	}
}

// C returns the receive side. It is closed by Close.
func (b *Bus) C() <-chan Message { return b.ch }

// Close stops accepting messages and closes the receive channel. The
// producer must not post concurrently with Close.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.ch)
	})
}

// Stats is a point-in-time view of the bus counters.
type Stats struct {
	Delivered uint64 `json:"delivered"`
	Noise     uint64 `json:"noise"`
	Dropped   uint64 `json:"dropped"`
}

// Stats returns the current counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Delivered: b.delivered.Load(),
		Noise:     b.noise.Load(),
		Dropped:   b.dropped.Load(),
	}
}
