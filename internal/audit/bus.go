package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/netimobiliaria/admin-core/internal/safego"
	"github.com/netimobiliaria/admin-core/internal/telemetry"
)

// Recorder accepts events without blocking the caller.
type Recorder interface {
	Record(e Event)
}

// Sink is one destination of the audit fan-out.
type Sink interface {
	Name() string
	Write(ctx context.Context, e Event) error
}

// DefaultSinkTimeout bounds a sink write when the bus is built without one.
const DefaultSinkTimeout = 5 * time.Second

// Bus delivers each recorded event to every sink in its own goroutine.
type Bus struct {
	sinks   []Sink
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewBus creates a bus over the given sinks.
func NewBus(timeout time.Duration, sinks ...Sink) *Bus {
	if timeout <= 0 {
		timeout = DefaultSinkTimeout
	}
	return &Bus{sinks: sinks, timeout: timeout}
}

// Record fans e out and returns immediately. Events recorded after Close are dropped.
func (b *Bus) Record(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		slog.Warn("audit event dropped: bus closed", "action", e.Action)
		return
	}

	for _, s := range b.sinks {
		b.wg.Add(1)
		safego.Go("audit-sink-"+s.Name(), func() {
			defer b.wg.Done()
			if err := b.deliver(s, e); err != nil {
				telemetry.AuditSinkFailuresTotal.WithLabelValues(s.Name()).Inc()
				slog.Error("audit sink write failed",
					"sink", s.Name(), "action", e.Action, "error", err)
			}
		})
	}
}

// deliver runs one sink write under the bus timeout, turning a panic into an error.
func (b *Bus) deliver(s Sink, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	return s.Write(ctx, e)
}

// Close stops accepting events, waits for in-flight writes and closes every
// sink that holds resources.
func (b *Bus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()

	var lastErr error
	for _, s := range b.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}
