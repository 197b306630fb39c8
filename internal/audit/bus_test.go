package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/netimobiliaria/admin-core/internal/telemetry"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Test sinks
// ---------------------------------------------------------------------------

type recordingSink struct {
	name   string
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type failingSink struct{ name string }

func (s failingSink) Name() string                       { return s.name }
func (s failingSink) Write(context.Context, Event) error { return errors.New("disk full") }

type panickingSink struct{}

func (panickingSink) Name() string                       { return "panicking" }
func (panickingSink) Write(context.Context, Event) error { panic("boom") }

type blockingSink struct{}

func (blockingSink) Name() string { return "blocking" }
func (blockingSink) Write(ctx context.Context, _ Event) error {
	<-ctx.Done()
	return ctx.Err()
}

func sinkFailures(t *testing.T, sink string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, telemetry.AuditSinkFailuresTotal.WithLabelValues(sink).Write(&m))
	return m.GetCounter().GetValue()
}

// ---------------------------------------------------------------------------
// Bus
// ---------------------------------------------------------------------------

func TestBus_FansOutToEverySink(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	bus := NewBus(time.Second, a, b)

	bus.Record(Event{Kind: KindAction, Action: "ROLE_DELETED", Resource: "roles"})
	bus.Record(Event{Kind: KindAction, Action: "ROLE_CLONED", Resource: "roles"})
	require.NoError(t, bus.Close())

	assert.Equal(t, 2, a.count())
	assert.Equal(t, 2, b.count())
	assert.True(t, a.closed, "closer sinks are closed with the bus")
}

func TestBus_SetsTimestamp(t *testing.T) {
	s := &recordingSink{name: "ts"}
	bus := NewBus(time.Second, s)

	bus.Record(Event{Kind: KindAction, Action: "X"})
	require.NoError(t, bus.Close())

	require.Equal(t, 1, s.count())
	assert.False(t, s.events[0].Timestamp.IsZero())
}

func TestBus_FailingSinkIsIsolated(t *testing.T) {
	ok := &recordingSink{name: "ok"}
	before := sinkFailures(t, "failing-test")
	bus := NewBus(time.Second, failingSink{name: "failing-test"}, ok)

	bus.Record(Event{Kind: KindAdminAuth, Action: AuthLogin, Success: true})
	require.NoError(t, bus.Close())

	assert.Equal(t, 1, ok.count())
	assert.Equal(t, before+1, sinkFailures(t, "failing-test"))
}

func TestBus_PanickingSinkIsIsolated(t *testing.T) {
	ok := &recordingSink{name: "ok"}
	before := sinkFailures(t, "panicking")
	bus := NewBus(time.Second, panickingSink{}, ok)

	assert.NotPanics(t, func() {
		bus.Record(Event{Kind: KindAction, Action: "X"})
		_ = bus.Close()
	})
	assert.Equal(t, 1, ok.count())
	assert.Equal(t, before+1, sinkFailures(t, "panicking"))
}

func TestBus_StalledSinkIsBounded(t *testing.T) {
	ok := &recordingSink{name: "ok"}
	bus := NewBus(50*time.Millisecond, blockingSink{}, ok)

	start := time.Now()
	bus.Record(Event{Kind: KindAction, Action: "X"})
	assert.Less(t, time.Since(start), 50*time.Millisecond, "Record must not wait for sinks")

	require.NoError(t, bus.Close())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, ok.count())
}

func TestBus_RecordAfterCloseIsDropped(t *testing.T) {
	s := &recordingSink{name: "late"}
	bus := NewBus(time.Second, s)
	require.NoError(t, bus.Close())

	bus.Record(Event{Kind: KindAction, Action: "X"})
	assert.Equal(t, 0, s.count())
}

func TestNewBus_DefaultTimeout(t *testing.T) {
	bus := NewBus(0)
	assert.Equal(t, DefaultSinkTimeout, bus.timeout)
}
