package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/netimobiliaria/admin-core/internal/telemetry"
)

// EventType classifies a security monitor event
type EventType string

const (
	EventLoginAttempt       EventType = "login_attempt"
	EventLoginAttemptFailed EventType = "login_attempt_failed"
	EventRateLimitExceeded  EventType = "rate_limit_exceeded"
	EventInvalidInput       EventType = "invalid_input"
	EventSuspiciousActivity EventType = "suspicious_activity"
	EventSystemError        EventType = "system_error"
)

// Severity grades events and alerts
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SecurityEvent is one entry of the monitor's in-memory ring
type SecurityEvent struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	Severity    Severity               `json:"severity"`
	Source      string                 `json:"source"`
	Description string                 `json:"description"`
	IPAddress   string                 `json:"ip_address,omitempty"`
	UserAgent   string                 `json:"user_agent,omitempty"`
	UserID      string                 `json:"user_id,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// Alert is raised when one IP crosses a per-type threshold
type Alert struct {
	ID          string     `json:"id"`
	EventID     string     `json:"event_id"`
	Type        EventType  `json:"type"`
	Severity    Severity   `json:"severity"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	IPAddress   string     `json:"ip_address"`
	Count       int64      `json:"count"`
	Timestamp   time.Time  `json:"timestamp"`
	Resolved    bool       `json:"resolved"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy  string     `json:"resolved_by,omitempty"`
}

// MonitorStats summarizes the events currently held in memory
type MonitorStats struct {
	TotalEvents      int              `json:"totalEvents"`
	ActiveAlerts     int              `json:"activeAlerts"`
	ResolvedAlerts   int              `json:"resolvedAlerts"`
	EventsByType     map[string]int   `json:"eventsByType"`
	EventsBySeverity map[string]int   `json:"eventsBySeverity"`
	Thresholds       map[string]int64 `json:"thresholds"`
}

// threshold raises an alert of the given severity once count events of one
// type arrive from one IP within window.
type threshold struct {
	count    int64
	window   time.Duration
	severity Severity
	title    string
	unit     string
}

var thresholds = map[EventType]threshold{
	EventLoginAttemptFailed: {10, time.Minute, SeverityHigh, "Múltiplas tentativas de login", "1 minuto"},
	EventRateLimitExceeded:  {5, time.Hour, SeverityMedium, "Rate limiting excessivo", "1 hora"},
	EventInvalidInput:       {20, time.Hour, SeverityMedium, "Múltiplas entradas inválidas", "1 hora"},
	EventSuspiciousActivity: {3, time.Hour, SeverityCritical, "Atividade suspeita detectada", "1 hora"},
}

// Counter counts events per key inside a trailing window.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

const maxAlerts = 500

// SecurityMonitor keeps a bounded ring of recent security events and raises
// alerts from per-IP counters.
type SecurityMonitor struct {
	counter  Counter
	fallback *MemoryCounter

	mu       sync.RWMutex
	events   []SecurityEvent
	capacity int
	next     int
	full     bool
	alerts   []*Alert
}

// NewSecurityMonitor creates a monitor holding up to capacity events. A nil
// counter keeps the per-IP counters in memory.
func NewSecurityMonitor(capacity int, counter Counter) *SecurityMonitor {
	if capacity <= 0 {
		capacity = 1000
	}
	fallback := NewMemoryCounter()
	if counter == nil {
		counter = fallback
	}
	return &SecurityMonitor{
		counter:  counter,
		fallback: fallback,
		events:   make([]SecurityEvent, capacity),
		capacity: capacity,
	}
}

// Log records an event and evaluates its alert threshold.
func (m *SecurityMonitor) Log(ctx context.Context, ev SecurityEvent) SecurityEvent {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	m.mu.Lock()
	m.events[m.next] = ev
	m.next = (m.next + 1) % m.capacity
	if m.next == 0 {
		m.full = true
	}
	m.mu.Unlock()

	if th, ok := thresholds[ev.Type]; ok && ev.IPAddress != "" {
		m.checkThreshold(ctx, ev, th)
	}
	return ev
}

func (m *SecurityMonitor) checkThreshold(ctx context.Context, ev SecurityEvent, th threshold) {
	key := fmt.Sprintf("secmon:%s:%s", ev.Type, ev.IPAddress)
	count, err := m.counter.Incr(ctx, key, th.window)
	if err != nil {
		slog.Warn("security monitor counter unavailable, using memory", "error", err)
		count, _ = m.fallback.Incr(ctx, key, th.window)
	}
	if count < th.count {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.alerts {
		if !a.Resolved && a.Type == ev.Type && a.IPAddress == ev.IPAddress {
			a.Count = count
			a.Description = fmt.Sprintf("%d eventos %s em %s do IP %s", count, ev.Type, th.unit, ev.IPAddress)
			return
		}
	}

	alert := &Alert{
		ID:          uuid.NewString(),
		EventID:     ev.ID,
		Type:        ev.Type,
		Severity:    th.severity,
		Title:       th.title,
		Description: fmt.Sprintf("%d eventos %s em %s do IP %s", count, ev.Type, th.unit, ev.IPAddress),
		IPAddress:   ev.IPAddress,
		Count:       count,
		Timestamp:   time.Now(),
	}
	m.alerts = append(m.alerts, alert)
	if len(m.alerts) > maxAlerts {
		m.alerts = m.alerts[len(m.alerts)-maxAlerts:]
	}

	telemetry.SecurityAlertsTotal.WithLabelValues(string(ev.Type), string(th.severity)).Inc()
	slog.Warn("security alert raised",
		"type", ev.Type, "severity", th.severity, "ip", ev.IPAddress, "count", count)
}

// LogLoginAttempt records the outcome of a login.
func (m *SecurityMonitor) LogLoginAttempt(ctx context.Context, ip, userAgent string, success bool, userID string) {
	ev := SecurityEvent{
		Type:        EventLoginAttempt,
		Severity:    SeverityLow,
		Source:      "auth",
		Description: "Login bem-sucedido",
		IPAddress:   ip,
		UserAgent:   userAgent,
		UserID:      userID,
		Details:     map[string]interface{}{"success": success},
	}
	if !success {
		ev.Type = EventLoginAttemptFailed
		ev.Severity = SeverityMedium
		ev.Description = "Tentativa de login falhada"
	}
	m.Log(ctx, ev)
}

// LogRateLimitExceeded records a request rejected by a rate limiter.
func (m *SecurityMonitor) LogRateLimitExceeded(ctx context.Context, ip, userAgent, path string) {
	m.Log(ctx, SecurityEvent{
		Type:        EventRateLimitExceeded,
		Severity:    SeverityMedium,
		Source:      "rate_limiter",
		Description: "Rate limit excedido",
		IPAddress:   ip,
		UserAgent:   userAgent,
		Details:     map[string]interface{}{"path": path},
	})
}

// LogInvalidInput records a request rejected by input validation.
func (m *SecurityMonitor) LogInvalidInput(ctx context.Context, ip, userAgent, path, reason string) {
	m.Log(ctx, SecurityEvent{
		Type:        EventInvalidInput,
		Severity:    SeverityLow,
		Source:      "validation",
		Description: "Entrada inválida",
		IPAddress:   ip,
		UserAgent:   userAgent,
		Details:     map[string]interface{}{"path": path, "reason": reason},
	})
}

// RecentEvents returns up to limit events, newest first.
func (m *SecurityMonitor) RecentEvents(limit int) []SecurityEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := m.next
	if m.full {
		n = m.capacity
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]SecurityEvent, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (m.next - i + m.capacity) % m.capacity
		out = append(out, m.events[idx])
	}
	return out
}

// Alerts returns alerts newest first; resolved alerts only when includeResolved.
func (m *SecurityMonitor) Alerts(includeResolved bool) []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if a.Resolved && !includeResolved {
			continue
		}
		out = append(out, *a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// ResolveAlert marks an alert resolved. It returns false for unknown or
// already resolved alerts.
func (m *SecurityMonitor) ResolveAlert(id, resolvedBy string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.alerts {
		if a.ID == id {
			if a.Resolved {
				return false
			}
			now := time.Now()
			a.Resolved = true
			a.ResolvedAt = &now
			a.ResolvedBy = resolvedBy
			return true
		}
	}
	return false
}

// Stats summarizes the in-memory ring and alert list.
func (m *SecurityMonitor) Stats() MonitorStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := MonitorStats{
		EventsByType:     make(map[string]int),
		EventsBySeverity: make(map[string]int),
		Thresholds:       make(map[string]int64, len(thresholds)),
	}
	n := m.next
	if m.full {
		n = m.capacity
	}
	for i := 0; i < n; i++ {
		ev := m.events[i]
		stats.TotalEvents++
		stats.EventsByType[string(ev.Type)]++
		stats.EventsBySeverity[string(ev.Severity)]++
	}
	for _, a := range m.alerts {
		if a.Resolved {
			stats.ResolvedAlerts++
		} else {
			stats.ActiveAlerts++
		}
	}
	for t, th := range thresholds {
		stats.Thresholds[string(t)] = th.count
	}
	return stats
}

// memorySweepEvery is how many increments pass between sweeps of idle keys.
const memorySweepEvery = 256

// MemoryCounter is a sliding-window Counter kept in process memory. Keys whose
// window has fully elapsed are dropped by a sweep every memorySweepEvery calls,
// so one-off keys do not accumulate.
type MemoryCounter struct {
	mu    sync.Mutex
	keys  map[string]*counterWindow
	calls int
	now   func() time.Time
}

type counterWindow struct {
	hits   []time.Time
	window time.Duration
}

// NewMemoryCounter creates an empty MemoryCounter
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{keys: make(map[string]*counterWindow), now: time.Now}
}

// Incr records one hit for key and returns the hits inside window.
func (c *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.calls++
	if c.calls%memorySweepEvery == 0 {
		c.sweep(now)
	}

	w, ok := c.keys[key]
	if !ok {
		w = &counterWindow{}
		c.keys[key] = w
	}
	w.window = window
	cutoff := now.Add(-window)
	kept := w.hits[:0]
	for _, t := range w.hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.hits = append(kept, now)
	return int64(len(w.hits)), nil
}

// sweep drops keys whose newest hit left their window. Caller holds mu.
func (c *MemoryCounter) sweep(now time.Time) {
	for key, w := range c.keys {
		if len(w.hits) == 0 || !w.hits[len(w.hits)-1].After(now.Add(-w.window)) {
			delete(c.keys, key)
		}
	}
}

// size returns the number of keys currently tracked.
func (c *MemoryCounter) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}
