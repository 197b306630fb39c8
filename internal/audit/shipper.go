package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/netimobiliaria/admin-core/internal/config"
	"github.com/netimobiliaria/admin-core/internal/db/models"
)

// LogEntry is the wire form of an event sent to external shippers
type LogEntry struct {
	Timestamp      time.Time              `json:"timestamp"`
	Action         string                 `json:"action"`
	Resource       string                 `json:"resource"`
	ResourceID     string                 `json:"resource_id,omitempty"`
	UserID         string                 `json:"user_id,omitempty"`
	PublicUserUUID string                 `json:"public_user_uuid,omitempty"`
	UserType       string                 `json:"user_type,omitempty"`
	IPAddress      string                 `json:"ip_address,omitempty"`
	UserAgent      string                 `json:"user_agent,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// NewLogEntry builds the shipped form of e, with the same normalized action
// and details as the audit_logs row.
func NewLogEntry(e Event) *LogEntry {
	action, resource := Normalize(e)
	return &LogEntry{
		Timestamp:      e.Timestamp,
		Action:         action,
		Resource:       resource,
		ResourceID:     e.ResourceID,
		UserID:         e.UserID,
		PublicUserUUID: e.PublicUserUUID,
		UserType:       e.UserType,
		IPAddress:      e.IPAddress,
		UserAgent:      e.UserAgent,
		Metadata:       auditDetails(e),
	}
}

// EntryFromLog builds the shipped form of a stored audit_logs row.
func EntryFromLog(l *models.AuditLog) *LogEntry {
	return &LogEntry{
		Timestamp:      l.Timestamp,
		Action:         l.Action,
		Resource:       l.Resource,
		ResourceID:     deref(l.ResourceID),
		UserID:         deref(l.UserID),
		PublicUserUUID: deref(l.PublicUserUUID),
		UserType:       deref(l.UserType),
		IPAddress:      deref(l.IPAddress),
		UserAgent:      deref(l.UserAgent),
		Metadata:       l.Details,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Shipper delivers entries to one destination outside the database.
type Shipper interface {
	Ship(ctx context.Context, entry *LogEntry) error
	Close() error
}

// OpenShipperSinks builds one bus sink per enabled shipper config, so a slow
// or failing destination never delays the others. Sinks opened before an
// error are closed again.
func OpenShipperSinks(configs []config.AuditShipperConfig) ([]*ShipperSink, error) {
	var sinks []*ShipperSink
	for i, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		shipper, err := openShipper(cfg)
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			return nil, fmt.Errorf("audit shipper %d (%s): %w", i, cfg.Type, err)
		}
		sinks = append(sinks, NewShipperSink(fmt.Sprintf("%s-%d", cfg.Type, i), shipper))
	}
	return sinks, nil
}

func openShipper(cfg config.AuditShipperConfig) (Shipper, error) {
	switch cfg.Type {
	case "webhook":
		if cfg.Webhook == nil {
			return nil, fmt.Errorf("webhook section is required")
		}
		return NewWebhookShipper(cfg.Webhook)
	case "file":
		if cfg.File == nil {
			return nil, fmt.Errorf("file section is required")
		}
		return NewFileShipper(cfg.File)
	default:
		return nil, fmt.Errorf("unknown shipper type %q", cfg.Type)
	}
}

// WebhookShipper POSTs each entry as a JSON object. The bus bounds every
// call with its sink timeout; the client timeout caps a call made outside it.
type WebhookShipper struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookShipper creates a WebhookShipper. TimeoutSecs defaults to 10.
func NewWebhookShipper(cfg *config.AuditWebhookConfig) (*WebhookShipper, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	timeout := 10 * time.Second
	if cfg.TimeoutSecs > 0 {
		timeout = time.Duration(cfg.TimeoutSecs) * time.Second
	}
	return &WebhookShipper{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (w *WebhookShipper) Ship(ctx context.Context, entry *LogEntry) error {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(entry); err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, &body)
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook answered %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op; idle connections belong to the client.
func (w *WebhookShipper) Close() error { return nil }

// FileShipper appends entries as JSON lines. With MaxSizeMB set the file is
// rotated to path.1 ... path.N once it grows past the limit, keeping at most
// MaxBackups old files.
type FileShipper struct {
	path       string
	maxBytes   int64
	maxBackups int

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewFileShipper opens (or creates) the file at cfg.Path for appending.
func NewFileShipper(cfg *config.AuditFileConfig) (*FileShipper, error) {
	f := &FileShipper{
		path:       cfg.Path,
		maxBytes:   int64(cfg.MaxSizeMB) << 20,
		maxBackups: cfg.MaxBackups,
	}
	if err := f.open(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FileShipper) open() error {
	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open audit file %s: %w", f.path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat audit file %s: %w", f.path, err)
	}
	f.file, f.size = file, info.Size()
	return nil
}

func (f *FileShipper) Ship(_ context.Context, entry *LogEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	line = append(line, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.maxBytes > 0 && f.size > 0 && f.size+int64(len(line)) > f.maxBytes {
		if err := f.rotate(); err != nil {
			slog.Error("audit file rotation failed", "path", f.path, "error", err)
			if f.file == nil {
				return err
			}
		}
	}

	n, err := f.file.Write(line)
	f.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// rotate shifts path.i to path.i+1, drops the oldest and reopens path empty.
// Callers hold mu.
func (f *FileShipper) rotate() error {
	if err := f.file.Close(); err != nil {
		return err
	}
	f.file = nil

	backup := func(i int) string { return fmt.Sprintf("%s.%d", f.path, i) }
	if f.maxBackups > 0 {
		_ = os.Remove(backup(f.maxBackups))
		for i := f.maxBackups - 1; i >= 1; i-- {
			_ = os.Rename(backup(i), backup(i+1))
		}
		_ = os.Rename(f.path, backup(1))
	} else {
		_ = os.Remove(f.path)
	}
	return f.open()
}

// Close closes the underlying file.
func (f *FileShipper) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
