package jobs

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/netimobiliaria/admin-core/internal/auth"
	"github.com/netimobiliaria/admin-core/internal/config"
)

func TestComposeCodeEmail(t *testing.T) {
	msg := string(composeCodeEmail("noreply@example.com", auth.CodeMessage{
		To: "ana@example.com", Name: "Ana", Code: "042917", ExpiresIn: 10 * time.Minute,
	}))

	for _, want := range []string{
		"From: noreply@example.com\r\n",
		"To: ana@example.com\r\n",
		"Content-Type: text/plain; charset=utf-8",
		"Olá Ana,",
		"    042917",
		"expira em 10 minutos",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("email missing %q", want)
		}
	}
	if !strings.Contains(msg, "\r\n\r\n") {
		t.Error("headers and body must be separated by a blank line")
	}
}

func TestNewCodeSender(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.NotificationsConfig
		production bool
		want       string
	}{
		{"smtp", config.NotificationsConfig{Enabled: true, SMTP: config.SMTPConfig{Host: "mail"}}, true, "smtp"},
		{"enabled without host", config.NotificationsConfig{Enabled: true}, false, "log"},
		{"dev fallback", config.NotificationsConfig{}, false, "log"},
		{"production disabled", config.NotificationsConfig{}, true, "disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			switch NewCodeSender(&tt.cfg, tt.production).(type) {
			case *SMTPMailer:
				got = "smtp"
			case logSender:
				got = "log"
			case disabledSender:
				got = "disabled"
			}
			if got != tt.want {
				t.Errorf("sender = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDisabledSender(t *testing.T) {
	err := disabledSender{}.SendCode(context.Background(), auth.CodeMessage{To: "a@b.c"})
	if !errors.Is(err, ErrDeliveryDisabled) {
		t.Errorf("err = %v, want ErrDeliveryDisabled", err)
	}
}

func TestSMTPMailer_HonoursContextDeadline(t *testing.T) {
	// A listener that accepts but never speaks SMTP.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			defer c.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	m := NewSMTPMailer(&config.SMTPConfig{Host: "127.0.0.1", Port: addr.Port, From: "noreply@example.com"})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = m.SendCode(ctx, auth.CodeMessage{To: "ana@example.com", Code: "123456", ExpiresIn: time.Minute})
	if err == nil {
		t.Fatal("SendCode() succeeded against a silent server")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("SendCode() took %v, want it bounded by the context deadline", elapsed)
	}
}
