// mailer.go delivers step-up verification codes by email. Delivery runs on the
// caller's context: the dial honours its deadline and the whole SMTP exchange
// is bounded by it, so a stalled mail server turns into a send failure instead
// of a hung request.
package jobs

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/netimobiliaria/admin-core/internal/auth"
	"github.com/netimobiliaria/admin-core/internal/config"
)

// ErrDeliveryDisabled is returned when no mail transport is configured.
var ErrDeliveryDisabled = errors.New("email delivery disabled (notifications.enabled=false)")

// NewCodeSender picks the transport for verification codes. Outside production
// a disabled mailer logs the code instead of sending it, so local setups can
// complete step-up without SMTP.
func NewCodeSender(cfg *config.NotificationsConfig, production bool) auth.CodeSender {
	switch {
	case cfg.Enabled && cfg.SMTP.Host != "":
		return NewSMTPMailer(&cfg.SMTP)
	case production:
		return disabledSender{}
	default:
		return logSender{}
	}
}

// SMTPMailer sends plain-text code emails through one SMTP relay.
type SMTPMailer struct {
	cfg *config.SMTPConfig
}

// NewSMTPMailer creates a mailer for the given relay.
func NewSMTPMailer(cfg *config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// SendCode delivers one verification code.
func (m *SMTPMailer) SendCode(ctx context.Context, msg auth.CodeMessage) error {
	return m.send(ctx, msg.To, composeCodeEmail(m.cfg.From, msg))
}

func composeCodeEmail(from string, msg auth.CodeMessage) []byte {
	minutes := int(msg.ExpiresIn.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	name := msg.Name
	if name == "" {
		name = "usuário"
	}

	subject := "Código de verificação"
	body := strings.Join([]string{
		fmt.Sprintf("Olá %s,", name),
		"",
		"Use o código abaixo para confirmar a operação no painel administrativo:",
		"",
		"    " + msg.Code,
		"",
		fmt.Sprintf("O código expira em %d minutos e só pode ser usado uma vez.", minutes),
		"Se você não solicitou este código, altere sua senha e avise o administrador.",
	}, "\r\n")

	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
		from, msg.To, subject,
	)
	return []byte(headers + body + "\r\n")
}

func (m *SMTPMailer) send(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprintf("%d", m.cfg.Port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	tlsConfig := &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}
	if m.cfg.UseTLS && m.cfg.Port == 465 {
		conn = tls.Client(conn, tlsConfig)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer c.Close()

	if m.cfg.UseTLS && m.cfg.Port != 465 {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return errors.New("smtp server does not offer STARTTLS")
		}
		if err := c.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("smtp STARTTLS: %w", err)
		}
	}

	if m.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp end DATA: %w", err)
	}
	return c.Quit()
}

type logSender struct{}

func (logSender) SendCode(_ context.Context, msg auth.CodeMessage) error {
	slog.Warn("email delivery disabled; verification code logged for development",
		"to", auth.MaskEmail(msg.To), "code", msg.Code)
	return nil
}

type disabledSender struct{}

func (disabledSender) SendCode(context.Context, auth.CodeMessage) error {
	return ErrDeliveryDisabled
}
