package notifications

import (
	"context"
	"fmt"
	"crypto/tls"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/upb/signalops/models"
	"go.uber.org/zap"
)

// SMTPConfig holds the email transport settings.
// An empty Host keeps the provider in log-only mode.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendMailFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailProvider delivers notifications over SMTP
type EmailProvider struct {
	cfg      SMTPConfig
	logger   *zap.Logger
	sendMail sendMailFunc
}

// NewEmailProvider creates a new email provider
func NewEmailProvider(cfg SMTPConfig, logger *zap.Logger) *EmailProvider {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &EmailProvider{
		cfg:      cfg,
		logger:   logger.With(zap.String("provider", string(models.ChannelEmail))),
		sendMail: sendMailContext,
	}
}

// Name returns the provider name
func (p *EmailProvider) Name() string {
	return string(models.ChannelEmail)
}

// Send delivers the payload as a plain-text email
func (p *EmailProvider) Send(ctx context.Context, payload Payload) error {
	to, err := mail.ParseAddress(payload.Destination)
	if err != nil {
		return NewProviderError(p.Name(), "INVALID_DESTINATION", "invalid email address", 0, false, err)
	}

	if p.cfg.Host == "" {
		p.logger.Info("email (log-only)",
			zap.String("to", to.Address),
			zap.String("subject", payload.Subject),
		)
		return nil
	}

	if err := ctx.Err(); err != nil {
		return NewProviderError(p.Name(), "CANCELLED", "send cancelled", 0, true, err)
	}

	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)
	msg := buildMessage(p.cfg.From, to.Address, payload.Subject, payload.Message)
	if err := p.sendMail(ctx, addr, auth, p.cfg.From, []string{to.Address}, msg); err != nil {
		return NewProviderError(p.Name(), "SEND_FAILED", "smtp delivery failed", 0, true, err)
	}

	p.logger.Debug("email sent", zap.String("to", to.Address))
	return nil
}

// sendMailContext mirrors smtp.SendMail but bounds the whole exchange by ctx
func sendMailContext(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return err
		}
	}
	// unblock reads and writes when ctx is cancelled before the deadline
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// sanitizeHeader strips line breaks so a subject cannot inject headers
func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
