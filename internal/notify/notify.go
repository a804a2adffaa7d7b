// Package notify は新着問い合わせの通知を提供する。
// SMTPが設定されている場合はメールで、未設定の場合はログ出力で通知する。
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mail "github.com/go-mail/mail"

	"github.com/hitoshi/solidfoundation/internal/model"
)

// Notifier は新着問い合わせを担当者に通知する。
type Notifier interface {
	NotifyContact(ctx context.Context, c *model.ContactRequest) error
}

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// New は設定に応じたNotifierを返す。Hostが空の場合はLogNotifierを返す。
func New(cfg SMTPConfig, to string, logger *slog.Logger) Notifier {
	if cfg.Host == "" {
		return NewLogNotifier(to, logger)
	}
	return NewMailNotifier(cfg, to, logger)
}

// MailNotifier はSMTPでメールを送信するNotifier。
type MailNotifier struct {
	cfg    SMTPConfig
	to     string
	logger *slog.Logger
	send   func(m *mail.Message) error
}

// NewMailNotifier はMailNotifierを生成する。
func NewMailNotifier(cfg SMTPConfig, to string, logger *slog.Logger) *MailNotifier {
	n := &MailNotifier{cfg: cfg, to: to, logger: logger}
	n.send = n.dialAndSend
	return n
}

func (n *MailNotifier) dialAndSend(m *mail.Message) error {
	d := mail.NewDialer(n.cfg.Host, n.cfg.Port, n.cfg.Username, n.cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: n.cfg.Host}
	if n.cfg.Timeout > 0 {
		d.Timeout = n.cfg.Timeout
	}
	return d.DialAndSend(m)
}

// NotifyContact は問い合わせ内容をメールで送信する。
func (n *MailNotifier) NotifyContact(ctx context.Context, c *model.ContactRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := buildContactMessage(n.cfg.From, n.to, c)
	if err := n.send(m); err != nil {
		n.logger.Error("failed to send contact notification",
			slog.Int64("contact_id", c.ID),
			slog.String("to", n.to),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("smtp send: %w", err)
	}

	n.logger.Info("contact notification sent",
		slog.Int64("contact_id", c.ID),
		slog.String("to", n.to),
	)
	return nil
}

// buildContactMessage は通知メールを組み立てる。返信先は問い合わせ者のメールアドレス。
func buildContactMessage(from, to string, c *model.ContactRequest) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Reply-To", c.Email)
	m.SetHeader("Subject", fmt.Sprintf("New contact request #%d from %s %s", c.ID, c.FirstName, c.LastName))
	m.SetBody("text/plain", contactBody(c))
	return m
}

func contactBody(c *model.ContactRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s %s\n", c.FirstName, c.LastName)
	fmt.Fprintf(&b, "Email: %s\n", c.Email)
	if c.Phone != nil {
		fmt.Fprintf(&b, "Phone: %s\n", *c.Phone)
	}
	if c.ServiceType != nil {
		fmt.Fprintf(&b, "Service: %s\n", *c.ServiceType)
	}
	fmt.Fprintf(&b, "Received: %s\n", c.CreatedAt.Format(time.RFC3339))
	if c.Description != nil && *c.Description != "" {
		b.WriteString("\n")
		b.WriteString(*c.Description)
		b.WriteString("\n")
	}
	return b.String()
}

// LogNotifier は通知内容をログに出力するだけのNotifier。
type LogNotifier struct {
	to     string
	logger *slog.Logger
}

// NewLogNotifier はLogNotifierを生成する。
func NewLogNotifier(to string, logger *slog.Logger) *LogNotifier {
	return &LogNotifier{to: to, logger: logger}
}

// NotifyContact は送信されるはずだった通知をログに出力する。
func (n *LogNotifier) NotifyContact(_ context.Context, c *model.ContactRequest) error {
	n.logger.Info("contact notification (smtp not configured)",
		slog.String("to", n.to),
		slog.Int64("contact_id", c.ID),
		slog.String("email", c.Email),
		slog.String("name", c.FirstName+" "+c.LastName),
	)
	return nil
}

// compile-time interface checks
var (
	_ Notifier = (*MailNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
