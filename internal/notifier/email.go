package notifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// EmailSender sends alerts via SMTP.
type EmailSender struct {
	templates *Templates
}

// NewEmailSender creates an email sender with the embedded templates.
func NewEmailSender() (*EmailSender, error) {
	templates, err := LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	return &EmailSender{templates: templates}, nil
}

// Type returns "email".
func (e *EmailSender) Type() models.ChannelType {
	return models.ChannelEmail
}

// Send sends the alert to all recipients of the channel.
func (e *EmailSender) Send(ctx context.Context, ch models.AlertChannel, alert *models.HealthAlert) error {
	cfg := ch.Email
	if cfg == nil {
		return errorf(ErrInvalidChannel, "channel %q has no email config", ch.Name)
	}
	if err := cfg.Validate(); err != nil {
		return errorf(ErrInvalidChannel, "invalid email config: %v", err)
	}

	data := AlertToTemplateData(alert)

	htmlBody, err := e.templates.RenderHTML(&data)
	if err != nil {
		return fmt.Errorf("failed to render HTML template: %w", err)
	}
	plainBody, err := e.templates.RenderPlain(&data)
	if err != nil {
		return fmt.Errorf("failed to render plain template: %w", err)
	}

	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alertTitle(alert))
	msg := buildMIMEMessage(cfg, subject, plainBody, htmlBody)

	return sendMail(ctx, cfg, msg)
}

// Close is a no-op for email sender.
func (e *EmailSender) Close() error {
	return nil
}

// buildMIMEMessage builds a MIME multipart message with HTML and plain text.
func buildMIMEMessage(cfg *models.EmailConfig, subject, plainBody, htmlBody string) []byte {
	boundary := fmt.Sprintf("----=_Part_%d", time.Now().UnixNano())

	var msg strings.Builder

	fmt.Fprintf(&msg, "From: %s\r\n", cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(cfg.Recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	msg.WriteString("\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(plainBody)
	msg.WriteString("\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)
	msg.WriteString("\r\n")

	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return []byte(msg.String())
}

// sendMail sends the email via SMTP.
func sendMail(ctx context.Context, cfg *models.EmailConfig, msg []byte) error {
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	tlsConfig := &tls.Config{ServerName: cfg.Host}

	var client *smtp.Client
	var err error
	if cfg.Port == 465 {
		client, err = connectImplicitTLS(ctx, cfg.Host, addr, tlsConfig)
	} else {
		client, err = connectSTARTTLS(ctx, cfg.Host, addr, tlsConfig)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if cfg.Username != "" && cfg.Password != "" {
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(extractEmail(cfg.From)); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range cfg.Recipients {
		if err := client.Rcpt(extractEmail(rcpt)); err != nil {
			return fmt.Errorf("failed to add recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data: %w", err)
	}

	return client.Quit()
}

// connectImplicitTLS connects using implicit TLS (port 465).
func connectImplicitTLS(ctx context.Context, host, addr string, tlsConfig *tls.Config) (*smtp.Client, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: models.DefaultChannelTimeout},
		Config:    tlsConfig,
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	setConnDeadline(ctx, conn)

	return smtp.NewClient(conn, host)
}

// connectSTARTTLS connects using STARTTLS (port 587 or 25).
func connectSTARTTLS(ctx context.Context, host, addr string, tlsConfig *tls.Config) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: models.DefaultChannelTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	setConnDeadline(ctx, conn)

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
	}
	return client, nil
}

// setConnDeadline bounds the whole SMTP conversation by the context deadline.
func setConnDeadline(ctx context.Context, conn net.Conn) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
}

// extractEmail extracts the email address from a "Name <email>" format.
func extractEmail(addr string) string {
	if start := strings.Index(addr, "<"); start != -1 {
		if end := strings.Index(addr, ">"); end != -1 && end > start {
			return addr[start+1 : end]
		}
	}
	return addr
}
