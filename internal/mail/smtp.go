// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/codevault/codevault/internal/auth"
)

// DefaultSMTPTimeout bounds a delivery when the context has no deadline.
const DefaultSMTPTimeout = 30 * time.Second

// SMTPConfig configures SMTP delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c SMTPConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// deliverFunc hands a rendered message to the server at addr.
type deliverFunc func(ctx context.Context, cfg SMTPConfig, from string, to []string, msg []byte) error

// SMTPMailer delivers mail through an SMTP relay, upgrading with STARTTLS
// when the server offers it.
type SMTPMailer struct {
	cfg     SMTPConfig
	from    *mail.Address
	deliver deliverFunc
	now     func() time.Time
}

// NewSMTPMailer validates cfg and creates an SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_CONFIG").Errorf("smtp host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, oops.Code("MAIL_CONFIG").With("port", cfg.Port).Errorf("smtp port is out of range")
	}
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, oops.Code("MAIL_CONFIG").With("from", cfg.From).Wrapf(err, "invalid from address")
	}
	return &SMTPMailer{cfg: cfg, from: from, deliver: deliverSMTP, now: time.Now}, nil
}

// Send renders msg as multipart/alternative and delivers it.
func (m *SMTPMailer) Send(ctx context.Context, msg auth.Message) (string, error) {
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return "", oops.Code("MAIL_INVALID_RECIPIENT").Wrap(err)
	}

	id := fmt.Sprintf("<%s@%s>", ulid.Make().String(), m.cfg.Host)
	body, err := m.render(id, to, msg)
	if err != nil {
		return "", err
	}

	if err := m.deliver(ctx, m.cfg, m.from.Address, []string{to.Address}, body); err != nil {
		return "", oops.Code("MAIL_SEND_FAILED").
			With("host", m.cfg.Host).
			With("message_id", id).
			Wrap(err)
	}
	return id, nil
}

func (m *SMTPMailer) render(id string, to *mail.Address, msg auth.Message) ([]byte, error) {
	var buf bytes.Buffer
	parts := multipart.NewWriter(&buf)

	headers := [][2]string{
		{"From", m.from.String()},
		{"To", to.String()},
		{"Subject", mime.QEncoding.Encode("utf-8", msg.Subject)},
		{"Date", m.now().UTC().Format(time.RFC1123Z)},
		{"Message-ID", id},
		{"MIME-Version", "1.0"},
		{"Content-Type", "multipart/alternative; boundary=" + parts.Boundary()},
	}

	var out bytes.Buffer
	for _, h := range headers {
		fmt.Fprintf(&out, "%s: %s\r\n", h[0], h[1])
	}
	out.WriteString("\r\n")

	if err := writePart(parts, "text/plain", msg.Text); err != nil {
		return nil, err
	}
	if msg.HTML != "" {
		if err := writePart(parts, "text/html", msg.HTML); err != nil {
			return nil, err
		}
	}
	if err := parts.Close(); err != nil {
		return nil, oops.Code("MAIL_RENDER_FAILED").Wrap(err)
	}

	out.Write(buf.Bytes())
	return out.Bytes(), nil
}

func writePart(parts *multipart.Writer, contentType, body string) error {
	w, err := parts.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType + "; charset=utf-8"},
		"Content-Transfer-Encoding": {"8bit"},
	})
	if err != nil {
		return oops.Code("MAIL_RENDER_FAILED").With("part", contentType).Wrap(err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return oops.Code("MAIL_RENDER_FAILED").With("part", contentType).Wrap(err)
	}
	return nil
}

// deliverSMTP runs one SMTP transaction. The connection deadline follows ctx.
func deliverSMTP(ctx context.Context, cfg SMTPConfig, from string, to []string, msg []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultSMTPTimeout)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", cfg.addr())
	if err != nil {
		return err
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return err
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer client.Close() //nolint:errcheck // Quit result is what matters

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return err
		}
	}
	if cfg.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
			return err
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
