package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"net/textproto"
	"strings"

	"arxivalert/internal/config"
	"arxivalert/internal/domain"
	"arxivalert/internal/notify"
	"arxivalert/internal/ports"
)

// sendMailFunc matches smtp.SendMail; injected for tests.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSender delivers one plain-text digest per cycle over SMTP.
type EmailSender struct {
	id     string
	cfg    config.EmailConfig
	send   sendMailFunc
	logger *slog.Logger
}

var _ ports.Sender = (*EmailSender)(nil)

// NewEmailSender wires SMTP settings for a digest channel.
func NewEmailSender(id string, cfg *config.EmailConfig, logger *slog.Logger) *EmailSender {
	s := &EmailSender{id: id, send: smtp.SendMail, logger: logger}
	if cfg != nil {
		s.cfg = *cfg
	}
	return s
}

// ID returns the channel identifier.
func (s *EmailSender) ID() string { return s.id }

// BatchSize declares digest granularity: all pending papers in one email.
func (s *EmailSender) BatchSize() int { return 0 }

// Deliver sends a digest email covering the whole batch.
func (s *EmailSender) Deliver(ctx context.Context, papers []domain.Paper) error {
	if s.cfg.Host == "" || len(s.cfg.To) == 0 {
		return notify.TerminalError("email channel %s misconfigured", s.id)
	}
	if err := ctx.Err(); err != nil {
		return notify.RetryableError("email channel %s: %v", s.id, err)
	}

	port := s.cfg.Port
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, port)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	msg := buildDigestMessage(s.cfg.From, s.cfg.To, papers)
	if err := s.send(addr, auth, s.cfg.From, s.cfg.To, msg); err != nil {
		return classifySMTP(s.id, err)
	}

	s.debug("digest email sent", "channel", s.id, "papers", len(papers), "recipients", len(s.cfg.To))
	return nil
}

func (s *EmailSender) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

// buildDigestMessage renders the RFC 5322 message: headers plus one text
// block per paper.
func buildDigestMessage(from string, to []string, papers []domain.Paper) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: arXiv Alert: %d New Papers\r\n", len(papers))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")

	fmt.Fprintf(&b, "Found %d new papers matching your criteria:\r\n\r\n", len(papers))
	for _, p := range papers {
		fmt.Fprintf(&b, "Title: %s\r\n", p.Title)
		if line := authorsLine(p.Authors, 3); line != "" {
			fmt.Fprintf(&b, "Authors: %s\r\n", line)
		}
		fmt.Fprintf(&b, "Published: %s\r\n", p.PublishedAt.Format("2006-01-02"))
		if len(p.Categories) > 0 {
			fmt.Fprintf(&b, "Categories: %s\r\n", strings.Join(p.Categories, ", "))
		}
		fmt.Fprintf(&b, "URL: %s\r\n\r\n", p.URL)
		fmt.Fprintf(&b, "Abstract: %s\r\n", truncateAbstract(p.Abstract, 300))
		b.WriteString(strings.Repeat("=", 80) + "\r\n")
	}
	return []byte(b.String())
}

// classifySMTP maps SMTP reply codes into the delivery taxonomy. SMTP 4yz
// replies are transient by definition, 5yz are permanent; anything without a
// reply code is a transport failure and retries.
func classifySMTP(channelID string, err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		if tpErr.Code >= 400 && tpErr.Code < 500 {
			return notify.RetryableError("email channel %s: smtp %d: %s", channelID, tpErr.Code, tpErr.Msg)
		}
		return notify.TerminalError("email channel %s: smtp %d: %s", channelID, tpErr.Code, tpErr.Msg)
	}
	return notify.RetryableError("email channel %s: %v", channelID, err)
}
