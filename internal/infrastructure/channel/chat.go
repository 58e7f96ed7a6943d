package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"arxivalert/internal/config"
	"arxivalert/internal/domain"
	"arxivalert/internal/notify"
	"arxivalert/internal/ports"
)

const defaultChatBatch = 10

// ChatSender posts Slack-style block messages to a chat webhook.
type ChatSender struct {
	id      string
	cfg     config.ChatConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ ports.Sender = (*ChatSender)(nil)

// NewChatSender wires a chat webhook channel; rate limiting protects the
// webhook endpoint when several batches go out in one cycle.
func NewChatSender(id string, cfg *config.ChatConfig, logger *slog.Logger) *ChatSender {
	s := &ChatSender{
		id:     id,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
	if cfg != nil {
		s.cfg = *cfg
	}
	if s.cfg.RatePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(s.cfg.RatePerSec), 1)
	}
	return s
}

// ID returns the channel identifier.
func (s *ChatSender) ID() string { return s.id }

// BatchSize limits papers per message; chat webhooks truncate long payloads.
func (s *ChatSender) BatchSize() int {
	if s.cfg.MaxPerMessage > 0 {
		return s.cfg.MaxPerMessage
	}
	return defaultChatBatch
}

// Deliver posts one block message covering the batch.
func (s *ChatSender) Deliver(ctx context.Context, papers []domain.Paper) error {
	if s.cfg.URL == "" {
		return notify.TerminalError("chat channel %s misconfigured: url missing", s.id)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return notify.RetryableError("chat channel %s: %v", s.id, err)
		}
	}

	body, err := json.Marshal(buildBlocksPayload(papers))
	if err != nil {
		return notify.TerminalError("chat channel %s: encode payload: %v", s.id, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return notify.TerminalError("chat channel %s: build request: %v", s.id, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return notify.RetryableError("chat channel %s: %v", s.id, err)
	}
	defer resp.Body.Close()

	if err := notify.ClassifyStatus(resp.StatusCode, readBodyPrefix(resp.Body)); err != nil {
		return fmt.Errorf("chat channel %s: %w", s.id, err)
	}

	s.debug("chat notification sent", "channel", s.id, "papers", len(papers))
	return nil
}

func (s *ChatSender) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

type chatBlock struct {
	Type string         `json:"type"`
	Text *chatBlockText `json:"text,omitempty"`
}

type chatBlockText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func buildBlocksPayload(papers []domain.Paper) map[string]any {
	blocks := []chatBlock{
		{
			Type: "header",
			Text: &chatBlockText{Type: "plain_text", Text: fmt.Sprintf("%d New arXiv Papers", len(papers))},
		},
	}
	for _, p := range papers {
		text := fmt.Sprintf("*%s*\n%s\n<%s|View Paper>", p.Title, authorsLine(p.Authors, 2), p.URL)
		blocks = append(blocks,
			chatBlock{Type: "section", Text: &chatBlockText{Type: "mrkdwn", Text: text}},
			chatBlock{Type: "divider"},
		)
	}
	return map[string]any{"blocks": blocks}
}

func readBodyPrefix(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return string(bytes.TrimSpace(b))
}
