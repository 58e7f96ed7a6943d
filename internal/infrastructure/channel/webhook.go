package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"arxivalert/internal/config"
	"arxivalert/internal/domain"
	"arxivalert/internal/notify"
	"arxivalert/internal/ports"
)

// WebhookSender posts structured JSON batches to a generic HTTP endpoint.
type WebhookSender struct {
	id     string
	cfg    config.WebhookConfig
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

var _ ports.Sender = (*WebhookSender)(nil)

// NewWebhookSender wires a generic webhook channel.
func NewWebhookSender(id string, cfg *config.WebhookConfig, logger *slog.Logger) *WebhookSender {
	s := &WebhookSender{
		id:     id,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
		now:    time.Now,
	}
	if cfg != nil {
		s.cfg = *cfg
	}
	return s
}

// ID returns the channel identifier.
func (s *WebhookSender) ID() string { return s.id }

// BatchSize follows configuration; 0 means all pending papers in one call.
func (s *WebhookSender) BatchSize() int { return s.cfg.BatchSize }

// webhookPaper is the wire shape for one paper in the payload.
type webhookPaper struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Authors    []string `json:"authors"`
	Published  string   `json:"published"`
	Categories []string `json:"categories"`
	URL        string   `json:"url"`
	Abstract   string   `json:"abstract"`
}

type webhookPayload struct {
	Timestamp string         `json:"timestamp"`
	Count     int            `json:"count"`
	Papers    []webhookPaper `json:"papers"`
}

// Deliver posts the batch as one JSON request.
func (s *WebhookSender) Deliver(ctx context.Context, papers []domain.Paper) error {
	if s.cfg.URL == "" {
		return notify.TerminalError("webhook channel %s misconfigured: url missing", s.id)
	}

	payload := webhookPayload{
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Count:     len(papers),
		Papers:    make([]webhookPaper, 0, len(papers)),
	}
	for _, p := range papers {
		payload.Papers = append(payload.Papers, webhookPaper{
			ID:         p.ID,
			Title:      p.Title,
			Authors:    p.Authors,
			Published:  p.PublishedAt.UTC().Format(time.RFC3339),
			Categories: p.Categories,
			URL:        p.URL,
			Abstract:   p.Abstract,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return notify.TerminalError("webhook channel %s: encode payload: %v", s.id, err)
	}

	method := s.cfg.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return notify.TerminalError("webhook channel %s: build request: %v", s.id, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.AuthHeader != "" && s.cfg.AuthToken != "" {
		req.Header.Set(s.cfg.AuthHeader, s.cfg.AuthToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return notify.RetryableError("webhook channel %s: %v", s.id, err)
	}
	defer resp.Body.Close()

	if err := notify.ClassifyStatus(resp.StatusCode, readBodyPrefix(resp.Body)); err != nil {
		return fmt.Errorf("webhook channel %s: %w", s.id, err)
	}

	s.debug("webhook notification sent", "channel", s.id, "papers", len(papers))
	return nil
}

func (s *WebhookSender) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
