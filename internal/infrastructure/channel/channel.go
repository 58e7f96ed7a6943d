// Package channel implements the notification senders: SMTP email digests,
// chat webhooks (Slack-style blocks), and generic JSON webhooks. Each sender
// formats paper batches into its wire payload and maps protocol errors into
// the retryable/terminal taxonomy of internal/notify.
package channel

import (
	"fmt"
	"log/slog"
	"strings"

	"arxivalert/internal/config"
	"arxivalert/internal/ports"
)

// Build constructs a sender for one configured channel.
func Build(cfg config.ChannelConfig, logger *slog.Logger) (ports.Sender, error) {
	switch cfg.Kind {
	case config.KindEmail:
		return NewEmailSender(cfg.ID, cfg.Email, logger), nil
	case config.KindChatWebhook:
		return NewChatSender(cfg.ID, cfg.Chat, logger), nil
	case config.KindGenericWebhook:
		return NewWebhookSender(cfg.ID, cfg.Webhook, logger), nil
	default:
		return nil, fmt.Errorf("channel %s: unknown kind %q", cfg.ID, cfg.Kind)
	}
}

// BuildAll constructs senders for every configured channel, preserving order.
func BuildAll(cfgs []config.ChannelConfig, logger *slog.Logger) ([]ports.Sender, error) {
	senders := make([]ports.Sender, 0, len(cfgs))
	for _, cfg := range cfgs {
		sender, err := Build(cfg, logger)
		if err != nil {
			return nil, err
		}
		senders = append(senders, sender)
	}
	return senders, nil
}

// authorsLine joins up to limit author names, appending "et al." beyond it.
func authorsLine(authors []string, limit int) string {
	if len(authors) == 0 {
		return ""
	}
	if limit <= 0 || len(authors) <= limit {
		return strings.Join(authors, ", ")
	}
	return strings.Join(authors[:limit], ", ") + " et al."
}

// truncateAbstract shortens an abstract for digest output.
func truncateAbstract(abstract string, max int) string {
	if max <= 0 || len(abstract) <= max {
		return abstract
	}
	return abstract[:max] + "..."
}
