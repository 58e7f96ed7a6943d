package domain

import "time"

// Paper is a core entity describing metadata fetched from the catalog.
// It is immutable once fetched; the dispatch core receives it by value.
type Paper struct {
	ID          string
	Title       string
	Abstract    string
	Authors     []string
	Categories  []string
	URL         string
	Source      string
	PublishedAt time.Time
}

// NotificationRecord is the durable ledger entry proving a paper was
// delivered to a channel. At most one record exists per (PaperID, ChannelID).
type NotificationRecord struct {
	PaperID   string
	ChannelID string
	SentAt    time.Time
	Attempts  int
}

// DeliveryAttempt captures one in-flight try against a channel. It lives
// only for the duration of a retry cycle and is never persisted.
type DeliveryAttempt struct {
	ChannelID string
	Papers    []Paper
	Number    int
	StartedAt time.Time
}
