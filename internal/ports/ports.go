package ports

import (
	"context"
	"time"

	"arxivalert/internal/domain"
)

// PaperSource pulls fresh papers from upstream catalogs.
type PaperSource interface {
	FetchDaily(ctx context.Context, day time.Time) ([]domain.Paper, error)
}

// Ledger is the single source of truth for which (paper, channel) pairs have
// already been notified. Implementations must be durable: a write
// acknowledged to the caller survives an immediate crash. Safe for
// concurrent readers and writers; concurrent inserts of the same pair race
// safely, with the loser observing notify.ErrDuplicate.
type Ledger interface {
	// Exists reports whether a record for the pair is present.
	Exists(ctx context.Context, paperID, channelID string) (bool, error)
	// Record inserts one record. Returns notify.ErrDuplicate when the pair
	// already exists; existing records are never overwritten.
	Record(ctx context.Context, rec domain.NotificationRecord) error
	// RecordBatch inserts records one by one, each independently atomic,
	// skipping duplicates. Returns the number actually inserted; a storage
	// error aborts the remaining entries without corrupting prior ones.
	RecordBatch(ctx context.Context, recs []domain.NotificationRecord) (int, error)
	Close() error
}

// Sender delivers batches of papers to one notification channel.
type Sender interface {
	// ID is the channel identifier, unique within a run.
	ID() string
	// BatchSize declares delivery granularity: n > 0 means at most n papers
	// per Deliver call, 0 means all pending papers in a single digest.
	BatchSize() int
	// Deliver formats and sends one batch. Failures come back classified
	// as retryable or terminal (see internal/notify); Deliver never raises
	// past its boundary.
	Deliver(ctx context.Context, papers []domain.Paper) error
}

// Scheduler controls when dispatch cycles execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
