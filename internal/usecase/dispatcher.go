package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"arxivalert/internal/domain"
	"arxivalert/internal/notify"
	"arxivalert/internal/ports"
	"arxivalert/internal/retry"
)

// DispatcherDeps wires the dispatch core collaborators.
type DispatcherDeps struct {
	Ledger  ports.Ledger
	Senders []ports.Sender
	Engine  *retry.Engine
	Policy  retry.Policy
	Logger  *slog.Logger
	Now     func() time.Time
}

// Dispatcher runs one delivery cycle: ledger check, per-channel batching,
// retried delivery, and ledger writes on confirmed success. It holds no
// cross-cycle state; everything durable lives in the ledger.
type Dispatcher struct {
	ledger  ports.Ledger
	senders []ports.Sender
	engine  *retry.Engine
	policy  retry.Policy
	logger  *slog.Logger
	now     func() time.Time
}

// NewDispatcher constructs the orchestration component.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	d := &Dispatcher{
		ledger:  deps.Ledger,
		senders: deps.Senders,
		engine:  deps.Engine,
		policy:  deps.Policy,
		logger:  deps.Logger,
		now:     deps.Now,
	}
	if d.engine == nil {
		d.engine = retry.NewEngine(deps.Logger)
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// channelWork is one channel's pending papers for the cycle.
type channelWork struct {
	sender  ports.Sender
	pending []domain.Paper
}

// Dispatch processes one cycle of candidate papers. Candidates are assumed
// keyword-filtered but not deduplicated; the ledger decides what is new per
// channel. A ledger storage failure aborts the cycle's remaining work and
// surfaces to the caller alongside the partial report.
func (d *Dispatcher) Dispatch(ctx context.Context, candidates []domain.Paper) (domain.CycleReport, error) {
	report := domain.CycleReport{
		CycleID:   uuid.NewString(),
		StartedAt: d.now(),
	}
	report.Candidates = len(candidates)

	if d.ledger == nil {
		return report, fmt.Errorf("dispatcher: ledger is required")
	}

	work, newIDs, duplicates, err := d.partition(ctx, candidates)
	if err != nil {
		report.FinishedAt = d.now()
		return report, err
	}
	report.NewPapers = len(newIDs)
	report.Duplicates = duplicates

	// Channels are independent; process them concurrently. The ledger is
	// the only shared mutable resource and serializes its own writes.
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		ledgerErr error
	)
	for _, w := range work {
		if len(w.pending) == 0 {
			// Never invoke a sender with an empty batch (e.g. empty digest).
			continue
		}
		wg.Add(1)
		go func(w channelWork) {
			defer wg.Done()
			if err := d.processChannel(cctx, w, &mu, &report); err != nil {
				mu.Lock()
				if ledgerErr == nil {
					ledgerErr = err
				}
				mu.Unlock()
				cancel()
			}
		}(w)
	}
	wg.Wait()

	report.FinishedAt = d.now()
	d.logReport(report)
	return report, ledgerErr
}

// partition filters candidates per channel against the ledger and returns
// each channel's pending papers, the set of paper ids new to at least one
// channel, and the skipped-as-duplicate count.
func (d *Dispatcher) partition(ctx context.Context, candidates []domain.Paper) ([]channelWork, map[string]struct{}, int, error) {
	work := make([]channelWork, 0, len(d.senders))
	newIDs := map[string]struct{}{}
	duplicates := 0

	for _, sender := range d.senders {
		w := channelWork{sender: sender}
		for _, paper := range candidates {
			sent, err := d.ledger.Exists(ctx, paper.ID, sender.ID())
			if err != nil {
				return nil, nil, 0, fmt.Errorf("check ledger for %s/%s: %w", paper.ID, sender.ID(), err)
			}
			if sent {
				duplicates++
				continue
			}
			w.pending = append(w.pending, paper)
			newIDs[paper.ID] = struct{}{}
		}
		work = append(work, w)
	}
	return work, newIDs, duplicates, nil
}

// processChannel delivers one channel's pending papers batch by batch.
// Delivery failures land in the report; only a ledger write failure is
// returned, aborting the cycle.
func (d *Dispatcher) processChannel(ctx context.Context, w channelWork, mu *sync.Mutex, report *domain.CycleReport) error {
	for _, batch := range splitBatches(w.pending, w.sender.BatchSize()) {
		// Cancellation applies between batches; an in-flight delivery is
		// never abandoned mid-write.
		if ctx.Err() != nil {
			return nil
		}

		attempt := domain.DeliveryAttempt{
			ChannelID: w.sender.ID(),
			Papers:    batch,
			StartedAt: d.now(),
		}
		outcome := d.engine.Do(ctx, d.policy, func(ctx context.Context) error {
			attempt.Number++
			// The delivery itself is shielded from cancellation so a
			// shutdown never abandons a request the remote may have
			// already accepted; the sender's own timeout bounds it.
			// Retry waits remain cancellable through the outer context.
			return w.sender.Deliver(context.WithoutCancel(ctx), attempt.Papers)
		})

		if !outcome.Success() {
			d.warn("batch delivery failed",
				"channel", attempt.ChannelID,
				"papers", len(attempt.Papers),
				"attempts", outcome.Attempts,
				"terminal", outcome.Terminal,
				"error", outcome.Err,
			)
			mu.Lock()
			report.Failed += len(batch)
			report.Failures = append(report.Failures, domain.BatchFailure{
				ChannelID: w.sender.ID(),
				PaperIDs:  paperIDs(batch),
				Terminal:  outcome.Terminal,
				Cause:     outcome.Err.Error(),
			})
			mu.Unlock()
			continue
		}

		// The batch is confirmed delivered; record it before counting.
		// A duplicate here means a concurrent writer won the race for the
		// same pair, which is already-handled, not an error.
		recs := make([]domain.NotificationRecord, 0, len(batch))
		sentAt := d.now()
		for _, paper := range batch {
			recs = append(recs, domain.NotificationRecord{
				PaperID:   paper.ID,
				ChannelID: w.sender.ID(),
				SentAt:    sentAt,
				Attempts:  outcome.Attempts,
			})
		}
		// The write is shielded from cancellation: abandoning it after a
		// confirmed delivery would re-send the batch next cycle.
		_, err := d.ledger.RecordBatch(context.WithoutCancel(ctx), recs)

		mu.Lock()
		report.Sent += len(batch)
		mu.Unlock()

		if err != nil && !errors.Is(err, notify.ErrDuplicate) {
			return fmt.Errorf("record batch for channel %s: %w", w.sender.ID(), err)
		}
	}
	return nil
}

// splitBatches partitions papers by the channel's declared granularity.
// size <= 0 means a single all-in-one batch.
func splitBatches(papers []domain.Paper, size int) [][]domain.Paper {
	if len(papers) == 0 {
		return nil
	}
	if size <= 0 || size >= len(papers) {
		return [][]domain.Paper{papers}
	}
	batches := make([][]domain.Paper, 0, (len(papers)+size-1)/size)
	for start := 0; start < len(papers); start += size {
		end := start + size
		if end > len(papers) {
			end = len(papers)
		}
		batches = append(batches, papers[start:end])
	}
	return batches
}

func paperIDs(papers []domain.Paper) []string {
	ids := make([]string, len(papers))
	for i, p := range papers {
		ids[i] = p.ID
	}
	return ids
}

func (d *Dispatcher) logReport(report domain.CycleReport) {
	if d.logger == nil {
		return
	}
	d.logger.Info("dispatch cycle finished",
		"cycle", report.CycleID,
		"candidates", report.Candidates,
		"new", report.NewPapers,
		"sent", report.Sent,
		"failed", report.Failed,
		"duplicates", report.Duplicates,
		"took", report.FinishedAt.Sub(report.StartedAt),
	)
}

func (d *Dispatcher) warn(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, args...)
	}
}
