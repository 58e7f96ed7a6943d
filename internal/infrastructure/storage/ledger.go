// Package storage provides the durable notification ledger: the set of
// (paper, channel) pairs already delivered. Two drivers share one SQL
// implementation; only placeholder dialect and connection setup differ.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"arxivalert/internal/config"
	"arxivalert/internal/domain"
	"arxivalert/internal/notify"
	"arxivalert/internal/ports"
)

const ledgerTable = "sent_papers"

// Open builds a Ledger from configuration. The sqlite driver is the default.
func Open(cfg config.LedgerConfig) (ports.Ledger, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return openSQLite(cfg)
	case "postgres":
		return openPostgres(cfg)
	default:
		return nil, fmt.Errorf("storage: unknown ledger driver %q", cfg.Driver)
	}
}

// sqlLedger implements ports.Ledger over a database/sql handle.
//
// Inserts use ON CONFLICT DO NOTHING keyed on the (paper_id, channel_id)
// primary key, so two concurrent writers racing on the same pair resolve in
// the database: the loser sees zero rows affected and reports
// notify.ErrDuplicate instead of corrupting the record.
type sqlLedger struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.Ledger = (*sqlLedger)(nil)

func newSQLLedger(db *sql.DB, placeholder sq.PlaceholderFormat) *sqlLedger {
	return &sqlLedger{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
	}
}

// Exists reports whether a notification record for the pair is present.
func (l *sqlLedger) Exists(ctx context.Context, paperID, channelID string) (bool, error) {
	query, args, err := l.builder.
		Select("1").
		From(ledgerTable).
		Where(sq.Eq{"paper_id": paperID, "channel_id": channelID}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var one int
	err = l.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, ioErr("query ledger", err)
	}
	return true, nil
}

// Record inserts one notification record. The pair is the primary key;
// an existing record is never overwritten and surfaces as ErrDuplicate.
func (l *sqlLedger) Record(ctx context.Context, rec domain.NotificationRecord) error {
	if rec.PaperID == "" || rec.ChannelID == "" {
		return fmt.Errorf("storage: record requires paper and channel ids")
	}
	sentAt := rec.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}

	query, args, err := l.builder.
		Insert(ledgerTable).
		Columns("paper_id", "channel_id", "sent_at", "attempts").
		Values(rec.PaperID, rec.ChannelID, sentAt.UTC().Format(time.RFC3339Nano), rec.Attempts).
		Suffix("ON CONFLICT (paper_id, channel_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	res, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return ioErr("insert record", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return ioErr("insert record", err)
	}
	if affected == 0 {
		return notify.ErrDuplicate
	}
	return nil
}

// RecordBatch inserts records one by one, each independently atomic.
// Duplicates are skipped; the first storage error aborts the remainder
// without touching already-inserted entries.
func (l *sqlLedger) RecordBatch(ctx context.Context, recs []domain.NotificationRecord) (int, error) {
	inserted := 0
	for _, rec := range recs {
		err := l.Record(ctx, rec)
		if errors.Is(err, notify.ErrDuplicate) {
			continue
		}
		if err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

func (l *sqlLedger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func ioErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(notify.ErrLedgerUnavailable, err))
}
