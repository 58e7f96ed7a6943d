package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"arxivalert/internal/config"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sent_papers (
	paper_id   TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	sent_at    TEXT NOT NULL,
	attempts   INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (paper_id, channel_id)
)`

func openPostgres(cfg config.LedgerConfig) (*sqlLedger, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("storage: postgres dsn is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.Exec(postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return newSQLLedger(db, sq.Dollar), nil
}
