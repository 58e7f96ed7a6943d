package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"arxivalert/internal/config"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sent_papers (
	paper_id   TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	sent_at    TEXT NOT NULL,
	attempts   INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (paper_id, channel_id)
);
CREATE INDEX IF NOT EXISTS idx_sent_papers_channel ON sent_papers(channel_id);
`

func openSQLite(cfg config.LedgerConfig) (*sqlLedger, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage: sqlite path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite prefers a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
	}
	if bt := cfg.BusyTimeoutDuration(); bt > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", bt.Milliseconds()))
	}
	// WAL keeps acknowledged writes durable across an immediate crash while
	// allowing readers during the write. A pragma that fails to apply would
	// silently weaken that guarantee, so it is an open error.
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return newSQLLedger(db, sq.Question), nil
}
