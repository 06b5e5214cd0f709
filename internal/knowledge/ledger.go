package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Record is one successful ingestion. Only metadata is kept, never the
// document text or any conversation content.
type Record struct {
	ID          string
	Source      string
	Category    string
	Chunks      int
	Bytes       int
	ContentHash string
	IngestedAt  time.Time
}

// fixed width so that ingested_at sorts as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Ledger keeps a log of ingested documents in SQLite
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewLedger wraps db and creates the schema if needed
func NewLedger(db *sql.DB, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{db: db, logger: logger.With("component", "ledger")}
	if err := l.createSchema(); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return l, nil
}

func (l *Ledger) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS ingestions (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			chunks INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			content_hash TEXT NOT NULL,
			ingested_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_ingestions_source
			ON ingestions(source, ingested_at);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Add appends a record
func (l *Ledger) Add(ctx context.Context, rec Record) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO ingestions (id, source, category, chunks, bytes, content_hash, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Source, rec.Category, rec.Chunks, rec.Bytes, rec.ContentHash,
		rec.IngestedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting ingestion: %w", err)
	}
	return nil
}

// List returns up to limit records, newest first. limit <= 0 means all.
func (l *Ledger) List(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT id, source, category, chunks, bytes, content_hash, ingested_at
		FROM ingestions ORDER BY ingested_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ingestions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var ingestedAt string
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.Category, &rec.Chunks, &rec.Bytes, &rec.ContentHash, &ingestedAt); err != nil {
			return nil, fmt.Errorf("scanning ingestion: %w", err)
		}
		rec.IngestedAt, err = time.Parse(timeLayout, ingestedAt)
		if err != nil {
			l.logger.Warn("unparseable ingestion time", "id", rec.ID, "value", ingestedAt)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LatestHash returns the content hash last ingested for source
func (l *Ledger) LatestHash(ctx context.Context, source string) (string, bool, error) {
	var hash string
	err := l.db.QueryRowContext(ctx,
		`SELECT content_hash FROM ingestions WHERE source = ?
		 ORDER BY ingested_at DESC, rowid DESC LIMIT 1`, source,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying latest hash: %w", err)
	}
	return hash, true, nil
}

// Count returns the number of records
func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ingestions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting ingestions: %w", err)
	}
	return n, nil
}
