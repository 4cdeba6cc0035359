package sink

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // cgo-free driver

	"newspipe/pkg/models"
)

//go:embed schema.sql
var sqliteSchema string

// SQLiteSink is the local archive: the same table shape as the Postgres
// sink in a single file, no server needed.
type SQLiteSink struct {
	*dbSink
	db *sql.DB
}

func NewSQLite(ctx context.Context, path string, batchSize int, flushEvery time.Duration) (*SQLiteSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The batch worker is the only writer, so a single connection avoids
	// SQLITE_BUSY without a busy-timeout dance.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure articles table: %w", err)
	}

	s := &SQLiteSink{db: db}
	s.dbSink = newDBSink(batchSize, flushEvery, s.saveBatch, db.Close)
	return s, nil
}

func (s *SQLiteSink) saveBatch(batch []models.ArticleRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO articles (fingerprint, url, title, summary, published_at, source, sentiment, crawled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, rec := range batch {
		_, err := stmt.Exec(rec.Fingerprint, rec.URL, rec.Title, rec.Summary, rec.PublishedAt, rec.Source, rec.SentimentScore, now)
		if err != nil {
			slog.Warn("article insert failed", "url", rec.URL, "error", err)
		}
	}
	return tx.Commit()
}
