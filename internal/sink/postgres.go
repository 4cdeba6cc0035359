package sink

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib" // database/sql driver

	"newspipe/pkg/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS articles (
	fingerprint  TEXT PRIMARY KEY,
	url          TEXT NOT NULL,
	title        TEXT NOT NULL,
	summary      TEXT NOT NULL DEFAULT '',
	published_at TIMESTAMPTZ,
	source       TEXT NOT NULL,
	sentiment    DOUBLE PRECISION,
	crawled_at   TIMESTAMPTZ NOT NULL
)`

// PostgresSink batches article inserts. The fingerprint conflict clause
// makes re-crawls no-ops even when the local dedup index was lost.
type PostgresSink struct {
	*dbSink
	db *sql.DB
}

// NewPostgres connects, waits out database startup, and ensures the
// articles table exists.
func NewPostgres(ctx context.Context, dsn string, batchSize int, flushEvery time.Duration) (*PostgresSink, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := waitForDB(ctx, db, 30*time.Second); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure articles table: %w", err)
	}

	s := &PostgresSink{db: db}
	s.dbSink = newDBSink(batchSize, flushEvery, s.saveBatch, db.Close)
	return s, nil
}

// waitForDB pings until the database answers or patience runs out. In
// compose setups the crawler regularly comes up before Postgres does.
func waitForDB(ctx context.Context, db *sql.DB, patience time.Duration) error {
	deadline := time.Now().Add(patience)
	for {
		err := db.PingContext(ctx)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database not reachable: %w", err)
		}
		slog.Info("waiting for database")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (s *PostgresSink) saveBatch(batch []models.ArticleRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO articles (fingerprint, url, title, summary, published_at, source, sentiment, crawled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
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
