package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	notebook_id     TEXT NOT NULL,
	artifact_id     TEXT NOT NULL,
	kind            TEXT NOT NULL,
	title           TEXT NOT NULL,
	media_duration  TEXT NOT NULL,
	thumbnail       TEXT NOT NULL,
	item_count      TEXT NOT NULL,
	tags            TEXT NOT NULL,
	config          TEXT NOT NULL,
	generation_ms   INTEGER NOT NULL,
	correlation_tag TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	UNIQUE (notebook_id, artifact_id)
);
CREATE INDEX IF NOT EXISTS idx_artifacts_notebook ON artifacts (notebook_id, created_at);
`

// SQLiteStore is an artifact index backed by SQLite. Appending the same
// artifact twice replaces the earlier row.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the index at path. ":memory:" gives a private
// in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Append implements Appender.
func (s *SQLiteStore) Append(ctx context.Context, notebookID string, rec ArtifactRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	cfg, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO artifacts (notebook_id, artifact_id, kind, title, media_duration, thumbnail,
			item_count, tags, config, generation_ms, correlation_tag, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (notebook_id, artifact_id) DO UPDATE SET
			kind = excluded.kind,
			title = excluded.title,
			media_duration = excluded.media_duration,
			thumbnail = excluded.thumbnail,
			item_count = excluded.item_count,
			tags = excluded.tags,
			config = excluded.config,
			generation_ms = excluded.generation_ms,
			correlation_tag = excluded.correlation_tag,
			created_at = excluded.created_at`,
		notebookID, rec.ArtifactID, rec.Kind, rec.Title, rec.MediaDuration, rec.Thumbnail,
		rec.ItemCount, string(tags), string(cfg), rec.Duration.Milliseconds(), rec.Tag, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert artifact %s: %w", rec.ArtifactID, err)
	}
	return nil
}

// Artifacts lists a notebook's artifacts, oldest first. An empty notebookID
// lists every notebook.
func (s *SQLiteStore) Artifacts(ctx context.Context, notebookID string) ([]ArtifactRecord, error) {
	query := `SELECT artifact_id, kind, title, media_duration, thumbnail, item_count, tags, config,
		generation_ms, correlation_tag, created_at FROM artifacts`
	var args []any
	if notebookID != "" {
		query += " WHERE notebook_id = ?"
		args = append(args, notebookID)
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var out []ArtifactRecord
	for rows.Next() {
		var (
			rec        ArtifactRecord
			tags, cfg  string
			generation int64
			created    time.Time
		)
		if err := rows.Scan(&rec.ArtifactID, &rec.Kind, &rec.Title, &rec.MediaDuration, &rec.Thumbnail,
			&rec.ItemCount, &tags, &cfg, &generation, &rec.Tag, &created); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &rec.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags: %w", err)
		}
		if err := json.Unmarshal([]byte(cfg), &rec.Config); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
		rec.Duration = time.Duration(generation) * time.Millisecond
		rec.CreatedAt = created
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
