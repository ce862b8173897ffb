// Package history persists completed query lifecycles so past sessions
// can be reviewed from the CLI.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/selffix/reasonview/internal/domain"
)

// Session is one recorded query lifecycle.
type Session struct {
	ID                  string
	Query               string
	ExplainabilityScore *float64
	DocCount            int
	StaticStepCount     int
	LiveStepCount       int
	StreamError         string
	CreatedAt           time.Time
}

// Store is a SQLite-backed session log.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the session database at dbPath.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		explainability_score REAL,
		doc_count INTEGER NOT NULL,
		static_step_count INTEGER NOT NULL,
		live_step_count INTEGER NOT NULL,
		stream_error TEXT,
		created_at TIMESTAMP NOT NULL
	)`)
	return err
}

// SaveSession records a settled aggregate view and returns the session ID.
func (s *Store) SaveSession(ctx context.Context, view domain.AggregateView) (string, error) {
	id := uuid.New().String()

	var score sql.NullFloat64
	var docCount, staticCount int
	if view.Explanation != nil {
		score = sql.NullFloat64{Float64: view.Explanation.ExplainabilityScore, Valid: true}
		docCount = len(view.Explanation.RetrievedDocs)
		staticCount = len(view.Explanation.ReasoningTree)
	}

	var streamErr sql.NullString
	if view.StreamErr != nil {
		streamErr = sql.NullString{String: view.StreamErr.Error(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, query, explainability_score, doc_count, static_step_count, live_step_count, stream_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, view.Query, score, docCount, staticCount, len(view.LiveSteps), streamErr, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}

	return id, nil
}

// ListSessions returns up to limit sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, explainability_score, doc_count, static_step_count, live_step_count, stream_error, created_at
		 FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var score sql.NullFloat64
		var streamErr sql.NullString
		if err := rows.Scan(&sess.ID, &sess.Query, &score, &sess.DocCount,
			&sess.StaticStepCount, &sess.LiveStepCount, &streamErr, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if score.Valid {
			v := score.Float64
			sess.ExplainabilityScore = &v
		}
		if streamErr.Valid {
			sess.StreamError = streamErr.String
		}
		sessions = append(sessions, sess)
	}

	return sessions, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
