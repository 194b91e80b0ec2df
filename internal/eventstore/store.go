package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loqalabs/salute-gateway/internal/config"
	"github.com/loqalabs/salute-gateway/internal/speech"
)

// Entry is one journaled synthesis call.
type Entry struct {
	ID              int64     `json:"id"`
	RequestID       string    `json:"request_id"`
	Language        string    `json:"language"`
	Voice           string    `json:"voice"`
	SampleRate      int       `json:"sample_rate"`
	Codec           string    `json:"codec"`
	Markup          bool      `json:"markup"`
	TextLength      int       `json:"text_length"`
	Outcome         string    `json:"outcome"`
	AudioBytes      int       `json:"audio_bytes"`
	AudioDurationMS int64     `json:"audio_duration_ms"`
	LatencyMS       int64     `json:"latency_ms"`
	Error           string    `json:"error,omitempty"`
	FinishedAt      time.Time `json:"finished_at"`
}

// Store is a SQLite-backed journal of synthesis calls. It records metadata
// only: never the text, the audio or any credential.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the journal according to config.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	log = log.With(slog.String("component", "journal"))
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("journal vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("journal prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS synthesis_calls (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT,
    language TEXT,
    voice TEXT NOT NULL,
    sample_rate INTEGER NOT NULL,
    codec TEXT NOT NULL,
    markup INTEGER NOT NULL DEFAULT 0,
    text_length INTEGER NOT NULL DEFAULT 0,
    outcome TEXT NOT NULL,
    audio_bytes INTEGER NOT NULL DEFAULT 0,
    audio_duration_ms INTEGER NOT NULL DEFAULT 0,
    latency_ms INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    finished_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_synthesis_calls_finished ON synthesis_calls(finished_at);
CREATE INDEX IF NOT EXISTS idx_synthesis_calls_outcome ON synthesis_calls(outcome, finished_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record journals one finished call.
func (s *Store) Record(ctx context.Context, call speech.Call) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	finished := call.FinishedAt
	if finished.IsZero() {
		finished = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO synthesis_calls(request_id, language, voice, sample_rate, codec, markup, text_length,
		    outcome, audio_bytes, audio_duration_ms, latency_ms, error, finished_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.RequestID, call.Language, call.VoiceID, int(call.SampleRate), string(call.Codec), call.Markup, call.TextLength,
		call.Outcome.String(), call.AudioBytes, call.AudioDuration.Milliseconds(), call.Latency.Milliseconds(),
		call.Error, finished.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("journal synthesis call: %w", err)
	}
	return nil
}

// Observe adapts Record to the gateway observer signature, logging failures.
func (s *Store) Observe(ctx context.Context, call speech.Call) {
	if err := s.Record(context.WithoutCancel(ctx), call); err != nil {
		s.log.Warn("failed to journal synthesis call", slog.String("error", err.Error()))
	}
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, language, voice, sample_rate, codec, markup, text_length, outcome,
		        audio_bytes, audio_duration_ms, latency_ms, error, finished_at
		 FROM synthesis_calls ORDER BY finished_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var requestID, language, errText sql.NullString
		var finished int64
		if err := rows.Scan(&e.ID, &requestID, &language, &e.Voice, &e.SampleRate, &e.Codec, &e.Markup, &e.TextLength,
			&e.Outcome, &e.AudioBytes, &e.AudioDurationMS, &e.LatencyMS, &errText, &finished); err != nil {
			return nil, err
		}
		e.RequestID = requestID.String
		e.Language = language.String
		e.Error = errText.String
		e.FinishedAt = time.UnixMilli(finished).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// OutcomeCounts tallies calls per outcome finished at or after since.
func (s *Store) OutcomeCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return map[string]int{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM synthesis_calls WHERE finished_at >= ? GROUP BY outcome`,
		since.UTC().UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM synthesis_calls WHERE finished_at < ?`, cutoff.UTC().UnixMilli()); err != nil {
			return err
		}
	}
	if s.cfg.MaxRows > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM synthesis_calls WHERE id IN (
			SELECT id FROM synthesis_calls ORDER BY finished_at DESC, id DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxRows)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// RunPruner prunes every interval until ctx is done.
func (s *Store) RunPruner(ctx context.Context, interval time.Duration) {
	if s.db == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Prune(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Warn("journal prune failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Ensure checks that an ephemeral journal holds no database connection.
func (s *Store) Ensure() error {
	if s.cfg.RetentionMode == "ephemeral" && s.db != nil {
		return errors.New("ephemeral store should not have database connection")
	}
	return nil
}
