// Package sqlite implements the persistence gateway on a local SQLite file,
// the default backend when no Postgres URL is configured.
package sqlite

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"quiztrack-service/internal/store"
)

type Store struct {
	db  *sql.DB
	hub store.Hub
}

// NewStore opens (and if needed creates) the database at path.
func NewStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		path = "quiztrack.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Single writer keeps SQLITE_BUSY out of the picture for this workload.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA foreign_keys = ON;`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS quizzes (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at_ms INTEGER NOT NULL,
			total_questions INTEGER NOT NULL,
			time_per_question_s INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS questions (
			quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
			id TEXT NOT NULL,
			question_text TEXT NOT NULL,
			correct_answer TEXT NOT NULL,
			options_json TEXT NOT NULL,
			category TEXT NOT NULL,
			difficulty TEXT NOT NULL,
			question_order INTEGER NOT NULL,
			-- trivia ids are only unique per fetch, so questions key on (quiz, id)
			PRIMARY KEY (quiz_id, id),
			UNIQUE (quiz_id, question_order)
		);`,
		`CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
			started_at_ms INTEGER NOT NULL,
			completed_at_ms INTEGER NOT NULL DEFAULT 0,
			total_correct INTEGER NOT NULL DEFAULT 0,
			total_questions INTEGER NOT NULL,
			is_completed INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS answers (
			id TEXT PRIMARY KEY,
			attempt_id TEXT NOT NULL REFERENCES attempts(id) ON DELETE CASCADE,
			question_id TEXT NOT NULL,
			selected_answer TEXT NOT NULL,
			is_correct INTEGER NOT NULL,
			answered_at_ms INTEGER NOT NULL,
			time_spent_s INTEGER NOT NULL,
			was_timed_out INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_quizzes_created_at ON quizzes(created_at_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_quiz ON attempts(quiz_id, started_at_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_answers_attempt ON answers(attempt_id, answered_at_ms);`,
		`CREATE INDEX IF NOT EXISTS idx_answers_question ON answers(question_id);`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
