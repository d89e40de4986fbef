package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the relational database backing jobs, exams, attempts, and
// content chunks. All mutation of shared state goes through its methods.
type Store struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS generation_jobs (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		subject TEXT NOT NULL,
		topics TEXT NOT NULL DEFAULT '[]',
		question_count INTEGER NOT NULL,
		difficulty TEXT NOT NULL,
		language TEXT NOT NULL DEFAULT 'en',
		status TEXT NOT NULL DEFAULT 'pending',
		stage TEXT NOT NULL DEFAULT '',
		progress INTEGER NOT NULL DEFAULT 0,
		exam_id TEXT,
		error_message TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS exams (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL,
		total_questions INTEGER NOT NULL DEFAULT 0,
		topics TEXT NOT NULL DEFAULT '[]',
		language TEXT NOT NULL DEFAULT 'en',
		status TEXT NOT NULL DEFAULT 'draft',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		exam_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		type TEXT NOT NULL,
		text TEXT NOT NULL,
		options TEXT,
		correct_answer TEXT NOT NULL,
		explanation TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL,
		UNIQUE (exam_id, number),
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		exam_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		score REAL,
		correct_count INTEGER NOT NULL DEFAULT 0,
		wrong_count INTEGER NOT NULL DEFAULT 0,
		skipped_count INTEGER NOT NULL DEFAULT 0,
		time_spent_sec INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		submitted_at DATETIME,
		scored_at DATETIME,
		UNIQUE (exam_id, user_id, number),
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS submitted_answers (
		id TEXT PRIMARY KEY,
		attempt_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		answer TEXT,
		is_correct INTEGER,
		points_earned REAL NOT NULL DEFAULT 0,
		feedback TEXT,
		UNIQUE (attempt_id, question_id),
		FOREIGN KEY (attempt_id) REFERENCES attempts(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS content_chunks (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		subject TEXT NOT NULL,
		topic TEXT NOT NULL,
		language TEXT NOT NULL DEFAULT 'en',
		similarity REAL
	);

	CREATE TABLE IF NOT EXISTS import_files (
		path TEXT PRIMARY KEY,
		sha256 TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_questions_exam ON questions(exam_id);
	CREATE INDEX IF NOT EXISTS idx_answers_attempt ON submitted_answers(attempt_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_subject ON content_chunks(subject, language);
	`
	_, err := s.db.Exec(schema)
	return err
}
