package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tacchanmaru/talkedit/internal/session"
)

// SQLiteStore persists experiment results. One experiment row plus its
// ordered step rows are written in a single transaction at session
// completion.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "talkedit.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS experiments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			participant_id INTEGER NOT NULL,
			task_id TEXT NOT NULL,
			experiment_type TEXT NOT NULL,
			practice INTEGER NOT NULL DEFAULT 0,
			original_text TEXT NOT NULL,
			final_text TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			duration_seconds REAL NOT NULL,
			audio_path TEXT NOT NULL DEFAULT ''
		);
	`); err != nil {
		return fmt.Errorf("create experiments table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			experiment_id INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			utterance TEXT NOT NULL,
			plan TEXT NOT NULL,
			before_text TEXT NOT NULL,
			after_text TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			FOREIGN KEY(experiment_id) REFERENCES experiments(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create steps table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_experiments_participant ON experiments(participant_id, started_at)"); err != nil {
		return fmt.Errorf("create experiments index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_steps_experiment ON steps(experiment_id, seq)"); err != nil {
		return fmt.Errorf("create steps index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location. The Drive backup reads it.
func (s *SQLiteStore) Path() string {
	return s.path
}

// SaveExperiment writes the experiment and its steps atomically and
// returns the new experiment id.
func (s *SQLiteStore) SaveExperiment(ctx context.Context, result session.ExperimentResult) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin experiment transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO experiments(participant_id, task_id, experiment_type, practice,
			original_text, final_text, started_at, ended_at, duration_seconds, audio_path)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ParticipantID,
		result.TaskID,
		result.ExperimentType,
		boolToInt(result.Practice),
		result.OriginalText,
		result.FinalText,
		result.StartedAt.UTC().Format(time.RFC3339Nano),
		result.EndedAt.UTC().Format(time.RFC3339Nano),
		result.DurationSeconds,
		result.AudioPath,
	)
	if err != nil {
		return 0, fmt.Errorf("insert experiment: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("experiment insert id: %w", err)
	}

	for i, step := range result.Steps {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO steps(experiment_id, seq, utterance, plan, before_text, after_text, summary)
			 VALUES(?, ?, ?, ?, ?, ?, ?)`,
			id, i, step.Utterance, step.Plan, step.Before, step.After, step.Summary,
		); err != nil {
			return 0, fmt.Errorf("insert step %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit experiment: %w", err)
	}
	return id, nil
}

// ListExperiments returns stored experiments newest first, with steps.
// A positive participant id filters; zero or negative returns all.
func (s *SQLiteStore) ListExperiments(participantID int) ([]session.ExperimentResult, error) {
	query := `SELECT id, participant_id, task_id, experiment_type, practice,
		original_text, final_text, started_at, ended_at, duration_seconds, audio_path
		FROM experiments`
	args := []any{}
	if participantID > 0 {
		query += " WHERE participant_id = ?"
		args = append(args, participantID)
	}
	query += " ORDER BY started_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query experiments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]session.ExperimentResult, 0, 16)
	for rows.Next() {
		result, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate experiment rows: %w", err)
	}

	for i := range results {
		steps, err := s.getSteps(results[i].ID)
		if err != nil {
			return nil, err
		}
		results[i].Steps = steps
	}

	return results, nil
}

// GetExperiment loads one experiment with its steps.
func (s *SQLiteStore) GetExperiment(id int64) (session.ExperimentResult, error) {
	row := s.db.QueryRow(
		`SELECT id, participant_id, task_id, experiment_type, practice,
			original_text, final_text, started_at, ended_at, duration_seconds, audio_path
		 FROM experiments WHERE id = ?`,
		id,
	)

	result, err := scanExperiment(row)
	if err != nil {
		return session.ExperimentResult{}, err
	}

	steps, err := s.getSteps(result.ID)
	if err != nil {
		return session.ExperimentResult{}, err
	}
	result.Steps = steps

	return result, nil
}

func (s *SQLiteStore) getSteps(experimentID int64) ([]session.Step, error) {
	rows, err := s.db.Query(
		`SELECT utterance, plan, before_text, after_text, summary
		 FROM steps WHERE experiment_id = ? ORDER BY seq ASC`,
		experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query steps for experiment %d: %w", experimentID, err)
	}
	defer func() { _ = rows.Close() }()

	steps := make([]session.Step, 0, 8)
	for rows.Next() {
		var step session.Step
		if err := rows.Scan(&step.Utterance, &step.Plan, &step.Before, &step.After, &step.Summary); err != nil {
			return nil, fmt.Errorf("scan step for experiment %d: %w", experimentID, err)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step rows for experiment %d: %w", experimentID, err)
	}

	return steps, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (session.ExperimentResult, error) {
	var result session.ExperimentResult
	var practice int
	var startedAt, endedAt string
	if err := row.Scan(
		&result.ID, &result.ParticipantID, &result.TaskID, &result.ExperimentType, &practice,
		&result.OriginalText, &result.FinalText, &startedAt, &endedAt,
		&result.DurationSeconds, &result.AudioPath,
	); err != nil {
		return session.ExperimentResult{}, fmt.Errorf("scan experiment: %w", err)
	}
	result.Practice = practice != 0

	parsedStart, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return session.ExperimentResult{}, fmt.Errorf("parse started_at: %w", err)
	}
	result.StartedAt = parsedStart

	parsedEnd, err := time.Parse(time.RFC3339Nano, endedAt)
	if err != nil {
		return session.ExperimentResult{}, fmt.Errorf("parse ended_at: %w", err)
	}
	result.EndedAt = parsedEnd

	return result, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
