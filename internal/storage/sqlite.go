package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sjawhar/interview-coach/internal/model"
)

// ErrNotFound is returned for an interview id that was never archived.
var ErrNotFound = errors.New("interview not found")

// Summary is one row of the interview listing.
type Summary struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	Role       model.JobRole `json:"role"`
	Mode       model.Mode    `json:"mode"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    time.Time     `json:"ended_at"`
	Reason     string        `json:"reason"`
	Questions  int           `json:"questions"`
	Overall    float64       `json:"overall_score"`
	ReportPath string        `json:"report_path,omitempty"`
}

// Interview is an archived interview with its transcript and feedback.
type Interview struct {
	Summary
	Settings model.Settings `json:"settings"`
	Turns    []model.Turn   `json:"turns"`
	Feedback model.Feedback `json:"feedback"`
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "interview-coach.db")
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

	store := &SQLiteStore{db: db}
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
		CREATE TABLE IF NOT EXISTS interviews (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			mode TEXT NOT NULL,
			settings TEXT NOT NULL DEFAULT '{}',
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			reason TEXT NOT NULL,
			questions INTEGER NOT NULL DEFAULT 0,
			overall REAL NOT NULL DEFAULT 0,
			feedback TEXT NOT NULL DEFAULT '{}',
			report_path TEXT NOT NULL DEFAULT ''
		);
	`); err != nil {
		return fmt.Errorf("create interviews table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS turns (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			interview_id TEXT NOT NULL,
			id TEXT NOT NULL,
			speaker TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY(interview_id) REFERENCES interviews(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create turns table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_interviews_ended_at ON interviews(ended_at)"); err != nil {
		return fmt.Errorf("create interviews index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_turns_interview_id ON turns(interview_id, seq)"); err != nil {
		return fmt.Errorf("create turns index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveInterview writes an ended interview and its turns in one transaction.
func (s *SQLiteStore) SaveInterview(ctx context.Context, id string, rec model.Record) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("interview id is required")
	}

	settings, err := json.Marshal(rec.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	feedback, err := json.Marshal(rec.Feedback)
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO interviews(id, session_id, role, mode, settings, started_at, ended_at, reason, questions, overall, feedback)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		rec.SessionID,
		string(rec.Role),
		string(rec.Mode),
		string(settings),
		formatTime(rec.StartedAt),
		formatTime(rec.EndedAt),
		rec.Reason,
		rec.Questions,
		rec.Feedback.Overall,
		string(feedback),
	); err != nil {
		return fmt.Errorf("insert interview %s: %w", id, err)
	}

	for _, turn := range rec.Turns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO turns(interview_id, id, speaker, content, created_at) VALUES(?, ?, ?, ?, ?)`,
			id,
			turn.ID,
			string(turn.Speaker),
			turn.Content,
			formatTime(turn.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert turn for interview %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) SetReportPath(ctx context.Context, id, path string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE interviews SET report_path = ? WHERE id = ?`, path, id)
	if err != nil {
		return fmt.Errorf("update report path for interview %s: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update report path rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListInterviews returns the most recently ended interviews first. A
// non-positive limit returns all of them.
func (s *SQLiteStore) ListInterviews(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, mode, started_at, ended_at, reason, questions, overall, report_path
		 FROM interviews
		 ORDER BY ended_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query interviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := make([]Summary, 0, 16)
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interview rows: %w", err)
	}

	return summaries, nil
}

func (s *SQLiteStore) GetInterview(ctx context.Context, id string) (Interview, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, role, mode, started_at, ended_at, reason, questions, overall, report_path, settings, feedback
		 FROM interviews WHERE id = ?`,
		id,
	)

	var iv Interview
	var role, mode, startedAt, endedAt, settings, feedback string
	if err := row.Scan(&iv.ID, &iv.SessionID, &role, &mode, &startedAt, &endedAt, &iv.Reason, &iv.Questions, &iv.Overall, &iv.ReportPath, &settings, &feedback); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Interview{}, ErrNotFound
		}
		return Interview{}, fmt.Errorf("query interview %s: %w", id, err)
	}
	iv.Role = model.JobRole(role)
	iv.Mode = model.Mode(mode)

	var err error
	if iv.StartedAt, err = parseTime(startedAt); err != nil {
		return Interview{}, fmt.Errorf("parse interview %s started_at: %w", id, err)
	}
	if iv.EndedAt, err = parseTime(endedAt); err != nil {
		return Interview{}, fmt.Errorf("parse interview %s ended_at: %w", id, err)
	}
	if err := json.Unmarshal([]byte(settings), &iv.Settings); err != nil {
		return Interview{}, fmt.Errorf("decode interview %s settings: %w", id, err)
	}
	if err := json.Unmarshal([]byte(feedback), &iv.Feedback); err != nil {
		return Interview{}, fmt.Errorf("decode interview %s feedback: %w", id, err)
	}

	iv.Turns, err = s.getTurns(ctx, id)
	if err != nil {
		return Interview{}, err
	}
	return iv, nil
}

func (s *SQLiteStore) getTurns(ctx context.Context, interviewID string) ([]model.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, speaker, content, created_at
		 FROM turns
		 WHERE interview_id = ?
		 ORDER BY seq ASC`,
		interviewID,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns for interview %s: %w", interviewID, err)
	}
	defer func() { _ = rows.Close() }()

	turns := make([]model.Turn, 0, 32)
	for rows.Next() {
		var turn model.Turn
		var speaker, ts string
		if err := rows.Scan(&turn.ID, &speaker, &turn.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan turn for interview %s: %w", interviewID, err)
		}
		turn.Speaker = model.Speaker(speaker)

		parsed, err := parseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("parse turn timestamp for interview %s: %w", interviewID, err)
		}
		turn.CreatedAt = parsed

		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows for interview %s: %w", interviewID, err)
	}

	return turns, nil
}

func scanSummary(rows *sql.Rows) (Summary, error) {
	var sum Summary
	var role, mode, startedAt, endedAt string
	if err := rows.Scan(&sum.ID, &sum.SessionID, &role, &mode, &startedAt, &endedAt, &sum.Reason, &sum.Questions, &sum.Overall, &sum.ReportPath); err != nil {
		return Summary{}, fmt.Errorf("scan interview: %w", err)
	}
	sum.Role = model.JobRole(role)
	sum.Mode = model.Mode(mode)

	var err error
	if sum.StartedAt, err = parseTime(startedAt); err != nil {
		return Summary{}, fmt.Errorf("parse started_at: %w", err)
	}
	if sum.EndedAt, err = parseTime(endedAt); err != nil {
		return Summary{}, fmt.Errorf("parse ended_at: %w", err)
	}
	return sum, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
