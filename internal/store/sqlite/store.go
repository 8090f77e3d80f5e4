// Package sqlite provides a SQLite-backed participant store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"voice-survey-service/internal/models"
	"voice-survey-service/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS participants (
	call_id    TEXT PRIMARY KEY,
	number     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS answers (
	call_id      TEXT    NOT NULL REFERENCES participants(call_id),
	position     INTEGER NOT NULL,
	leg_id       TEXT    NOT NULL,
	recording_id TEXT    NOT NULL,
	recorded_at  TEXT    NOT NULL,
	PRIMARY KEY (call_id, position)
);
DROP INDEX IF EXISTS answers_call_leg;
CREATE UNIQUE INDEX IF NOT EXISTS answers_call_recording ON answers(call_id, leg_id, recording_id) WHERE leg_id <> '' OR recording_id <> '';
`

// Store implements store.Store on two tables: participants and their answers.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New opens the database at dsn, applies pragmas and creates the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; appends are serialised by the connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	log.Info().Str("dsn", dsn).Msg("SQLite participant store initialized")
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) FindByCallID(ctx context.Context, callID string) (*models.Participant, error) {
	return findParticipant(ctx, s.db, callID)
}

func (s *Store) Create(ctx context.Context, callID, number string) (*models.Participant, error) {
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO participants (call_id, number, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		callID, number, formatTime(now), formatTime(now))
	if err != nil {
		if isConstraint(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, fmt.Errorf("insert participant %s: %w", callID, err)
	}
	return &models.Participant{
		CallID:    callID,
		Number:    number,
		Responses: []models.Answer{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *Store) AppendAnswer(ctx context.Context, callID string, answer models.Answer, limit int) (*models.Participant, error) {
	if answer.RecordedAt.IsZero() {
		answer.RecordedAt = s.now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append for %s: %w", callID, err)
	}
	defer tx.Rollback()

	p, err := findParticipant(ctx, tx, callID)
	if err != nil {
		return nil, err
	}
	if p.Answered() >= limit || (answer.Keyed() && p.HasAnswer(answer.LegID, answer.RecordingID)) {
		return p, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO answers (call_id, position, leg_id, recording_id, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		callID, p.Answered(), answer.LegID, answer.RecordingID, formatTime(answer.RecordedAt))
	if err != nil {
		return nil, fmt.Errorf("insert answer for %s: %w", callID, err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE participants SET updated_at = ? WHERE call_id = ?`,
		formatTime(answer.RecordedAt), callID)
	if err != nil {
		return nil, fmt.Errorf("touch participant %s: %w", callID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit answer for %s: %w", callID, err)
	}

	p.Responses = append(p.Responses, answer)
	p.UpdatedAt = answer.RecordedAt
	return p, nil
}

// List returns every participant ordered by creation time.
func (s *Store) List(ctx context.Context) ([]*models.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT call_id FROM participants ORDER BY created_at, call_id`)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan participant id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	out := make([]*models.Participant, 0, len(ids))
	for _, id := range ids {
		p, err := findParticipant(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func findParticipant(ctx context.Context, q querier, callID string) (*models.Participant, error) {
	var (
		p                  models.Participant
		created, updated string
	)
	err := q.QueryRowContext(ctx,
		`SELECT call_id, number, created_at, updated_at FROM participants WHERE call_id = ?`, callID).
		Scan(&p.CallID, &p.Number, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find participant %s: %w", callID, err)
	}
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)

	rows, err := q.QueryContext(ctx,
		`SELECT leg_id, recording_id, recorded_at FROM answers WHERE call_id = ? ORDER BY position`, callID)
	if err != nil {
		return nil, fmt.Errorf("load answers for %s: %w", callID, err)
	}
	defer rows.Close()

	p.Responses = []models.Answer{}
	for rows.Next() {
		var (
			a          models.Answer
			recordedAt string
		)
		if err := rows.Scan(&a.LegID, &a.RecordingID, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan answer for %s: %w", callID, err)
		}
		a.RecordedAt = parseTime(recordedAt)
		p.Responses = append(p.Responses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load answers for %s: %w", callID, err)
	}
	return &p, nil
}

func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}
