package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mianlab/koushi/internal/interview"
	"github.com/mianlab/koushi/internal/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is the PostgreSQL-backed persistence layer. All operations are safe
// for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn
// and runs [Migrate] to ensure all required tables exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Ping verifies the database connection. Used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const interviewColumns = `
	id, user_id, resume_id, position_name, company_name,
	position_description, position_requirements, position_type,
	questions, interview_time, completed, created_at, updated_at`

// CreateInterview implements [store.InterviewStore].
func (s *Store) CreateInterview(ctx context.Context, iv interview.Interview) (interview.Interview, error) {
	questionsJSON, err := json.Marshal(iv.Questions)
	if err != nil {
		return interview.Interview{}, fmt.Errorf("interview store: marshal questions: %w", err)
	}
	if iv.InterviewAt.IsZero() {
		iv.InterviewAt = time.Now()
	}

	const q = `
		INSERT INTO interviews
		    (user_id, resume_id, position_name, company_name,
		     position_description, position_requirements, position_type,
		     questions, interview_time, completed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	err = s.pool.QueryRow(ctx, q,
		iv.UserID,
		iv.ResumeID,
		iv.PositionName,
		iv.CompanyName,
		iv.PositionDescription,
		iv.PositionRequirements,
		string(iv.PositionType),
		questionsJSON,
		iv.InterviewAt,
		iv.Completed,
	).Scan(&iv.ID, &iv.CreatedAt, &iv.UpdatedAt)
	if err != nil {
		return interview.Interview{}, fmt.Errorf("interview store: create: %w", err)
	}
	return iv, nil
}

// GetInterview implements [store.InterviewStore].
func (s *Store) GetInterview(ctx context.Context, id int64) (interview.Interview, error) {
	q := "SELECT " + interviewColumns + " FROM interviews WHERE id = $1"

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return interview.Interview{}, fmt.Errorf("interview store: get: %w", err)
	}
	iv, err := pgx.CollectOneRow(rows, scanInterview)
	if errors.Is(err, pgx.ErrNoRows) {
		return interview.Interview{}, store.ErrNotFound
	}
	if err != nil {
		return interview.Interview{}, fmt.Errorf("interview store: get: %w", err)
	}
	return iv, nil
}

// ListInterviews implements [store.InterviewStore].
func (s *Store) ListInterviews(ctx context.Context, userID int64) ([]interview.Interview, error) {
	q := "SELECT " + interviewColumns + " FROM interviews WHERE user_id = $1 ORDER BY interview_time DESC"

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("interview store: list: %w", err)
	}
	result, err := pgx.CollectRows(rows, scanInterview)
	if err != nil {
		return nil, fmt.Errorf("interview store: list: %w", err)
	}
	return result, nil
}

// SetQuestions implements [store.InterviewStore].
func (s *Store) SetQuestions(ctx context.Context, id int64, questions []interview.PlannedQuestion) error {
	questionsJSON, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("interview store: marshal questions: %w", err)
	}

	const q = `UPDATE interviews SET questions = $2, updated_at = now() WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, id, questionsJSON)
	if err != nil {
		return fmt.Errorf("interview store: set questions: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// MarkCompleted implements [store.InterviewStore].
func (s *Store) MarkCompleted(ctx context.Context, id int64) error {
	const q = `UPDATE interviews SET completed = TRUE, updated_at = now() WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("interview store: mark completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// PreviousInterview implements [store.InterviewStore].
func (s *Store) PreviousInterview(ctx context.Context, current interview.Interview) (interview.Interview, error) {
	q := "SELECT " + interviewColumns + `
		FROM interviews
		WHERE user_id = $1
		  AND position_type = $2
		  AND interview_time < $3
		  AND id <> $4
		  AND completed
		ORDER BY interview_time DESC
		LIMIT 1`

	rows, err := s.pool.Query(ctx, q,
		current.UserID, string(current.PositionType), current.InterviewAt, current.ID)
	if err != nil {
		return interview.Interview{}, fmt.Errorf("interview store: previous: %w", err)
	}
	iv, err := pgx.CollectOneRow(rows, scanInterview)
	if errors.Is(err, pgx.ErrNoRows) {
		return interview.Interview{}, store.ErrNotFound
	}
	if err != nil {
		return interview.Interview{}, fmt.Errorf("interview store: previous: %w", err)
	}
	return iv, nil
}

// scanInterview scans one interviews row, decoding the questions JSONB column.
func scanInterview(row pgx.CollectableRow) (interview.Interview, error) {
	var (
		iv            interview.Interview
		positionType  string
		questionsJSON []byte
	)
	if err := row.Scan(
		&iv.ID,
		&iv.UserID,
		&iv.ResumeID,
		&iv.PositionName,
		&iv.CompanyName,
		&iv.PositionDescription,
		&iv.PositionRequirements,
		&positionType,
		&questionsJSON,
		&iv.InterviewAt,
		&iv.Completed,
		&iv.CreatedAt,
		&iv.UpdatedAt,
	); err != nil {
		return interview.Interview{}, err
	}
	iv.PositionType = interview.PositionType(positionType)
	if len(questionsJSON) > 0 {
		if err := json.Unmarshal(questionsJSON, &iv.Questions); err != nil {
			return interview.Interview{}, fmt.Errorf("unmarshal questions: %w", err)
		}
	}
	return iv, nil
}
