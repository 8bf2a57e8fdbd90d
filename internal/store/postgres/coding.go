package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mianlab/koushi/internal/interview"
	"github.com/mianlab/koushi/internal/store"
)

// CreateCodingAnswer implements [store.CodingStore]. ON CONFLICT DO NOTHING
// on (interview_id, problem_id) keeps resubmissions from overwriting the
// first submission.
func (s *Store) CreateCodingAnswer(ctx context.Context, ca interview.CodingAnswer) (interview.CodingAnswer, bool, error) {
	if ca.ID == uuid.Nil {
		ca.ID = uuid.New()
	}
	if ca.CreatedAt.IsZero() {
		ca.CreatedAt = time.Now()
	}

	const q = `
		INSERT INTO coding_answers (id, interview_id, problem_id, code, language, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (interview_id, problem_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, q,
		ca.ID, ca.InterviewID, ca.ProblemID, ca.Code, ca.Language, ca.CreatedAt)
	if err != nil {
		return interview.CodingAnswer{}, false, fmt.Errorf("coding store: create: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return ca, true, nil
	}

	const sel = `
		SELECT id, interview_id, problem_id, code, language, created_at
		FROM   coding_answers
		WHERE  interview_id = $1 AND problem_id = $2`

	rows, err := s.pool.Query(ctx, sel, ca.InterviewID, ca.ProblemID)
	if err != nil {
		return interview.CodingAnswer{}, false, fmt.Errorf("coding store: get existing: %w", err)
	}
	existing, err := pgx.CollectOneRow(rows, scanCodingAnswer)
	if err != nil {
		return interview.CodingAnswer{}, false, fmt.Errorf("coding store: get existing: %w", err)
	}
	return existing, false, nil
}

// ListCodingAnswers implements [store.CodingStore].
func (s *Store) ListCodingAnswers(ctx context.Context, interviewID int64) ([]interview.CodingAnswer, error) {
	const q = `
		SELECT id, interview_id, problem_id, code, language, created_at
		FROM   coding_answers
		WHERE  interview_id = $1
		ORDER  BY created_at`

	rows, err := s.pool.Query(ctx, q, interviewID)
	if err != nil {
		return nil, fmt.Errorf("coding store: list: %w", err)
	}
	result, err := pgx.CollectRows(rows, scanCodingAnswer)
	if err != nil {
		return nil, fmt.Errorf("coding store: list: %w", err)
	}
	return result, nil
}

func scanCodingAnswer(row pgx.CollectableRow) (interview.CodingAnswer, error) {
	var ca interview.CodingAnswer
	err := row.Scan(&ca.ID, &ca.InterviewID, &ca.ProblemID, &ca.Code, &ca.Language, &ca.CreatedAt)
	return ca, err
}

// GetResume implements [store.ResumeStore].
func (s *Store) GetResume(ctx context.Context, id int64) (interview.Resume, error) {
	const q = `
		SELECT id, user_id, name, expected_position, education_level,
		       work_experiences, project_experiences
		FROM   resumes
		WHERE  id = $1`

	var (
		r            interview.Resume
		workJSON     []byte
		projectsJSON []byte
	)
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&r.ID,
		&r.UserID,
		&r.Name,
		&r.ExpectedPosition,
		&r.EducationLevel,
		&workJSON,
		&projectsJSON,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return interview.Resume{}, store.ErrNotFound
	}
	if err != nil {
		return interview.Resume{}, fmt.Errorf("resume store: get: %w", err)
	}

	if len(workJSON) > 0 {
		if err := json.Unmarshal(workJSON, &r.Work); err != nil {
			return interview.Resume{}, fmt.Errorf("resume store: unmarshal work experiences: %w", err)
		}
	}
	if len(projectsJSON) > 0 {
		if err := json.Unmarshal(projectsJSON, &r.Projects); err != nil {
			return interview.Resume{}, fmt.Errorf("resume store: unmarshal project experiences: %w", err)
		}
	}
	return r, nil
}
