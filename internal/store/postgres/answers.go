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

const answerColumns = `
	id, interview_id, question_index, question, answer, knowledge_points,
	clip_path, professional_knowledge, skill_matching, communication,
	logical_thinking, innovation, stress_handling, correctness, analysis,
	created_at`

// CreateAnswer implements [store.AnswerStore]. The insert carries
// ON CONFLICT DO NOTHING on (interview_id, question_index); a conflicting
// write returns the already stored record so replayed question flushes are
// harmless.
func (s *Store) CreateAnswer(ctx context.Context, a interview.Answer) (interview.Answer, bool, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.Scores = a.Scores.Clamp()

	pointsJSON, err := json.Marshal(a.KnowledgePoints)
	if err != nil {
		return interview.Answer{}, false, fmt.Errorf("answer store: marshal knowledge points: %w", err)
	}

	const q = `
		INSERT INTO interview_answers
		    (id, interview_id, question_index, question, answer, knowledge_points,
		     clip_path, professional_knowledge, skill_matching, communication,
		     logical_thinking, innovation, stress_handling, correctness, analysis,
		     created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (interview_id, question_index) DO NOTHING`

	tag, err := s.pool.Exec(ctx, q,
		a.ID,
		a.InterviewID,
		a.QuestionIndex,
		a.Question,
		a.Text,
		pointsJSON,
		a.ClipPath,
		a.Scores.ProfessionalKnowledge,
		a.Scores.SkillMatching,
		a.Scores.Communication,
		a.Scores.LogicalThinking,
		a.Scores.Innovation,
		a.Scores.StressHandling,
		a.Scores.Correctness,
		a.Analysis,
		a.CreatedAt,
	)
	if err != nil {
		return interview.Answer{}, false, fmt.Errorf("answer store: create: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return a, true, nil
	}

	existing, err := s.answerByIndex(ctx, a.InterviewID, a.QuestionIndex)
	if err != nil {
		return interview.Answer{}, false, err
	}
	return existing, false, nil
}

// GetAnswer implements [store.AnswerStore].
func (s *Store) GetAnswer(ctx context.Context, id uuid.UUID) (interview.Answer, error) {
	q := "SELECT " + answerColumns + " FROM interview_answers WHERE id = $1"

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return interview.Answer{}, fmt.Errorf("answer store: get: %w", err)
	}
	a, err := pgx.CollectOneRow(rows, scanAnswer)
	if errors.Is(err, pgx.ErrNoRows) {
		return interview.Answer{}, store.ErrNotFound
	}
	if err != nil {
		return interview.Answer{}, fmt.Errorf("answer store: get: %w", err)
	}
	return a, nil
}

// ListAnswers implements [store.AnswerStore].
func (s *Store) ListAnswers(ctx context.Context, interviewID int64) ([]interview.Answer, error) {
	q := "SELECT " + answerColumns + `
		FROM interview_answers
		WHERE interview_id = $1
		ORDER BY question_index`

	rows, err := s.pool.Query(ctx, q, interviewID)
	if err != nil {
		return nil, fmt.Errorf("answer store: list: %w", err)
	}
	result, err := pgx.CollectRows(rows, scanAnswer)
	if err != nil {
		return nil, fmt.Errorf("answer store: list: %w", err)
	}
	return result, nil
}

// SetScores implements [store.AnswerStore].
func (s *Store) SetScores(ctx context.Context, id uuid.UUID, scores interview.RubricScores, analysis string) error {
	scores = scores.Clamp()

	const q = `
		UPDATE interview_answers
		SET    professional_knowledge = $2,
		       skill_matching         = $3,
		       communication          = $4,
		       logical_thinking       = $5,
		       innovation             = $6,
		       stress_handling        = $7,
		       correctness            = $8,
		       analysis               = $9
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q,
		id,
		scores.ProfessionalKnowledge,
		scores.SkillMatching,
		scores.Communication,
		scores.LogicalThinking,
		scores.Innovation,
		scores.StressHandling,
		scores.Correctness,
		analysis,
	)
	if err != nil {
		return fmt.Errorf("answer store: set scores: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SetText implements [store.AnswerStore].
func (s *Store) SetText(ctx context.Context, id uuid.UUID, text string) error {
	const q = `UPDATE interview_answers SET answer = $2 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, id, text)
	if err != nil {
		return fmt.Errorf("answer store: set text: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// answerByIndex fetches the answer stored for (interviewID, questionIndex).
func (s *Store) answerByIndex(ctx context.Context, interviewID int64, questionIndex int) (interview.Answer, error) {
	q := "SELECT " + answerColumns + `
		FROM interview_answers
		WHERE interview_id = $1 AND question_index = $2`

	rows, err := s.pool.Query(ctx, q, interviewID, questionIndex)
	if err != nil {
		return interview.Answer{}, fmt.Errorf("answer store: get by index: %w", err)
	}
	a, err := pgx.CollectOneRow(rows, scanAnswer)
	if errors.Is(err, pgx.ErrNoRows) {
		return interview.Answer{}, store.ErrNotFound
	}
	if err != nil {
		return interview.Answer{}, fmt.Errorf("answer store: get by index: %w", err)
	}
	return a, nil
}

// scanAnswer scans one interview_answers row.
func scanAnswer(row pgx.CollectableRow) (interview.Answer, error) {
	var (
		a          interview.Answer
		pointsJSON []byte
	)
	if err := row.Scan(
		&a.ID,
		&a.InterviewID,
		&a.QuestionIndex,
		&a.Question,
		&a.Text,
		&pointsJSON,
		&a.ClipPath,
		&a.Scores.ProfessionalKnowledge,
		&a.Scores.SkillMatching,
		&a.Scores.Communication,
		&a.Scores.LogicalThinking,
		&a.Scores.Innovation,
		&a.Scores.StressHandling,
		&a.Scores.Correctness,
		&a.Analysis,
		&a.CreatedAt,
	); err != nil {
		return interview.Answer{}, err
	}
	if len(pointsJSON) > 0 {
		if err := json.Unmarshal(pointsJSON, &a.KnowledgePoints); err != nil {
			return interview.Answer{}, fmt.Errorf("unmarshal knowledge points: %w", err)
		}
	}
	return a, nil
}
