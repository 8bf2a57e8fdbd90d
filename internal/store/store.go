// Package store defines the persistence contracts for interviews, answers,
// coding submissions, and résumé reads.
//
// Two implementations exist: [MemStore] for tests and single-process runs,
// and internal/store/postgres for production. All implementations must be
// safe for concurrent use; the orchestrator, the scoring workers, and the
// HTTP surface share one store.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mianlab/koushi/internal/interview"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// InterviewStore manages interview records and their question queues.
type InterviewStore interface {
	// CreateInterview persists a new interview and returns it with its
	// assigned ID.
	CreateInterview(ctx context.Context, iv interview.Interview) (interview.Interview, error)

	// GetInterview retrieves an interview by ID.
	// Returns [ErrNotFound] when no interview with that ID exists.
	GetInterview(ctx context.Context, id int64) (interview.Interview, error)

	// ListInterviews returns all interviews owned by the given user.
	// Result order is not guaranteed.
	ListInterviews(ctx context.Context, userID int64) ([]interview.Interview, error)

	// SetQuestions replaces the interview's question queue. Callers only do
	// this when the stored queue is empty (lazy planning on first connect).
	SetQuestions(ctx context.Context, id int64, questions []interview.PlannedQuestion) error

	// MarkCompleted flags the interview as completed.
	MarkCompleted(ctx context.Context, id int64) error

	// PreviousInterview returns the most recent completed interview of the
	// same user and position type that was scheduled before the given one.
	// Returns [ErrNotFound] when there is no prior completed interview.
	PreviousInterview(ctx context.Context, current interview.Interview) (interview.Interview, error)
}

// AnswerStore manages per-question answer records.
//
// Creation is idempotent per (interview, question index): the first write
// wins and later writes return the stored record. Scores are set exactly
// once by the scorer.
type AnswerStore interface {
	// CreateAnswer persists the answer unless one already exists for its
	// (InterviewID, QuestionIndex) pair. It returns the stored record and
	// whether this call created it.
	CreateAnswer(ctx context.Context, a interview.Answer) (interview.Answer, bool, error)

	// GetAnswer retrieves an answer by ID.
	// Returns [ErrNotFound] when no answer with that ID exists.
	GetAnswer(ctx context.Context, id uuid.UUID) (interview.Answer, error)

	// ListAnswers returns the interview's answers ordered by question index.
	ListAnswers(ctx context.Context, interviewID int64) ([]interview.Answer, error)

	// SetScores writes the rubric scores and rationale for an answer.
	// Returns [ErrNotFound] when no answer with that ID exists.
	SetScores(ctx context.Context, id uuid.UUID, scores interview.RubricScores, analysis string) error

	// SetText replaces the answer text. The scorer uses it when offline
	// re-transcription produced a better transcript.
	// Returns [ErrNotFound] when no answer with that ID exists.
	SetText(ctx context.Context, id uuid.UUID, text string) error
}

// CodingStore manages coding submissions.
type CodingStore interface {
	// CreateCodingAnswer persists a submission unless one already exists for
	// its (InterviewID, ProblemID) pair. It returns the stored record and
	// whether this call created it.
	CreateCodingAnswer(ctx context.Context, ca interview.CodingAnswer) (interview.CodingAnswer, bool, error)

	// ListCodingAnswers returns the interview's submissions in creation order.
	ListCodingAnswers(ctx context.Context, interviewID int64) ([]interview.CodingAnswer, error)
}

// ResumeStore reads résumés. Résumé CRUD lives outside this system; the
// planners only ever read.
type ResumeStore interface {
	// GetResume retrieves a résumé by ID.
	// Returns [ErrNotFound] when no résumé with that ID exists.
	GetResume(ctx context.Context, id int64) (interview.Resume, error)
}

// ProblemStore manages the coding-problem bank.
type ProblemStore interface {
	// UpsertProblems inserts or replaces problems keyed by their Number.
	// The bank loader calls this at startup.
	UpsertProblems(ctx context.Context, problems []interview.CodingProblem) error

	// ListProblems returns the whole bank ordered by Number.
	ListProblems(ctx context.Context) ([]interview.CodingProblem, error)

	// GetProblem retrieves one problem by ID.
	// Returns [ErrNotFound] when no problem with that ID exists.
	GetProblem(ctx context.Context, id int64) (interview.CodingProblem, error)
}

// Store bundles every persistence contract the server needs.
type Store interface {
	InterviewStore
	AnswerStore
	CodingStore
	ResumeStore
	ProblemStore
}
