package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mianlab/koushi/internal/interview"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// It backs tests and single-process runs without a database.
type MemStore struct {
	mu sync.RWMutex

	nextInterviewID int64
	interviews      map[int64]interview.Interview
	answers         map[uuid.UUID]interview.Answer
	answerByIndex   map[answerKey]uuid.UUID
	codingAnswers   map[codingKey]interview.CodingAnswer
	codingOrder     []codingKey
	resumes         map[int64]interview.Resume
	nextProblemID   int64
	problems        map[int64]interview.CodingProblem
	problemByNumber map[int]int64
}

type answerKey struct {
	interviewID   int64
	questionIndex int
}

type codingKey struct {
	interviewID int64
	problemID   int64
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		nextInterviewID: 1,
		interviews:      make(map[int64]interview.Interview),
		answers:         make(map[uuid.UUID]interview.Answer),
		answerByIndex:   make(map[answerKey]uuid.UUID),
		codingAnswers:   make(map[codingKey]interview.CodingAnswer),
		resumes:         make(map[int64]interview.Resume),
		nextProblemID:   1,
		problems:        make(map[int64]interview.CodingProblem),
		problemByNumber: make(map[int]int64),
	}
}

// CreateInterview implements [InterviewStore.CreateInterview].
func (s *MemStore) CreateInterview(ctx context.Context, iv interview.Interview) (interview.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if iv.ID == 0 {
		iv.ID = s.nextInterviewID
		s.nextInterviewID++
	} else if iv.ID >= s.nextInterviewID {
		s.nextInterviewID = iv.ID + 1
	}
	now := time.Now()
	if iv.CreatedAt.IsZero() {
		iv.CreatedAt = now
	}
	iv.UpdatedAt = now

	s.interviews[iv.ID] = iv
	return iv, nil
}

// GetInterview implements [InterviewStore.GetInterview].
func (s *MemStore) GetInterview(ctx context.Context, id int64) (interview.Interview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	iv, ok := s.interviews[id]
	if !ok {
		return interview.Interview{}, ErrNotFound
	}
	return iv, nil
}

// ListInterviews implements [InterviewStore.ListInterviews].
func (s *MemStore) ListInterviews(ctx context.Context, userID int64) ([]interview.Interview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]interview.Interview, 0)
	for _, iv := range s.interviews {
		if iv.UserID == userID {
			result = append(result, iv)
		}
	}
	return result, nil
}

// SetQuestions implements [InterviewStore.SetQuestions].
func (s *MemStore) SetQuestions(ctx context.Context, id int64, questions []interview.PlannedQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	iv, ok := s.interviews[id]
	if !ok {
		return ErrNotFound
	}
	iv.Questions = questions
	iv.UpdatedAt = time.Now()
	s.interviews[id] = iv
	return nil
}

// MarkCompleted implements [InterviewStore.MarkCompleted].
func (s *MemStore) MarkCompleted(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	iv, ok := s.interviews[id]
	if !ok {
		return ErrNotFound
	}
	iv.Completed = true
	iv.UpdatedAt = time.Now()
	s.interviews[id] = iv
	return nil
}

// PreviousInterview implements [InterviewStore.PreviousInterview].
func (s *MemStore) PreviousInterview(ctx context.Context, current interview.Interview) (interview.Interview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best  interview.Interview
		found bool
	)
	for _, iv := range s.interviews {
		if iv.ID == current.ID || iv.UserID != current.UserID || iv.PositionType != current.PositionType {
			continue
		}
		if !iv.Completed {
			continue
		}
		if !iv.InterviewAt.Before(current.InterviewAt) {
			continue
		}
		if !found || iv.InterviewAt.After(best.InterviewAt) {
			best = iv
			found = true
		}
	}
	if !found {
		return interview.Interview{}, ErrNotFound
	}
	return best, nil
}

// CreateAnswer implements [AnswerStore.CreateAnswer].
func (s *MemStore) CreateAnswer(ctx context.Context, a interview.Answer) (interview.Answer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := answerKey{interviewID: a.InterviewID, questionIndex: a.QuestionIndex}
	if id, exists := s.answerByIndex[key]; exists {
		return s.answers[id], false, nil
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	s.answers[a.ID] = a
	s.answerByIndex[key] = a.ID
	return a, true, nil
}

// GetAnswer implements [AnswerStore.GetAnswer].
func (s *MemStore) GetAnswer(ctx context.Context, id uuid.UUID) (interview.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.answers[id]
	if !ok {
		return interview.Answer{}, ErrNotFound
	}
	return a, nil
}

// ListAnswers implements [AnswerStore.ListAnswers].
func (s *MemStore) ListAnswers(ctx context.Context, interviewID int64) ([]interview.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]interview.Answer, 0)
	for _, a := range s.answers {
		if a.InterviewID == interviewID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].QuestionIndex < result[j].QuestionIndex
	})
	return result, nil
}

// SetScores implements [AnswerStore.SetScores].
func (s *MemStore) SetScores(ctx context.Context, id uuid.UUID, scores interview.RubricScores, analysis string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.answers[id]
	if !ok {
		return ErrNotFound
	}
	a.Scores = scores.Clamp()
	a.Analysis = analysis
	s.answers[id] = a
	return nil
}

// SetText implements [AnswerStore.SetText].
func (s *MemStore) SetText(ctx context.Context, id uuid.UUID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.answers[id]
	if !ok {
		return ErrNotFound
	}
	a.Text = text
	s.answers[id] = a
	return nil
}

// CreateCodingAnswer implements [CodingStore.CreateCodingAnswer].
func (s *MemStore) CreateCodingAnswer(ctx context.Context, ca interview.CodingAnswer) (interview.CodingAnswer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := codingKey{interviewID: ca.InterviewID, problemID: ca.ProblemID}
	if existing, exists := s.codingAnswers[key]; exists {
		return existing, false, nil
	}

	if ca.ID == uuid.Nil {
		ca.ID = uuid.New()
	}
	if ca.CreatedAt.IsZero() {
		ca.CreatedAt = time.Now()
	}

	s.codingAnswers[key] = ca
	s.codingOrder = append(s.codingOrder, key)
	return ca, true, nil
}

// ListCodingAnswers implements [CodingStore.ListCodingAnswers].
func (s *MemStore) ListCodingAnswers(ctx context.Context, interviewID int64) ([]interview.CodingAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]interview.CodingAnswer, 0)
	for _, key := range s.codingOrder {
		if key.interviewID == interviewID {
			result = append(result, s.codingAnswers[key])
		}
	}
	return result, nil
}

// GetResume implements [ResumeStore.GetResume].
func (s *MemStore) GetResume(ctx context.Context, id int64) (interview.Resume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.resumes[id]
	if !ok {
		return interview.Resume{}, ErrNotFound
	}
	return r, nil
}

// PutResume seeds a résumé. Résumé writes happen outside this system; this
// exists for tests and local runs.
func (s *MemStore) PutResume(r interview.Resume) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumes[r.ID] = r
}

// UpsertProblems implements [ProblemStore.UpsertProblems].
func (s *MemStore) UpsertProblems(ctx context.Context, problems []interview.CodingProblem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range problems {
		if id, ok := s.problemByNumber[p.Number]; ok {
			p.ID = id
		} else {
			p.ID = s.nextProblemID
			s.nextProblemID++
			s.problemByNumber[p.Number] = p.ID
		}
		s.problems[p.ID] = p
	}
	return nil
}

// ListProblems implements [ProblemStore.ListProblems].
func (s *MemStore) ListProblems(ctx context.Context) ([]interview.CodingProblem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]interview.CodingProblem, 0, len(s.problems))
	for _, p := range s.problems {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	return result, nil
}

// GetProblem implements [ProblemStore.GetProblem].
func (s *MemStore) GetProblem(ctx context.Context, id int64) (interview.CodingProblem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.problems[id]
	if !ok {
		return interview.CodingProblem{}, ErrNotFound
	}
	return p, nil
}
