package evaluator_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/mianlab/koushi/internal/evaluator"
	"github.com/mianlab/koushi/internal/interview"
	"github.com/mianlab/koushi/internal/store"
	"github.com/mianlab/koushi/pkg/llm"
	llmmock "github.com/mianlab/koushi/pkg/llm/mock"
)

func scoresWith(pk float64) interview.RubricScores {
	s := interview.NeutralRubric()
	s.ProfessionalKnowledge = pk
	return s
}

// seedInterview creates a completed interview with the given answers.
func seedInterview(t *testing.T, st *store.MemStore, userID int64, at time.Time, answers []interview.Answer) interview.Interview {
	t.Helper()
	ctx := context.Background()
	iv, err := st.CreateInterview(ctx, interview.Interview{
		UserID:       userID,
		PositionName: "后端开发工程师",
		PositionType: interview.PositionBackend,
		InterviewAt:  at,
	})
	if err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}
	for i := range answers {
		answers[i].InterviewID = iv.ID
		answers[i].QuestionIndex = i
		if _, _, err := st.CreateAnswer(ctx, answers[i]); err != nil {
			t.Fatalf("CreateAnswer: %v", err)
		}
	}
	if err := st.MarkCompleted(ctx, iv.ID); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	return iv
}

func day(d int) time.Time {
	return time.Date(2025, 7, d, 10, 0, 0, 0, time.UTC)
}

func TestEvaluateRadarAndScore(t *testing.T) {
	st := store.NewMemStore()
	iv := seedInterview(t, st, 1, day(1), []interview.Answer{
		{Question: "q1", Text: "a1", Scores: scoresWith(3), KnowledgePoints: []string{"Java"}, CreatedAt: day(1)},
		{Question: "q2", Text: "a2", Scores: scoresWith(4), KnowledgePoints: []string{"Java", "MySQL"}, CreatedAt: day(1)},
		{Question: "q3", Text: "a3", Scores: scoresWith(5), KnowledgePoints: []string{"MySQL"}, CreatedAt: day(2)},
	})

	e := evaluator.New(st, nil, nil)
	report, err := e.Evaluate(context.Background(), iv.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	// professional_knowledge mean = 4.0, ×20 = 80.0.
	if got := report.Radar.Data.Scores[0]; got != 80.0 {
		t.Errorf("radar professional_knowledge = %v, want 80.0", got)
	}
	// The other five dimensions stay neutral: 3.0 × 20 = 60.0.
	for i, s := range report.Radar.Data.Scores[1:] {
		if s != 60.0 {
			t.Errorf("radar dimension %d = %v, want 60.0", i+1, s)
		}
	}
	if len(report.Radar.Data.Dimensions) != 6 {
		t.Errorf("radar has %d dimensions, want 6", len(report.Radar.Data.Dimensions))
	}

	// Overall = mean(80, 60×5) = 63.3.
	if report.Score != 63.3 {
		t.Errorf("overall score = %v, want 63.3", report.Score)
	}

	// Pie counts every unique knowledge point.
	wantPie := []evaluator.PiePoint{{Label: "Java", Value: 2}, {Label: "MySQL", Value: 2}}
	if !reflect.DeepEqual(report.Pie.Data.Points, wantPie) {
		t.Errorf("pie points = %+v, want %+v", report.Pie.Data.Points, wantPie)
	}

	// Trend has one point per distinct creation date.
	if len(report.Trend.Dates) != 2 {
		t.Fatalf("trend has %d points, want 2", len(report.Trend.Dates))
	}
	if report.Trend.Dates[0] != "2025-07-01" || report.Trend.Dates[1] != "2025-07-02" {
		t.Errorf("trend dates = %v", report.Trend.Dates)
	}

	// No prior interview: lastCompare is absent.
	if report.LastCompare != nil {
		t.Errorf("lastCompare = %+v, want nil", report.LastCompare)
	}
}

func TestEvaluateBarMastery(t *testing.T) {
	st := store.NewMemStore()

	correctness := func(c float64) interview.RubricScores {
		s := interview.NeutralRubric()
		s.Correctness = c
		return s
	}
	iv := seedInterview(t, st, 1, day(1), []interview.Answer{
		{Question: "q1", Text: "a", Scores: correctness(5), KnowledgePoints: []string{"Redis"}, CreatedAt: day(1)},
		{Question: "q2", Text: "a", Scores: correctness(2), KnowledgePoints: []string{"Redis", "网络"}, CreatedAt: day(1)},
	})

	e := evaluator.New(st, nil, nil)
	report, err := e.Evaluate(context.Background(), iv.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	// Redis: mean(5, 2)/5 = 0.7; 网络: 2/5 = 0.4.
	want := evaluator.BarData{Labels: []string{"Redis", "网络"}, Accuracy: []float64{0.7, 0.4}}
	if !reflect.DeepEqual(report.Bar.Data, want) {
		t.Errorf("bar data = %+v, want %+v", report.Bar.Data, want)
	}
}

func TestEvaluateNumericStability(t *testing.T) {
	st := store.NewMemStore()
	iv := seedInterview(t, st, 1, day(1), []interview.Answer{
		{Question: "q1", Text: "a", Scores: scoresWith(4.2), KnowledgePoints: []string{"Go", "并发", "调度"}, CreatedAt: day(1)},
		{Question: "q2", Text: "a", Scores: scoresWith(2.8), KnowledgePoints: []string{"并发", "Go"}, CreatedAt: day(2)},
	})

	e := evaluator.New(st, nil, nil)
	first, err := e.Evaluate(context.Background(), iv.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := e.Evaluate(context.Background(), iv.ID)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if !reflect.DeepEqual(again.Radar.Data, first.Radar.Data) ||
			!reflect.DeepEqual(again.Pie.Data, first.Pie.Data) ||
			!reflect.DeepEqual(again.Bar.Data, first.Bar.Data) ||
			!reflect.DeepEqual(again.Trend, first.Trend) ||
			again.Score != first.Score {
			t.Fatal("numeric datasets changed between evaluations")
		}
	}
}

func TestEvaluateLastCompare(t *testing.T) {
	st := store.NewMemStore()
	seedInterview(t, st, 1, day(1), []interview.Answer{
		{Question: "q1", Text: "a", Scores: scoresWith(3), CreatedAt: day(1)},
	})
	current := seedInterview(t, st, 1, day(8), []interview.Answer{
		{Question: "q1", Text: "a", Scores: scoresWith(5), CreatedAt: day(8)},
	})

	e := evaluator.New(st, nil, nil)
	report, err := e.Evaluate(context.Background(), current.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if report.LastCompare == nil {
		t.Fatal("lastCompare missing despite prior completed interview")
	}
	// professional_knowledge went 60 → 100: delta 40, overall change 40/6 ≈ 6.7.
	if got := report.LastCompare.RadarDelta[0]; got != 40.0 {
		t.Errorf("radarDelta[0] = %v, want 40.0", got)
	}
	if got := report.LastCompare.ScoreChange; got != 6.7 {
		t.Errorf("scoreChange = %v, want 6.7", got)
	}
}

func TestEvaluateUsesLLMComments(t *testing.T) {
	st := store.NewMemStore()
	iv := seedInterview(t, st, 1, day(1), []interview.Answer{
		{Question: "q1", Text: "a", Scores: scoresWith(4), KnowledgePoints: []string{"Java"}, CreatedAt: day(1)},
	})

	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "  专业知识扎实，继续保持。\n"},
	}
	e := evaluator.New(st, provider, nil)
	report, err := e.Evaluate(context.Background(), iv.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if report.Radar.Comment != "专业知识扎实，继续保持。" {
		t.Errorf("radar comment = %q, want trimmed model output", report.Radar.Comment)
	}
	// Four comment prompts plus the technical summary: radar, pie, bar,
	// STAR, technical.
	if got := len(provider.CompleteCalls); got != 5 {
		t.Errorf("provider called %d times, want 5", got)
	}
}

func TestEvaluateCommentFallbacks(t *testing.T) {
	st := store.NewMemStore()
	iv := seedInterview(t, st, 1, day(1), []interview.Answer{
		{
			Question: "q1", Text: "a",
			Scores: interview.RubricScores{
				ProfessionalKnowledge: 5, SkillMatching: 3, Communication: 3,
				LogicalThinking: 3, Innovation: 1, StressHandling: 3, Correctness: 3,
			},
			KnowledgePoints: []string{"Java"},
			CreatedAt:       day(1),
		},
	})

	// Failing provider forces the deterministic fallbacks.
	provider := &llmmock.Provider{CompleteErr: errors.New("model unavailable")}
	e := evaluator.New(st, provider, nil)
	report, err := e.Evaluate(context.Background(), iv.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if report.Radar.Comment != "专业知识水平表现突出，创新能力方面需加强。" {
		t.Errorf("radar fallback = %q", report.Radar.Comment)
	}
	if report.Summary.StarStructure == "" || report.Summary.TechnicalSummary == "" {
		t.Error("summary fallbacks must be non-empty")
	}
}

func TestEvaluateNoAnswers(t *testing.T) {
	st := store.NewMemStore()
	iv, err := st.CreateInterview(context.Background(), interview.Interview{UserID: 1})
	if err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}

	e := evaluator.New(st, nil, nil)
	if _, err := e.Evaluate(context.Background(), iv.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for answerless interview, got %v", err)
	}
	if _, err := e.Evaluate(context.Background(), 9999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing interview, got %v", err)
	}
}

func TestUserOverview(t *testing.T) {
	st := store.NewMemStore()
	seedInterview(t, st, 7, day(1), []interview.Answer{
		{Question: "q1", Text: "a", Scores: scoresWith(3), CreatedAt: day(1)},
	})
	seedInterview(t, st, 7, day(8), []interview.Answer{
		{Question: "q1", Text: "a", Scores: scoresWith(5), CreatedAt: day(8)},
	})
	// Unfinished interview must be excluded.
	if _, err := st.CreateInterview(context.Background(), interview.Interview{
		UserID: 7, PositionType: interview.PositionBackend, InterviewAt: day(9),
	}); err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}

	e := evaluator.New(st, nil, nil)
	ov, err := e.UserOverview(context.Background(), 7)
	if err != nil {
		t.Fatalf("UserOverview: %v", err)
	}
	if len(ov.Interviews) != 2 {
		t.Fatalf("overview has %d interviews, want 2", len(ov.Interviews))
	}
	// Newest first: day(8) with pk=5 → 66.7 ranks before day(1) with pk=3 → 60.
	if ov.Interviews[0].Score != 66.7 || ov.Interviews[1].Score != 60.0 {
		t.Errorf("overview scores = %+v", ov.Interviews)
	}
	if ov.MeanScore != 63.4 {
		t.Errorf("mean score = %v, want 63.4", ov.MeanScore)
	}
	if ov.Summary == "" {
		t.Error("overview summary must be non-empty")
	}
}

func TestUserOverviewNoInterviews(t *testing.T) {
	e := evaluator.New(store.NewMemStore(), nil, nil)
	if _, err := e.UserOverview(context.Background(), 42); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
