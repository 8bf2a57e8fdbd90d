// Package evaluator aggregates an interview's scored answers into the
// multi-dimensional evaluation report: ability radar, knowledge-point pie,
// mastery bar, score trend, comparison with the previous interview, and four
// short LLM-written comments.
//
// The numeric datasets are pure functions of the stored answers — repeated
// evaluation of the same interview yields identical numbers. Only the comment
// strings involve the LLM, and every comment has a deterministic fallback so
// a model outage never breaks the report.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/mianlab/koushi/internal/interview"
	"github.com/mianlab/koushi/internal/store"
	"github.com/mianlab/koushi/pkg/llm"
)

// radarDimensions are the six ability facets shown on the radar chart, in
// display order. Correctness is excluded here; it powers the mastery bar.
var radarDimensions = []string{
	"专业知识水平",
	"技能匹配度",
	"语言表达能力",
	"逻辑思维能力",
	"创新能力",
	"应变抗压能力",
}

// RadarData carries the radar chart axes and percentile scores.
type RadarData struct {
	Dimensions []string  `json:"dimensions"`
	Scores     []float64 `json:"scores"`
}

// Radar is the ability radar section of the report.
type Radar struct {
	Data    RadarData `json:"data"`
	Comment string    `json:"comment"`
}

// PiePoint is one slice of the knowledge-point distribution.
type PiePoint struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// Pie is the knowledge-point distribution section.
type Pie struct {
	Data struct {
		Points []PiePoint `json:"points"`
	} `json:"data"`
	Comment string `json:"comment"`
}

// BarData carries per-knowledge-point mastery in [0, 1].
type BarData struct {
	Labels   []string  `json:"labels"`
	Accuracy []float64 `json:"accuracy"`
}

// Bar is the knowledge-point mastery section.
type Bar struct {
	Data    BarData `json:"data"`
	Comment string  `json:"comment"`
}

// Trend is the per-date score line.
type Trend struct {
	Dates  []string  `json:"dates"`
	Scores []float64 `json:"scores"`
}

// LastCompare holds deltas against the previous interview of the same user
// and position type.
type LastCompare struct {
	ScoreChange float64   `json:"scoreChange"`
	RadarDelta  []float64 `json:"radarDelta"`
}

// Summary holds the closing narrative comments.
type Summary struct {
	StarStructure    string `json:"starStructure"`
	TechnicalSummary string `json:"technicalSummary"`
}

// Report is the full evaluation of one interview.
type Report struct {
	Radar       Radar        `json:"radar"`
	Pie         Pie          `json:"pie"`
	Bar         Bar          `json:"bar"`
	Trend       Trend        `json:"trend"`
	Score       float64      `json:"score"`
	LastCompare *LastCompare `json:"lastCompare"`
	Summary     Summary      `json:"summary"`
}

// InterviewOverall is one row of the user overview.
type InterviewOverall struct {
	InterviewID  int64   `json:"interview_id"`
	PositionName string  `json:"position_name"`
	Score        float64 `json:"score"`
}

// Overview aggregates a user's completed interviews.
type Overview struct {
	Interviews []InterviewOverall `json:"interviews"`
	MeanScore  float64            `json:"mean_score"`
	Summary    string             `json:"summary"`
}

// Evaluator builds reports from stored answers. provider may be nil, in
// which case all comments use the deterministic fallbacks.
type Evaluator struct {
	store    store.Store
	provider llm.Provider
	log      *slog.Logger
}

// New returns an evaluator over st. provider is optional.
func New(st store.Store, provider llm.Provider, log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{store: st, provider: provider, log: log}
}

// Evaluate builds the full report for one interview. Returns
// [store.ErrNotFound] when the interview does not exist or has no answers.
func (e *Evaluator) Evaluate(ctx context.Context, interviewID int64) (Report, error) {
	iv, err := e.store.GetInterview(ctx, interviewID)
	if err != nil {
		return Report{}, fmt.Errorf("evaluator: load interview: %w", err)
	}
	answers, err := e.store.ListAnswers(ctx, interviewID)
	if err != nil {
		return Report{}, fmt.Errorf("evaluator: load answers: %w", err)
	}
	if len(answers) == 0 {
		return Report{}, store.ErrNotFound
	}

	scores := radarScores(answers)
	points := knowledgeDistribution(answers)
	labels, accuracy := knowledgeMastery(answers)
	overall := round1(mean(scores))

	report := Report{
		Score: overall,
		Trend: scoreTrend(answers),
	}
	report.Radar.Data = RadarData{Dimensions: radarDimensions, Scores: scores}
	report.Radar.Comment = e.radarComment(ctx, scores)
	report.Pie.Data.Points = points
	report.Pie.Comment = e.pieComment(ctx, points)
	report.Bar.Data = BarData{Labels: labels, Accuracy: accuracy}
	report.Bar.Comment = e.barComment(ctx, labels, accuracy)
	report.LastCompare = e.lastCompare(ctx, iv, scores)
	report.Summary = e.summary(ctx, iv, answers, overall, points)

	return report, nil
}

// UserOverview lists the overall score of each completed interview of the
// user, newest first, together with their mean. Returns [store.ErrNotFound]
// when the user has no evaluable interview.
func (e *Evaluator) UserOverview(ctx context.Context, userID int64) (Overview, error) {
	interviews, err := e.store.ListInterviews(ctx, userID)
	if err != nil {
		return Overview{}, fmt.Errorf("evaluator: list interviews: %w", err)
	}
	sort.Slice(interviews, func(i, j int) bool {
		return interviews[i].InterviewAt.After(interviews[j].InterviewAt)
	})

	var rows []InterviewOverall
	for _, iv := range interviews {
		if !iv.Completed {
			continue
		}
		answers, err := e.store.ListAnswers(ctx, iv.ID)
		if err != nil {
			return Overview{}, fmt.Errorf("evaluator: load answers: %w", err)
		}
		if len(answers) == 0 {
			continue
		}
		rows = append(rows, InterviewOverall{
			InterviewID:  iv.ID,
			PositionName: iv.PositionName,
			Score:        round1(mean(radarScores(answers))),
		})
	}
	if len(rows) == 0 {
		return Overview{}, store.ErrNotFound
	}

	total := 0.0
	for _, r := range rows {
		total += r.Score
	}
	ov := Overview{
		Interviews: rows,
		MeanScore:  round1(total / float64(len(rows))),
	}
	ov.Summary = e.overviewComment(ctx, rows, ov.MeanScore)
	return ov, nil
}

// lastCompare computes score deltas against the previous completed interview
// of the same user and position type. Nil when no such interview exists or
// it has no answers.
func (e *Evaluator) lastCompare(ctx context.Context, iv interview.Interview, scores []float64) *LastCompare {
	prev, err := e.store.PreviousInterview(ctx, iv)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		e.log.Warn("previous interview lookup failed", "interview_id", iv.ID, "error", err)
		return nil
	}
	prevAnswers, err := e.store.ListAnswers(ctx, prev.ID)
	if err != nil || len(prevAnswers) == 0 {
		return nil
	}

	prevScores := radarScores(prevAnswers)
	delta := make([]float64, len(scores))
	for i := range scores {
		delta[i] = round1(scores[i] - prevScores[i])
	}
	return &LastCompare{
		ScoreChange: round1(mean(scores) - mean(prevScores)),
		RadarDelta:  delta,
	}
}

// radarScores computes the six ability means rescaled to the percentile
// scale, one decimal.
func radarScores(answers []interview.Answer) []float64 {
	sums := make([]float64, len(radarDimensions))
	for _, a := range answers {
		for i, v := range abilityValues(a.Scores) {
			sums[i] += v
		}
	}
	n := float64(len(answers))
	scores := make([]float64, len(sums))
	for i, s := range sums {
		scores[i] = round1(s / n * 20)
	}
	return scores
}

// abilityValues orders the six radar facets of one score set to match
// radarDimensions.
func abilityValues(s interview.RubricScores) []float64 {
	return []float64{
		s.ProfessionalKnowledge,
		s.SkillMatching,
		s.Communication,
		s.LogicalThinking,
		s.Innovation,
		s.StressHandling,
	}
}

// knowledgeDistribution counts knowledge-point occurrences across all
// answers in first-appearance order, keeping the dataset stable across
// calls.
func knowledgeDistribution(answers []interview.Answer) []PiePoint {
	counts := make(map[string]int)
	var order []string
	for _, a := range answers {
		for _, p := range a.KnowledgePoints {
			if _, seen := counts[p]; !seen {
				order = append(order, p)
			}
			counts[p]++
		}
	}
	points := make([]PiePoint, 0, len(order))
	for _, p := range order {
		points = append(points, PiePoint{Label: p, Value: counts[p]})
	}
	return points
}

// knowledgeMastery computes per-point mean(correctness / 5) in
// first-appearance order.
func knowledgeMastery(answers []interview.Answer) ([]string, []float64) {
	type agg struct {
		total float64
		count int
	}
	sums := make(map[string]*agg)
	var order []string
	for _, a := range answers {
		for _, p := range a.KnowledgePoints {
			s, seen := sums[p]
			if !seen {
				s = &agg{}
				sums[p] = s
				order = append(order, p)
			}
			s.total += a.Scores.Correctness
			s.count++
		}
	}
	labels := make([]string, 0, len(order))
	accuracy := make([]float64, 0, len(order))
	for _, p := range order {
		s := sums[p]
		labels = append(labels, p)
		accuracy = append(accuracy, round2(s.total/(float64(s.count)*5)))
	}
	return labels, accuracy
}

// scoreTrend groups answers by creation date and averages the six ability
// dimensions per day, rescaled to the percentile scale.
func scoreTrend(answers []interview.Answer) Trend {
	type agg struct {
		total float64
		count int
	}
	days := make(map[string]*agg)
	var order []string
	for _, a := range answers {
		date := a.CreatedAt.Format("2006-01-02")
		d, seen := days[date]
		if !seen {
			d = &agg{}
			days[date] = d
			order = append(order, date)
		}
		d.total += mean(abilityValues(a.Scores))
		d.count++
	}
	sort.Strings(order)

	t := Trend{
		Dates:  make([]string, 0, len(order)),
		Scores: make([]float64, 0, len(order)),
	}
	for _, date := range order {
		d := days[date]
		t.Dates = append(t.Dates, date)
		t.Scores = append(t.Scores, round1(d.total/float64(d.count)*20))
	}
	return t
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range vs {
		total += v
	}
	return total / float64(len(vs))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
