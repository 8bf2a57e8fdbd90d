// Package planner builds the interview's question queue and selects its
// coding problems.
//
// The question planner prefers an LLM-generated plan assembled from the
// position details and the résumé, bounded by a hard deadline; past the
// deadline or on any failure it falls back to a deterministic per-position
// template so session start never blocks on a vendor. The coding planner
// scores the problem bank against position type, résumé-derived difficulty,
// and tag/company overlap.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mianlab/koushi/internal/interview"
	"github.com/mianlab/koushi/internal/observe"
	"github.com/mianlab/koushi/pkg/llm"
)

const (
	// Question count bounds for the generated plan.
	minQuestions = 8
	maxQuestions = 10

	// maxKnowledgePoints caps the tags attached to one question.
	maxKnowledgePoints = 6

	defaultDeadline = 5 * time.Second
)

// Position carries the job-position fields the planner prompts with.
type Position struct {
	Name         string
	Company      string
	Description  string
	Requirements string
	Type         interview.PositionType
}

// QuestionPlanner produces the ordered question queue at session start.
type QuestionPlanner struct {
	provider llm.Provider // nil means fallback-only
	deadline time.Duration
	metrics  *observe.Metrics
	log      *slog.Logger
}

// Option is a functional option for configuring the QuestionPlanner.
type Option func(*QuestionPlanner)

// WithDeadline bounds the LLM planning call. Default 5 s.
func WithDeadline(d time.Duration) Option {
	return func(p *QuestionPlanner) {
		if d > 0 {
			p.deadline = d
		}
	}
}

// WithMetrics attaches the instrument set used to count fallback plans.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *QuestionPlanner) { p.metrics = m }
}

// NewQuestionPlanner returns a planner backed by provider. A nil provider is
// valid and always plans via the deterministic fallback.
func NewQuestionPlanner(provider llm.Provider, opts ...Option) *QuestionPlanner {
	p := &QuestionPlanner{
		provider: provider,
		deadline: defaultDeadline,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Plan returns the ordered question queue for the given position and résumé,
// every question tagged with knowledge points. Plan never fails: any LLM
// problem, including the deadline, degrades to the fallback plan.
func (p *QuestionPlanner) Plan(ctx context.Context, pos Position, resume interview.Resume) []interview.PlannedQuestion {
	questions := p.planQuestions(ctx, pos, resume)
	planned := make([]interview.PlannedQuestion, 0, len(questions))
	for _, q := range questions {
		planned = append(planned, interview.PlannedQuestion{
			Question:        q,
			KnowledgePoints: p.tagQuestion(ctx, pos.Type, q),
		})
	}
	return planned
}

func (p *QuestionPlanner) planQuestions(ctx context.Context, pos Position, resume interview.Resume) []string {
	if p.provider == nil {
		return p.fallback(ctx, pos.Type, resume)
	}

	ctx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	resp, err := p.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: planSystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildPlanPrompt(pos, resume)},
		},
		Temperature: 0.7,
	})
	if err != nil || resp == nil {
		p.log.Warn("question planning fell back to template", "position_type", pos.Type, "error", err)
		return p.fallback(ctx, pos.Type, resume)
	}

	questions := ParseNumberedList(resp.Content)
	if len(questions) < minQuestions {
		p.log.Warn("question planning produced too few items, using template",
			"position_type", pos.Type, "items", len(questions))
		return p.fallback(ctx, pos.Type, resume)
	}
	if len(questions) > maxQuestions {
		questions = questions[:maxQuestions]
	}
	return questions
}

func (p *QuestionPlanner) fallback(ctx context.Context, t interview.PositionType, resume interview.Resume) []string {
	if p.metrics != nil {
		p.metrics.PlannerFallbacks.Add(context.WithoutCancel(ctx), 1)
	}
	return FallbackQuestions(t, resume)
}

// tagQuestion annotates one question with 3–6 knowledge points, substituting
// the position-type default set when generation fails.
func (p *QuestionPlanner) tagQuestion(ctx context.Context, t interview.PositionType, question string) []string {
	if p.provider == nil {
		return DefaultKnowledgePoints(t)
	}

	ctx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	resp, err := p.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildTagPrompt(question)},
		},
		Temperature: 0.3,
	})
	if err != nil || resp == nil {
		return DefaultKnowledgePoints(t)
	}

	points := ParseBulletList(resp.Content)
	if len(points) == 0 {
		return DefaultKnowledgePoints(t)
	}
	if len(points) > maxKnowledgePoints {
		points = points[:maxKnowledgePoints]
	}
	return points
}

const planSystemPrompt = "你是一名资深技术面试官，请根据候选人的简历和目标岗位生成面试问题。" +
	"只输出编号的问题列表，每行一个问题，不要输出任何其他内容。"

func buildPlanPrompt(pos Position, resume interview.Resume) string {
	var b strings.Builder
	fmt.Fprintf(&b, "目标岗位：%s", pos.Name)
	if pos.Company != "" {
		fmt.Fprintf(&b, "（%s）", pos.Company)
	}
	fmt.Fprintf(&b, "，岗位类型：%s。\n", pos.Type)
	if pos.Description != "" {
		fmt.Fprintf(&b, "岗位描述：%s\n", pos.Description)
	}
	if pos.Requirements != "" {
		fmt.Fprintf(&b, "岗位要求：%s\n", pos.Requirements)
	}
	if resume.ExpectedPosition != "" {
		fmt.Fprintf(&b, "候选人期望岗位：%s\n", resume.ExpectedPosition)
	}
	for _, w := range resume.Work {
		fmt.Fprintf(&b, "工作经历：%s %s：%s\n", w.Company, w.Position, w.Content)
	}
	for _, pr := range resume.Projects {
		fmt.Fprintf(&b, "项目经历：%s（%s）：%s\n", pr.Name, pr.Role, pr.Content)
	}
	fmt.Fprintf(&b, "\n请生成 %d 到 %d 个针对性的技术面试问题，按编号列出。", minQuestions, maxQuestions)
	return b.String()
}

func buildTagPrompt(question string) string {
	return fmt.Sprintf("列出下面这个面试问题考察的 3 到 6 个知识点，每行一个，只输出知识点本身：\n%s", question)
}
