package evaluator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mianlab/koushi/internal/interview"
	"github.com/mianlab/koushi/pkg/llm"
)

// commentDeadline bounds each comment generation. The numeric datasets are
// already computed; a slow model only delays prose.
const commentDeadline = 10 * time.Second

// ask runs one blocking completion and returns the trimmed text, or "" on
// any failure.
func (e *Evaluator) ask(ctx context.Context, prompt string) string {
	if e.provider == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, commentDeadline)
	defer cancel()

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: 0.7,
	})
	if err != nil {
		e.log.Warn("comment generation failed", "error", err)
		return ""
	}
	if resp == nil {
		return ""
	}
	return strings.TrimSpace(resp.Content)
}

// radarComment comments on the strongest and weakest ability dimensions.
func (e *Evaluator) radarComment(ctx context.Context, scores []float64) string {
	maxIdx, minIdx := extrema(scores)
	prompt := fmt.Sprintf(`请根据以下面试能力评估数据，生成一句简短的点评：

各维度得分：
%s: %.1f分（最高）
%s: %.1f分（最低）

要求：
1. 评论要简短精炼，不超过30个字
2. 突出优势，指出改进方向
3. 语气要积极专业`,
		radarDimensions[maxIdx], scores[maxIdx],
		radarDimensions[minIdx], scores[minIdx])

	if c := e.ask(ctx, prompt); c != "" {
		return c
	}
	return fmt.Sprintf("%s表现突出，%s方面需加强。", radarDimensions[maxIdx], radarDimensions[minIdx])
}

// pieComment comments on how evenly the questions covered the knowledge
// points.
func (e *Evaluator) pieComment(ctx context.Context, points []PiePoint) string {
	if len(points) == 0 {
		return "暂无足够数据评估知识点分布。"
	}
	most, least := points[0], points[0]
	for _, p := range points[1:] {
		if p.Value > most.Value {
			most = p
		}
		if p.Value < least.Value {
			least = p
		}
	}
	prompt := fmt.Sprintf(`请根据以下知识点分布数据，生成一句简短的点评：

知识点分布：
%s: %d次（最多）
%s: %d次（最少）

要求：
1. 评论要简短精炼，不超过30个字
2. 评价分布是否均衡
3. 给出针对性建议`,
		most.Label, most.Value, least.Label, least.Value)

	if c := e.ask(ctx, prompt); c != "" {
		return c
	}
	return fmt.Sprintf("题目分布较均衡，建议重点巩固%s模块。", most.Label)
}

// barComment comments on the best and worst mastered knowledge points.
func (e *Evaluator) barComment(ctx context.Context, labels []string, accuracy []float64) string {
	if len(labels) == 0 {
		return "暂无足够数据评估知识点掌握情况。"
	}
	maxIdx, minIdx := extrema(accuracy)
	prompt := fmt.Sprintf(`请根据以下知识点掌握情况，生成一句简短的点评：

知识点掌握度：
%s: %.0f%%（最高）
%s: %.0f%%（最低）

要求：
1. 评论要简短精炼，不超过30个字
2. 肯定优势，指出提升空间
3. 语气要积极专业`,
		labels[maxIdx], accuracy[maxIdx]*100,
		labels[minIdx], accuracy[minIdx]*100)

	if c := e.ask(ctx, prompt); c != "" {
		return c
	}
	return fmt.Sprintf("%s掌握扎实，%s模块有待提高。", labels[maxIdx], labels[minIdx])
}

// Deterministic fallbacks for the closing summary.
const (
	fallbackStar      = "S: 遇到系统设计题；T: 需要高并发分析；A: 正确使用缓存和分布式锁；R: 得到面试官好评。"
	fallbackTechnical = "系统设计能力进步明显，表达清晰。"
)

// summary produces the STAR narrative and the one-line technical summary.
func (e *Evaluator) summary(ctx context.Context, iv interview.Interview, answers []interview.Answer, overall float64, points []PiePoint) Summary {
	labels := make([]string, 0, len(points))
	for _, p := range points {
		labels = append(labels, p.Label)
	}
	topics := strings.Join(labels, "、")

	starPrompt := fmt.Sprintf(`请根据以下面试信息，生成一个简短的STAR结构总结：

面试岗位：%s
面试表现：总分%.1f分
涉及知识点：%s

要求：
1. 使用STAR结构（情境、任务、行动、结果）
2. 每个部分简短精炼
3. 突出技术亮点
4. 总字数不超过100字`, iv.PositionName, overall, topics)

	lastAnswer := ""
	if len(answers) > 0 {
		lastAnswer = answers[len(answers)-1].Text
	}
	techPrompt := fmt.Sprintf(`请根据以下面试信息，生成一句技术能力总结：

面试岗位：%s
最近一次答案：%s
涉及知识点：%s

要求：
1. 总结要简短精炼，不超过30个字
2. 突出技术特点和进步
3. 语气要积极专业`, iv.PositionName, lastAnswer, topics)

	s := Summary{
		StarStructure:    e.ask(ctx, starPrompt),
		TechnicalSummary: e.ask(ctx, techPrompt),
	}
	if s.StarStructure == "" {
		s.StarStructure = fallbackStar
	}
	if s.TechnicalSummary == "" {
		s.TechnicalSummary = fallbackTechnical
	}
	return s
}

// overviewComment summarises a user's completed interviews.
func (e *Evaluator) overviewComment(ctx context.Context, rows []InterviewOverall, meanScore float64) string {
	best := rows[0]
	for _, r := range rows[1:] {
		if r.Score > best.Score {
			best = r
		}
	}
	prompt := fmt.Sprintf(`请根据以下面试数据，生成一句简短的总体评价：

完成面试场数：%d
平均总分：%.1f
最佳表现：%s（%.1f分）

要求：
1. 评价要简短精炼，不超过50个字
2. 突出进步和优势
3. 给出改进建议
4. 语气要积极专业`, len(rows), meanScore, best.PositionName, best.Score)

	if c := e.ask(ctx, prompt); c != "" {
		return c
	}
	return fmt.Sprintf("共完成%d场面试，平均%.1f分，%s方向表现最佳，继续保持。",
		len(rows), meanScore, best.PositionName)
}

// extrema returns the indices of the maximum and minimum values. First
// occurrence wins ties.
func extrema(vs []float64) (maxIdx, minIdx int) {
	for i, v := range vs {
		if v > vs[maxIdx] {
			maxIdx = i
		}
		if v < vs[minIdx] {
			minIdx = i
		}
	}
	return maxIdx, minIdx
}
