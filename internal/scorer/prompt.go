package scorer

import (
	"fmt"
	"strings"

	"github.com/mianlab/koushi/internal/interview"
)

// The seven canonical rubric dimension labels, in response order.
const (
	DimProfessionalKnowledge = "专业知识"
	DimSkillMatching         = "技能匹配"
	DimCommunication         = "语言表达"
	DimLogicalThinking       = "逻辑思维"
	DimInnovation            = "创新能力"
	DimStressHandling        = "应变抗压"
	DimCorrectness           = "回答正确性"
)

// dimensionOrder fixes the label order used in prompts and expected in
// responses.
var dimensionOrder = []string{
	DimProfessionalKnowledge,
	DimSkillMatching,
	DimCommunication,
	DimLogicalThinking,
	DimInnovation,
	DimStressHandling,
	DimCorrectness,
}

// dimensionAnchors gives each dimension a 1–5 anchor definition the model
// grades against.
var dimensionAnchors = map[string]string{
	DimProfessionalKnowledge: "1分：概念错误频出；3分：掌握基础概念但缺乏深度；5分：概念准确且能深入原理。",
	DimSkillMatching:         "1分：回答与岗位技能无关；3分：部分覆盖岗位所需技能；5分：技能与岗位要求高度吻合。",
	DimCommunication:         "1分：表达混乱难以理解；3分：表达基本清楚但有冗余；5分：表达流畅、结构清晰。",
	DimLogicalThinking:       "1分：论述无条理；3分：有基本的因果推理；5分：层层递进、论证严密。",
	DimInnovation:            "1分：仅复述常识；3分：有一定独立思考；5分：提出新颖且可行的见解。",
	DimStressHandling:        "1分：遇到追问明显慌乱；3分：能稳定作答；5分：面对压力从容且应对得当。",
	DimCorrectness:           "1分：答案基本错误；3分：答案部分正确；5分：答案完整且准确。",
}

// scoringSystemPrompt instructs the model on persona and output format.
const scoringSystemPrompt = `你是一位资深的技术面试官，负责对候选人的口头回答进行多维度评分。
请严格按照给定的评分格式输出，每个维度单独一行，格式为：
<维度名称>：<分数>分。理由：<一句话理由>
分数为 0 到 5 之间的数字，可以带一位小数。不要输出任何其他内容。`

// BuildScoringPrompt composes the user message for grading one answer.
// Knowledge points steer the model toward what the question was probing.
func BuildScoringPrompt(a interview.Answer) string {
	var b strings.Builder
	b.WriteString("请对以下面试回答进行评分。\n\n")
	fmt.Fprintf(&b, "面试问题：%s\n", a.Question)
	if len(a.KnowledgePoints) > 0 {
		fmt.Fprintf(&b, "考察知识点：%s\n", strings.Join(a.KnowledgePoints, "、"))
	}
	fmt.Fprintf(&b, "候选人回答：%s\n\n", a.Text)

	b.WriteString("评分维度及标准：\n")
	for _, dim := range dimensionOrder {
		fmt.Fprintf(&b, "- %s：%s\n", dim, dimensionAnchors[dim])
	}
	b.WriteString("\n请按照规定格式逐一输出七个维度的评分。")
	return b.String()
}
