package planner

import (
	"strings"

	"github.com/mianlab/koushi/internal/interview"
)

// maxFallbackQuestions caps the deterministic plan.
const maxFallbackQuestions = 8

// coreQuestions is the fixed opening block per position type.
var coreQuestions = map[interview.PositionType][]string{
	interview.PositionBackend: {
		"请介绍一下你的技术背景和主要技能。",
		"请讲讲你对常见数据库索引原理的理解。",
		"服务端如何处理高并发请求？请结合你的经验说明。",
	},
	interview.PositionFrontend: {
		"请介绍一下你的技术背景和主要技能。",
		"谈谈浏览器从输入网址到页面展示的完整过程。",
		"你是如何做前端性能优化的？",
	},
	interview.PositionAlgo: {
		"请介绍一下你的技术背景和主要技能。",
		"请讲讲你最熟悉的一类机器学习模型及其原理。",
		"如何评估一个模型在线上环境的效果？",
	},
	interview.PositionPM: {
		"请介绍一下你的产品方法论。",
		"讲一个你主导过的需求，从发现问题到上线的全过程。",
		"你如何对需求做优先级排序？",
	},
	interview.PositionQA: {
		"请介绍一下你的测试体系经验。",
		"针对一个登录功能，你会如何设计测试用例？",
		"谈谈你对自动化测试分层策略的理解。",
	},
	interview.PositionData: {
		"请介绍一下你的技术背景和主要技能。",
		"谈谈你设计过的数据仓库分层方案。",
		"如何保证数据管道的准确性和时效性？",
	},
	interview.PositionOther: {
		"请介绍一下你的技术背景和主要技能。",
		"讲一个你解决过的最有挑战的技术问题。",
	},
}

// skillQuestions adds one question when the résumé mentions the keyword.
var skillQuestions = []struct {
	keyword  string
	question string
}{
	{"java", "请谈谈你对 JVM 内存模型和垃圾回收机制的理解。"},
	{"go", "请谈谈 Go 的 goroutine 调度模型以及 channel 的使用场景。"},
	{"python", "请谈谈 Python 的 GIL 对并发程序的影响以及常见规避手段。"},
	{"mysql", "请讲讲 MySQL 事务隔离级别以及各自解决的问题。"},
	{"redis", "请谈谈 Redis 的持久化机制和常见缓存问题的应对。"},
	{"react", "请谈谈 React 的渲染机制和常见的性能优化手段。"},
	{"vue", "请谈谈 Vue 的响应式原理。"},
	{"docker", "请谈谈容器与虚拟机的区别以及你在项目中的容器化实践。"},
	{"kubernetes", "请谈谈 Kubernetes 的基本架构和你用到过的资源对象。"},
}

// projectQuestion is asked when the résumé lists any project experience.
const projectQuestion = "请选择简历中你最有代表性的一个项目，讲讲你的职责、技术难点和最终效果。"

// closingQuestions always end the fallback plan.
var closingQuestions = []string{
	"你在学习新技术时通常采用什么方法？",
	"你对未来三年的职业规划是什么？",
}

// FallbackQuestions builds the deterministic question plan: the position
// type's core block, skill-keyword additions from the résumé, a project
// question when projects exist, and two closing questions, capped at 8.
func FallbackQuestions(t interview.PositionType, resume interview.Resume) []string {
	core, ok := coreQuestions[t]
	if !ok {
		core = coreQuestions[interview.PositionOther]
	}
	questions := make([]string, 0, maxFallbackQuestions)
	questions = append(questions, core...)

	text := resumeText(resume)
	budget := maxFallbackQuestions - len(closingQuestions)
	for _, sq := range skillQuestions {
		if len(questions) >= budget {
			break
		}
		if strings.Contains(text, sq.keyword) {
			questions = append(questions, sq.question)
		}
	}
	if len(resume.Projects) > 0 && len(questions) < budget {
		questions = append(questions, projectQuestion)
	}

	questions = append(questions, closingQuestions...)
	if len(questions) > maxFallbackQuestions {
		questions = questions[:maxFallbackQuestions]
	}
	return questions
}

// resumeText lowercases the résumé's free text for keyword matching.
func resumeText(r interview.Resume) string {
	var b strings.Builder
	b.WriteString(r.ExpectedPosition)
	for _, w := range r.Work {
		b.WriteString(" ")
		b.WriteString(w.Position)
		b.WriteString(" ")
		b.WriteString(w.Content)
	}
	for _, p := range r.Projects {
		b.WriteString(" ")
		b.WriteString(p.Content)
	}
	return strings.ToLower(b.String())
}

// defaultKnowledgePoints is the substitute tag set per position type when
// knowledge-point generation fails.
var defaultKnowledgePoints = map[interview.PositionType][]string{
	interview.PositionBackend:  {"编程基础", "数据库", "网络协议", "系统设计"},
	interview.PositionFrontend: {"JavaScript", "浏览器原理", "工程化", "性能优化"},
	interview.PositionAlgo:     {"机器学习", "数学基础", "模型评估", "工程实现"},
	interview.PositionPM:       {"需求分析", "产品设计", "数据分析", "项目管理"},
	interview.PositionQA:       {"测试设计", "自动化测试", "质量体系", "缺陷管理"},
	interview.PositionData:     {"数据仓库", "SQL", "数据管道", "数据质量"},
	interview.PositionOther:    {"专业基础", "问题解决", "沟通协作"},
}

// DefaultKnowledgePoints returns the position type's substitute tag set.
func DefaultKnowledgePoints(t interview.PositionType) []string {
	points, ok := defaultKnowledgePoints[t]
	if !ok {
		points = defaultKnowledgePoints[interview.PositionOther]
	}
	out := make([]string, len(points))
	copy(out, points)
	return out
}
