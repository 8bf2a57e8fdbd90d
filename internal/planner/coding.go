package planner

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/mianlab/koushi/internal/interview"
	"github.com/mianlab/koushi/internal/store"
)

// Candidate scoring weights.
const (
	tagOverlapScore     = 10
	companyOverlapScore = 20
	jitterMax           = 5.0
)

// baselineTags is the tag preference set per position type.
var baselineTags = map[interview.PositionType][]string{
	interview.PositionBackend:  {"哈希表", "字符串", "设计", "数据库"},
	interview.PositionFrontend: {"字符串", "数组", "模拟"},
	interview.PositionAlgo:     {"动态规划", "图", "数学", "二分查找"},
	interview.PositionPM:       {"模拟", "数组"},
	interview.PositionQA:       {"字符串", "模拟"},
	interview.PositionData:     {"数组", "排序", "哈希表"},
	interview.PositionOther:    {"数组", "字符串"},
}

// keywordTags maps keywords of the résumé's expected position to extra tag
// preferences.
var keywordTags = []struct {
	keyword string
	tags    []string
}{
	{"java", []string{"面向对象", "Java"}},
	{"go", []string{"并发", "Go"}},
	{"python", []string{"Python", "数据处理"}},
	{"c++", []string{"指针", "内存管理"}},
	{"算法", []string{"动态规划", "贪心"}},
	{"数据", []string{"SQL", "排序"}},
	{"前端", []string{"字符串", "树"}},
}

// CodingPlanner selects the coding-phase problems from the bank.
type CodingPlanner struct {
	problems store.ProblemStore
	rng      *rand.Rand // nil uses the package-level source
}

// NewCodingPlanner returns a planner reading candidates from st.
func NewCodingPlanner(st store.ProblemStore) *CodingPlanner {
	return &CodingPlanner{problems: st}
}

// NewCodingPlannerWithRand returns a planner with a caller-supplied random
// source, for deterministic tests.
func NewCodingPlannerWithRand(st store.ProblemStore, rng *rand.Rand) *CodingPlanner {
	return &CodingPlanner{problems: st, rng: rng}
}

// Select returns up to limit problems for the position, ranked by preference:
// position-type applicability, résumé-derived difficulty, then a score of
// +10 per tag overlap, +20 per company overlap with the résumé's work
// experiences, plus uniform jitter in [0, 5).
func (p *CodingPlanner) Select(ctx context.Context, t interview.PositionType, resume interview.Resume, limit int) ([]interview.CodingProblem, error) {
	if limit <= 0 {
		return nil, nil
	}
	all, err := p.problems.ListProblems(ctx)
	if err != nil {
		return nil, fmt.Errorf("planner: list problems: %w", err)
	}
	if len(all) == 0 {
		return nil, nil
	}

	candidates := filterByPosition(all, t)
	candidates = filterByDifficulty(candidates, resume.PreferredDifficulty())

	prefTags := preferredTags(t, resume)
	companies := resumeCompanies(resume)

	type scored struct {
		problem interview.CodingProblem
		score   float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		s := float64(tagOverlapScore*overlap(c.Tags, prefTags) +
			companyOverlapScore*overlap(c.Companies, companies))
		s += p.jitter()
		ranked = append(ranked, scored{problem: c, score: s})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if limit > len(ranked) {
		limit = len(ranked)
	}
	out := make([]interview.CodingProblem, 0, limit)
	for _, r := range ranked[:limit] {
		out = append(out, r.problem)
	}
	return out, nil
}

func (p *CodingPlanner) jitter() float64 {
	if p.rng != nil {
		return p.rng.Float64() * jitterMax
	}
	return rand.Float64() * jitterMax
}

// filterByPosition keeps problems applicable to t; when none apply, the
// whole bank is the candidate set.
func filterByPosition(all []interview.CodingProblem, t interview.PositionType) []interview.CodingProblem {
	var out []interview.CodingProblem
	for _, p := range all {
		if p.AppliesTo(t) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return all
	}
	return out
}

// filterByDifficulty keeps problems of the preferred difficulty, unless that
// would empty the candidate set.
func filterByDifficulty(candidates []interview.CodingProblem, d interview.Difficulty) []interview.CodingProblem {
	var out []interview.CodingProblem
	for _, p := range candidates {
		if p.Difficulty == d {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return candidates
	}
	return out
}

// preferredTags is the position baseline union the résumé's keyword-derived
// tags.
func preferredTags(t interview.PositionType, resume interview.Resume) []string {
	base, ok := baselineTags[t]
	if !ok {
		base = baselineTags[interview.PositionOther]
	}
	seen := make(map[string]bool, len(base))
	out := make([]string, 0, len(base))
	for _, tag := range base {
		seen[tag] = true
		out = append(out, tag)
	}
	expected := strings.ToLower(resume.ExpectedPosition)
	for _, kt := range keywordTags {
		if !strings.Contains(expected, kt.keyword) {
			continue
		}
		for _, tag := range kt.tags {
			if !seen[tag] {
				seen[tag] = true
				out = append(out, tag)
			}
		}
	}
	return out
}

func resumeCompanies(resume interview.Resume) []string {
	out := make([]string, 0, len(resume.Work))
	for _, w := range resume.Work {
		if w.Company != "" {
			out = append(out, w.Company)
		}
	}
	return out
}

// overlap counts how many elements of a are also in b.
func overlap(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(b))
	for _, s := range b {
		set[s] = true
	}
	n := 0
	for _, s := range a {
		if set[s] {
			n++
		}
	}
	return n
}
