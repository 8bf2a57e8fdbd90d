package planner_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/mianlab/koushi/internal/interview"
	"github.com/mianlab/koushi/internal/planner"
	"github.com/mianlab/koushi/internal/store"
)

func seedProblems(t *testing.T, ps []interview.CodingProblem) *store.MemStore {
	t.Helper()
	st := store.NewMemStore()
	if err := st.UpsertProblems(context.Background(), ps); err != nil {
		t.Fatalf("UpsertProblems: %v", err)
	}
	return st
}

func TestPreferredDifficultyMapping(t *testing.T) {
	tests := []struct {
		work, projects int
		want           interview.Difficulty
	}{
		{0, 0, interview.DifficultyEasy},
		{1, 0, interview.DifficultyMedium},
		{1, 1, interview.DifficultyMedium},
		{2, 1, interview.DifficultyHard},
		{0, 5, interview.DifficultyHard},
	}
	for _, tt := range tests {
		r := interview.Resume{
			Work:     make([]interview.WorkExperience, tt.work),
			Projects: make([]interview.ProjectExperience, tt.projects),
		}
		if got := r.PreferredDifficulty(); got != tt.want {
			t.Errorf("%d work + %d projects: difficulty = %v, want %v",
				tt.work, tt.projects, got, tt.want)
		}
	}
}

func TestSelectFiltersAndRanks(t *testing.T) {
	st := seedProblems(t, []interview.CodingProblem{
		{
			Number: 1, Title: "匹配题", Description: "d", Difficulty: interview.DifficultyMedium,
			Tags:          []string{"哈希表", "字符串"},
			Companies:     []string{"甲公司"},
			PositionTypes: []interview.PositionType{interview.PositionBackend},
			Examples:      []interview.ProblemExample{{Input: "i", Output: "o"}},
		},
		{
			Number: 2, Title: "无关题", Description: "d", Difficulty: interview.DifficultyMedium,
			Tags:          []string{"几何"},
			PositionTypes: []interview.PositionType{interview.PositionBackend},
			Examples:      []interview.ProblemExample{{Input: "i", Output: "o"}},
		},
		{
			Number: 3, Title: "前端题", Description: "d", Difficulty: interview.DifficultyMedium,
			Tags:          []string{"哈希表"},
			PositionTypes: []interview.PositionType{interview.PositionFrontend},
			Examples:      []interview.ProblemExample{{Input: "i", Output: "o"}},
		},
		{
			Number: 4, Title: "难度不符", Description: "d", Difficulty: interview.DifficultyHard,
			Tags:          []string{"哈希表", "字符串", "设计"},
			PositionTypes: []interview.PositionType{interview.PositionBackend},
			Examples:      []interview.ProblemExample{{Input: "i", Output: "o"}},
		},
	})

	resume := interview.Resume{
		// One experience → medium preferred.
		Work: []interview.WorkExperience{{Company: "甲公司", Content: "后端开发"}},
	}

	p := planner.NewCodingPlannerWithRand(st, rand.New(rand.NewSource(1)))
	got, err := p.Select(context.Background(), interview.PositionBackend, resume, 2)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("selected %d problems, want 2", len(got))
	}

	// Problem 1 scores 2 tag overlaps (+20) and a company overlap (+20);
	// problem 2 scores 0. Jitter is < 5 so problem 1 must rank first.
	if got[0].Number != 1 {
		t.Fatalf("top problem = %d, want 1", got[0].Number)
	}
	for _, sel := range got {
		if sel.Number == 3 {
			t.Fatal("frontend-only problem selected for a backend interview")
		}
		if sel.Number == 4 {
			t.Fatal("hard problem selected despite medium preference")
		}
	}
}

func TestSelectFallsBackToAllPositions(t *testing.T) {
	st := seedProblems(t, []interview.CodingProblem{
		{
			Number: 1, Title: "t", Description: "d", Difficulty: interview.DifficultyEasy,
			PositionTypes: []interview.PositionType{interview.PositionFrontend},
			Examples:      []interview.ProblemExample{{Input: "i", Output: "o"}},
		},
	})

	p := planner.NewCodingPlannerWithRand(st, rand.New(rand.NewSource(1)))
	got, err := p.Select(context.Background(), interview.PositionPM, interview.Resume{}, 3)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("empty position filter must fall back to the whole bank, got %d", len(got))
	}
}

func TestSelectKeywordTags(t *testing.T) {
	st := seedProblems(t, []interview.CodingProblem{
		{
			Number: 1, Title: "OO 题", Description: "d", Difficulty: interview.DifficultyEasy,
			Tags:     []string{"面向对象"},
			Examples: []interview.ProblemExample{{Input: "i", Output: "o"}},
		},
		{
			Number: 2, Title: "几何题", Description: "d", Difficulty: interview.DifficultyEasy,
			Tags:     []string{"几何"},
			Examples: []interview.ProblemExample{{Input: "i", Output: "o"}},
		},
	})

	resume := interview.Resume{ExpectedPosition: "Java 后端"}
	p := planner.NewCodingPlannerWithRand(st, rand.New(rand.NewSource(7)))
	got, err := p.Select(context.Background(), interview.PositionOther, resume, 1)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 1 || got[0].Number != 1 {
		t.Fatalf("java keyword should prefer the 面向对象 problem, got %+v", got)
	}
}

func TestSelectLimits(t *testing.T) {
	st := seedProblems(t, []interview.CodingProblem{
		{Number: 1, Title: "t", Description: "d", Difficulty: interview.DifficultyEasy,
			Examples: []interview.ProblemExample{{Input: "i", Output: "o"}}},
	})
	p := planner.NewCodingPlanner(st)

	if got, err := p.Select(context.Background(), interview.PositionOther, interview.Resume{}, 0); err != nil || got != nil {
		t.Fatalf("limit 0 should return nothing, got %v, %v", got, err)
	}
	got, err := p.Select(context.Background(), interview.PositionOther, interview.Resume{}, 10)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("limit beyond bank size should return all, got %d", len(got))
	}
}
