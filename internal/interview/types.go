// Package interview defines the domain model for the koushi interview server.
//
// The types here are shared by the stores (internal/store), the planners
// (internal/planner), the orchestrator (internal/orchestrator), the scorer
// (internal/scorer), and the evaluator (internal/evaluator). They carry both
// JSON tags (HTTP and socket payloads) and no persistence logic; storage
// lives behind the interfaces in internal/store.
package interview

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the stage a live interview session is in. Transitions are strictly
// monotone: Intro → Question → Code → Finished, never backwards.
type Phase string

const (
	// PhaseIntro covers the scripted self-introduction at session start.
	PhaseIntro Phase = "intro"

	// PhaseQuestion covers the adaptive Q&A over the planned question queue.
	PhaseQuestion Phase = "question"

	// PhaseCode covers the coding problems served after the last question.
	PhaseCode Phase = "code"

	// PhaseFinished is terminal. No events mutate session state afterwards.
	PhaseFinished Phase = "finished"
)

// phaseOrder assigns each phase its position in the monotone progression.
var phaseOrder = map[Phase]int{
	PhaseIntro:    0,
	PhaseQuestion: 1,
	PhaseCode:     2,
	PhaseFinished: 3,
}

// IsValid reports whether p is a recognised phase.
func (p Phase) IsValid() bool {
	_, ok := phaseOrder[p]
	return ok
}

// CanAdvanceTo reports whether moving from p to next respects the monotone
// phase ordering. Staying in place is allowed; going backwards is not.
func (p Phase) CanAdvanceTo(next Phase) bool {
	a, okA := phaseOrder[p]
	b, okB := phaseOrder[next]
	return okA && okB && b >= a
}

// PositionType classifies the job position an interview targets. It selects
// the fallback question template and the coding-problem tag baseline.
type PositionType string

const (
	PositionBackend  PositionType = "backend"
	PositionFrontend PositionType = "frontend"
	PositionAlgo     PositionType = "algo"
	PositionPM       PositionType = "pm"
	PositionQA       PositionType = "qa"
	PositionData     PositionType = "data"
	PositionOther    PositionType = "other"
)

// IsValid reports whether t is a recognised position type.
func (t PositionType) IsValid() bool {
	switch t {
	case PositionBackend, PositionFrontend, PositionAlgo, PositionPM,
		PositionQA, PositionData, PositionOther:
		return true
	}
	return false
}

// NormalizePositionType maps free-form position type strings onto the known
// set, defaulting to PositionOther.
func NormalizePositionType(s string) PositionType {
	t := PositionType(s)
	if t.IsValid() {
		return t
	}
	return PositionOther
}

// PlannedQuestion is one entry of an interview's question queue.
type PlannedQuestion struct {
	// Question is the full question text, in the interview language.
	Question string `json:"question"`

	// KnowledgePoints tags the question with 3–6 topical labels. The tags
	// feed the evaluation report's knowledge-point distribution.
	KnowledgePoints []string `json:"knowledge_points"`
}

// Interview is a scheduled interview tied to a user, a résumé, and a job
// position. The question queue is populated once at creation (or lazily on
// first connect if creation left it empty) and its length is fixed for the
// lifetime of any session running against it.
type Interview struct {
	// ID is the interview's database identity.
	ID int64 `json:"id"`

	// UserID is the owning candidate. Sessions may only be opened by this user.
	UserID int64 `json:"user_id"`

	// ResumeID references the résumé the planners read.
	ResumeID int64 `json:"resume_id"`

	// PositionName is the display name of the targeted job position.
	PositionName string `json:"position_name"`

	// CompanyName is the hiring company, may be empty.
	CompanyName string `json:"company_name"`

	// PositionDescription is the free-text description of the position.
	PositionDescription string `json:"position_description,omitempty"`

	// PositionRequirements lists the position's stated requirements.
	PositionRequirements string `json:"position_requirements,omitempty"`

	// PositionType classifies the position for planning purposes.
	PositionType PositionType `json:"position_type"`

	// Questions is the ordered question queue with knowledge-point tags.
	Questions []PlannedQuestion `json:"questions"`

	// InterviewAt is the scheduled interview time.
	InterviewAt time.Time `json:"interview_time"`

	// Completed is set when a session reaches the finished phase.
	Completed bool `json:"completed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NeutralScore is the default per-dimension rubric score. Answers keep it
// whenever scoring fails or a dimension is missing from the model output.
const NeutralScore = 3.0

// RubricScores holds the seven scored facets of one answer, each in [0, 5].
type RubricScores struct {
	ProfessionalKnowledge float64 `json:"professional_knowledge"`
	SkillMatching         float64 `json:"skill_matching"`
	Communication         float64 `json:"communication"`
	LogicalThinking       float64 `json:"logical_thinking"`
	Innovation            float64 `json:"innovation"`
	StressHandling        float64 `json:"stress_handling"`
	Correctness           float64 `json:"correctness"`
}

// NeutralRubric returns scores with every dimension set to NeutralScore.
func NeutralRubric() RubricScores {
	return RubricScores{
		ProfessionalKnowledge: NeutralScore,
		SkillMatching:         NeutralScore,
		Communication:         NeutralScore,
		LogicalThinking:       NeutralScore,
		Innovation:            NeutralScore,
		StressHandling:        NeutralScore,
		Correctness:           NeutralScore,
	}
}

// Clamp returns a copy of s with every dimension forced into [0, 5].
func (s RubricScores) Clamp() RubricScores {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 5 {
			return 5
		}
		return v
	}
	return RubricScores{
		ProfessionalKnowledge: clamp(s.ProfessionalKnowledge),
		SkillMatching:         clamp(s.SkillMatching),
		Communication:         clamp(s.Communication),
		LogicalThinking:       clamp(s.LogicalThinking),
		Innovation:            clamp(s.Innovation),
		StressHandling:        clamp(s.StressHandling),
		Correctness:           clamp(s.Correctness),
	}
}

// Answer is the persisted record of one answered question. Created exactly
// once per (interview, question index); the scorer later fills Scores and
// Analysis exactly once.
type Answer struct {
	// ID identifies the answer record.
	ID uuid.UUID `json:"id"`

	// InterviewID is the owning interview.
	InterviewID int64 `json:"interview_id"`

	// QuestionIndex is the zero-based position in the question queue. The
	// (InterviewID, QuestionIndex) pair is unique.
	QuestionIndex int `json:"question_index"`

	// Question is the question text as asked.
	Question string `json:"question"`

	// Text is the candidate's final answer text (transcribed or typed).
	Text string `json:"answer"`

	// KnowledgePoints are the tags of the answered question.
	KnowledgePoints []string `json:"knowledge_points"`

	// ClipPath is the muxed audio/video clip path, empty when muxing failed
	// or no media arrived.
	ClipPath string `json:"clip_path,omitempty"`

	// Scores holds the rubric scores, NeutralRubric until scoring ran.
	Scores RubricScores `json:"scores"`

	// Analysis is the scorer's rationale text, or a note recording why
	// scoring was skipped or failed.
	Analysis string `json:"analysis,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Difficulty grades a coding problem.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// IsValid reports whether d is a recognised difficulty.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// ProblemExample is one worked example attached to a coding problem.
type ProblemExample struct {
	Input       string `json:"input" yaml:"input"`
	Output      string `json:"output" yaml:"output"`
	Explanation string `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// CodingProblem is one entry of the coding-problem bank. Immutable within a
// session.
type CodingProblem struct {
	// ID identifies the problem in the bank.
	ID int64 `json:"id" yaml:"id"`

	// Number is the display number shown to the candidate.
	Number int `json:"number" yaml:"number"`

	// Title is the short problem title.
	Title string `json:"title" yaml:"title"`

	// Description is the full problem statement.
	Description string `json:"description" yaml:"description"`

	// Difficulty grades the problem.
	Difficulty Difficulty `json:"difficulty" yaml:"difficulty"`

	// Tags label the techniques the problem exercises.
	Tags []string `json:"tags" yaml:"tags,omitempty"`

	// Companies lists companies known to ask this problem.
	Companies []string `json:"companies,omitempty" yaml:"companies,omitempty"`

	// PositionTypes restricts which position types the problem applies to.
	// Empty means all.
	PositionTypes []PositionType `json:"position_types,omitempty" yaml:"position_types,omitempty"`

	// Examples are the worked examples, in display order.
	Examples []ProblemExample `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// AppliesTo reports whether the problem is applicable to the given position
// type. Problems without position restrictions apply to every position.
func (p CodingProblem) AppliesTo(t PositionType) bool {
	if len(p.PositionTypes) == 0 {
		return true
	}
	for _, pt := range p.PositionTypes {
		if pt == t {
			return true
		}
	}
	return false
}

// CodingAnswer is the persisted submission for one coding problem. At most
// one per (interview, problem).
type CodingAnswer struct {
	ID          uuid.UUID `json:"id"`
	InterviewID int64     `json:"interview_id"`
	ProblemID   int64     `json:"problem_id"`
	Code        string    `json:"code"`
	Language    string    `json:"language"`
	CreatedAt   time.Time `json:"created_at"`
}

// WorkExperience is one work or internship entry of a résumé.
type WorkExperience struct {
	Company    string `json:"company_name"`
	Position   string `json:"position,omitempty"`
	Content    string `json:"work_content,omitempty"`
	Internship bool   `json:"is_internship,omitempty"`
}

// ProjectExperience is one project entry of a résumé.
type ProjectExperience struct {
	Name    string `json:"project_name"`
	Role    string `json:"project_role,omitempty"`
	Content string `json:"project_content,omitempty"`
}

// Resume carries the résumé fields the planners read. Résumé CRUD itself is
// out of scope; this is the read-side projection.
type Resume struct {
	// ID is the résumé's database identity.
	ID int64 `json:"id"`

	// UserID is the résumé owner.
	UserID int64 `json:"user_id"`

	// Name is the candidate's name as written on the résumé.
	Name string `json:"name"`

	// ExpectedPosition is the free-text position the candidate targets.
	// Keyword matching against it drives coding-problem tag preferences.
	ExpectedPosition string `json:"expected_position,omitempty"`

	// EducationLevel is the highest stated education level.
	EducationLevel string `json:"education_level,omitempty"`

	// Work lists work and internship experiences.
	Work []WorkExperience `json:"work_experiences,omitempty"`

	// Projects lists project experiences.
	Projects []ProjectExperience `json:"project_experiences,omitempty"`
}

// ExperienceCount is the combined number of work and project experiences.
// It drives the coding planner's difficulty preference.
func (r Resume) ExperienceCount() int {
	return len(r.Work) + len(r.Projects)
}

// PreferredDifficulty maps experience volume to a problem difficulty:
// no experience prefers easy, one or two entries prefer medium, more prefer
// hard.
func (r Resume) PreferredDifficulty() Difficulty {
	switch n := r.ExperienceCount(); {
	case n == 0:
		return DifficultyEasy
	case n <= 2:
		return DifficultyMedium
	default:
		return DifficultyHard
	}
}
