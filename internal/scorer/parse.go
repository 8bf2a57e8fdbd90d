package scorer

import (
	"strconv"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/mianlab/koushi/internal/interview"
)

// fuzzyLabelDistance is the maximum Levenshtein distance at which a response
// label is still resolved to a canonical dimension. Models occasionally drop
// or swap a character in the dimension name.
const fuzzyLabelDistance = 2

// ParseScores extracts per-dimension rubric scores from an LLM grading
// response. Expected line shape:
//
//	<维度名称>：<分数>分。理由：<理由>
//
// Lines that do not resolve to a dimension are skipped; dimensions never
// mentioned keep the neutral 3.0 default. The second return value reports
// how many of the seven dimensions were parsed.
func ParseScores(response string) (interview.RubricScores, int) {
	scores := interview.NeutralRubric()
	parsed := 0

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• \t")
		line = strings.ReplaceAll(line, "**", "")
		if line == "" {
			continue
		}

		label, rest, ok := splitLabel(line)
		if !ok {
			continue
		}
		dim, ok := resolveDimension(label)
		if !ok {
			continue
		}
		score, ok := parseScoreValue(rest)
		if !ok {
			continue
		}
		if setDimension(&scores, dim, score) {
			parsed++
		}
	}

	return scores.Clamp(), parsed
}

// splitLabel cuts a response line at the first colon, fullwidth or ASCII.
func splitLabel(line string) (label, rest string, ok bool) {
	idx := strings.IndexAny(line, "：:")
	if idx < 0 {
		return "", "", false
	}
	sep := 1
	if strings.HasPrefix(line[idx:], "：") {
		sep = len("：")
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+sep:]), true
}

// resolveDimension maps a response label to a canonical dimension name,
// tolerating small spelling drift via Levenshtein distance.
func resolveDimension(label string) (string, bool) {
	for _, dim := range dimensionOrder {
		if label == dim {
			return dim, true
		}
	}
	best, bestDist := "", fuzzyLabelDistance+1
	for _, dim := range dimensionOrder {
		if d := matchr.Levenshtein(label, dim); d < bestDist {
			best, bestDist = dim, d
		}
	}
	if bestDist > fuzzyLabelDistance {
		return "", false
	}
	return best, true
}

// parseScoreValue reads the numeric score from the text following the colon,
// e.g. "4分。理由：..." or "4.5 分" or a bare "4".
func parseScoreValue(rest string) (float64, bool) {
	end := 0
	for end < len(rest) {
		c := rest[end]
		if (c >= '0' && c <= '9') || c == '.' {
			end++
			continue
		}
		break
	}
	if end == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(rest[:end], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// setDimension writes score into the field matching dim.
func setDimension(s *interview.RubricScores, dim string, score float64) bool {
	switch dim {
	case DimProfessionalKnowledge:
		s.ProfessionalKnowledge = score
	case DimSkillMatching:
		s.SkillMatching = score
	case DimCommunication:
		s.Communication = score
	case DimLogicalThinking:
		s.LogicalThinking = score
	case DimInnovation:
		s.Innovation = score
	case DimStressHandling:
		s.StressHandling = score
	case DimCorrectness:
		s.Correctness = score
	default:
		return false
	}
	return true
}
