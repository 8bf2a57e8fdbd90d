package planner

import (
	"strings"
	"unicode"
)

// ParseNumberedList extracts the items of a newline-delimited numbered list,
// stripping ordinal markers ("1.", "2、", "（3）", "Q4:") and surrounding
// whitespace. Lines without content after stripping are dropped.
func ParseNumberedList(s string) []string {
	var items []string
	for _, line := range strings.Split(s, "\n") {
		item := stripOrdinal(strings.TrimSpace(line))
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// ParseBulletList extracts the items of a bullet or numbered list, stripping
// leading bullet markers ("-", "*", "•") or ordinals.
func ParseBulletList(s string) []string {
	var items []string
	for _, line := range strings.Split(s, "\n") {
		item := strings.TrimSpace(line)
		item = strings.TrimLeft(item, "-*•·")
		item = stripOrdinal(strings.TrimSpace(item))
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// stripOrdinal removes a leading ordinal marker: optional letter prefix
// ("Q"), digits (ASCII or fullwidth), and a trailing separator. Parenthesised
// ordinals like （3） are handled too.
func stripOrdinal(s string) string {
	r := []rune(s)
	i := 0

	// Optional opening bracket of a parenthesised ordinal.
	if i < len(r) && (r[i] == '(' || r[i] == '（') {
		i++
	}
	// Optional single letter prefix, as in "Q1".
	if i < len(r) && unicode.IsLetter(r[i]) && r[i] < 0x2E80 {
		i++
	}

	start := i
	for i < len(r) && isDigitRune(r[i]) {
		i++
	}
	if i == start {
		// No digits: not an ordinal, return unchanged.
		return s
	}

	// Separator after the number.
	for i < len(r) {
		switch r[i] {
		case '.', '、', '：', ':', ')', '）', '，', ',':
			i++
			continue
		}
		break
	}
	return strings.TrimSpace(string(r[i:]))
}

func isDigitRune(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= '０' && r <= '９')
}
