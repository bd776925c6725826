package textutil

import (
	"regexp"
	"strings"
)

// speakerLineRE matches a dialogue line opened by a bracketed speaker tag.
var speakerLineRE = regexp.MustCompile(`^\[(SPEAKER\d+)\]\s*(.*)$`)

// SpeakerLine is one tagged utterance extracted from a dialogue document.
type SpeakerLine struct {
	Tag  string
	Text string
}

// ParseSpeakerLines scans text line by line and returns the tagged utterances
// in document order. Untagged lines are skipped.
func ParseSpeakerLines(text string) []SpeakerLine {
	var lines []SpeakerLine
	for _, raw := range strings.Split(text, "\n") {
		match := speakerLineRE.FindStringSubmatch(strings.TrimSpace(raw))
		if match == nil {
			continue
		}
		lines = append(lines, SpeakerLine{
			Tag:  match[1],
			Text: strings.TrimSpace(match[2]),
		})
	}
	return lines
}

// DistinctTags returns the distinct speaker tags in order of first appearance.
func DistinctTags(lines []SpeakerLine) []string {
	seen := make(map[string]struct{}, 4)
	var tags []string
	for _, line := range lines {
		if _, ok := seen[line.Tag]; ok {
			continue
		}
		seen[line.Tag] = struct{}{}
		tags = append(tags, line.Tag)
	}
	return tags
}

// Normalize collapses runs of blank lines and trims surrounding whitespace
// from each line, preserving line structure otherwise.
func Normalize(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, trimmed)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

// Trim shortens text to at most max runes, appending an ellipsis when cut.
func Trim(text string, max int) string {
	text = strings.TrimSpace(text)
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return strings.TrimSpace(string(runes[:max])) + "..."
}
