package speaker

import (
	"dubcast/internal/textutil"
)

// MinExcerptLength is the minimum rune count for an utterance to serve as a
// voice reference excerpt. Shorter lines carry too little voice character.
const MinExcerptLength = 10

// maxExcerptLength bounds reference excerpts so synthesis prompts stay small.
const maxExcerptLength = 160

// DefaultInstruction is the voice instruction placeholder emitted for derived
// profiles. Callers replace it when real voice direction is supplied.
const DefaultInstruction = "Natural conversational voice"

// Config describes the voice profile for one speaker tag.
type Config struct {
	Tag         string `json:"speaker_tag"`
	RefText     string `json:"ref_text"`
	Instruction string `json:"instruction"`
	Language    string `json:"language"`
}

// Derive scans the polished dialogue text and returns one default profile per
// distinct speaker tag, ordered by first appearance. The reference excerpt is
// the speaker's first utterance of at least MinExcerptLength runes, falling
// back to their longest utterance. Text without tags yields an empty slice,
// the degenerate single-narrator case.
func Derive(text, language string) []Config {
	lines := textutil.ParseSpeakerLines(text)
	if len(lines) == 0 {
		return nil
	}

	tags := textutil.DistinctTags(lines)
	configs := make([]Config, 0, len(tags))
	for _, tag := range tags {
		configs = append(configs, Config{
			Tag:         tag,
			RefText:     textutil.Trim(referenceExcerpt(lines, tag), maxExcerptLength),
			Instruction: DefaultInstruction,
			Language:    language,
		})
	}
	return configs
}

// Tags returns the distinct speaker tags of the dialogue text in order of
// first appearance.
func Tags(text string) []string {
	return textutil.DistinctTags(textutil.ParseSpeakerLines(text))
}

func referenceExcerpt(lines []textutil.SpeakerLine, tag string) string {
	longest := ""
	for _, line := range lines {
		if line.Tag != tag {
			continue
		}
		if len([]rune(line.Text)) >= MinExcerptLength {
			return line.Text
		}
		if len(line.Text) > len(longest) {
			longest = line.Text
		}
	}
	return longest
}
