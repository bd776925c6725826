package textutil_test

import (
	"testing"

	"dubcast/internal/textutil"
)

func TestParseSpeakerLines(t *testing.T) {
	text := "[SPEAKER00] Hello there.\nA narration line without a tag.\n  [SPEAKER01]   Spaced out reply.  \n[speaker02] lowercase is not a tag\n[SPEAKER00]"

	lines := textutil.ParseSpeakerLines(text)
	if len(lines) != 3 {
		t.Fatalf("expected 3 tagged lines, got %d: %#v", len(lines), lines)
	}
	if lines[0].Tag != "SPEAKER00" || lines[0].Text != "Hello there." {
		t.Fatalf("unexpected first line: %#v", lines[0])
	}
	if lines[1].Tag != "SPEAKER01" || lines[1].Text != "Spaced out reply." {
		t.Fatalf("expected surrounding whitespace trimmed: %#v", lines[1])
	}
	if lines[2].Tag != "SPEAKER00" || lines[2].Text != "" {
		t.Fatalf("expected empty utterance preserved: %#v", lines[2])
	}
}

func TestDistinctTags(t *testing.T) {
	lines := []textutil.SpeakerLine{
		{Tag: "SPEAKER01"},
		{Tag: "SPEAKER00"},
		{Tag: "SPEAKER01"},
		{Tag: "SPEAKER02"},
	}
	tags := textutil.DistinctTags(lines)
	want := []string{"SPEAKER01", "SPEAKER00", "SPEAKER02"}
	if len(tags) != len(want) {
		t.Fatalf("expected %v, got %v", want, tags)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, tags)
		}
	}
}

func TestNormalize(t *testing.T) {
	in := "  first line  \n\n\n\nsecond line\n   \nthird line\n\n"
	want := "first line\n\nsecond line\n\nthird line"
	if got := textutil.Normalize(in); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestTrim(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"this one is definitely too long", 12, "this one is..."},
		{"unbounded stays whole", 0, "unbounded stays whole"},
	}
	for _, tc := range cases {
		if got := textutil.Trim(tc.in, tc.max); got != tc.want {
			t.Fatalf("Trim(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestSanitizeBaseName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Morning Show Episode 4", "Morning_Show_Episode_4"},
		{"Café França!", "Cafe_Franca"},
		{"///", "job"},
		{"", "job"},
		{"trailing dots...", "trailing_dots"},
	}
	for _, tc := range cases {
		if got := textutil.SanitizeBaseName(tc.in); got != tc.want {
			t.Fatalf("SanitizeBaseName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
