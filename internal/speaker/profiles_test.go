package speaker_test

import (
	"errors"
	"strings"
	"testing"

	"dubcast/internal/services"
	"dubcast/internal/speaker"
)

const dialogue = `[SPEAKER00] Hi.
[SPEAKER01] Welcome back to the show, it is great to have you here today.
[SPEAKER00] Thanks for having me again, always a pleasure to talk.
[SPEAKER02] Ok.
[SPEAKER02] Sure!
`

func TestDeriveOrdersByFirstAppearance(t *testing.T) {
	configs := speaker.Derive(dialogue, "Chinese")
	if len(configs) != 3 {
		t.Fatalf("expected 3 profiles, got %d", len(configs))
	}
	want := []string{"SPEAKER00", "SPEAKER01", "SPEAKER02"}
	for i, cfg := range configs {
		if cfg.Tag != want[i] {
			t.Fatalf("expected tag order %v, got %s at %d", want, cfg.Tag, i)
		}
		if cfg.Instruction != speaker.DefaultInstruction {
			t.Fatalf("expected default instruction, got %q", cfg.Instruction)
		}
		if cfg.Language != "Chinese" {
			t.Fatalf("expected language carried through, got %q", cfg.Language)
		}
	}
}

func TestDeriveSkipsShortUtterancesForExcerpt(t *testing.T) {
	configs := speaker.Derive(dialogue, "Chinese")

	// SPEAKER00's first line "Hi." is below the minimum; the next long
	// utterance must be chosen.
	if got := configs[0].RefText; !strings.HasPrefix(got, "Thanks for having me") {
		t.Fatalf("expected second utterance as excerpt, got %q", got)
	}
	// SPEAKER01's first line already qualifies.
	if got := configs[1].RefText; !strings.HasPrefix(got, "Welcome back") {
		t.Fatalf("expected first utterance as excerpt, got %q", got)
	}
	// SPEAKER02 never reaches the minimum; the longest line wins.
	if got := configs[2].RefText; got != "Sure!" {
		t.Fatalf("expected longest short utterance, got %q", got)
	}
}

func TestDeriveWithoutTagsReturnsEmpty(t *testing.T) {
	configs := speaker.Derive("Plain narration without any speaker markers.", "Chinese")
	if len(configs) != 0 {
		t.Fatalf("expected no profiles for untagged text, got %d", len(configs))
	}
}

func TestTags(t *testing.T) {
	tags := speaker.Tags(dialogue)
	want := []string{"SPEAKER00", "SPEAKER01", "SPEAKER02"}
	if len(tags) != len(want) {
		t.Fatalf("expected %v, got %v", want, tags)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, tags)
		}
	}
}

func TestDecodePayloadRejectsMalformedJSON(t *testing.T) {
	_, err := speaker.DecodePayload([]byte(`{"not": "a list"`))
	if !errors.Is(err, services.ErrSpeakerInput) {
		t.Fatalf("expected speaker input error, got %v", err)
	}
}

func TestDecodePayloadRejectsMissingTag(t *testing.T) {
	_, err := speaker.DecodePayload([]byte(`[{"speaker_tag": "  ", "ref_text": "hello"}]`))
	if !errors.Is(err, services.ErrSpeakerInput) {
		t.Fatalf("expected speaker input error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	detected := []string{"SPEAKER00", "SPEAKER01"}
	cases := []struct {
		name    string
		configs []speaker.Config
		wantErr string
	}{
		{
			name: "exact match",
			configs: []speaker.Config{
				{Tag: "SPEAKER01"},
				{Tag: "SPEAKER00"},
			},
		},
		{
			name: "missing tag",
			configs: []speaker.Config{
				{Tag: "SPEAKER00"},
			},
			wantErr: "missing configuration for SPEAKER01",
		},
		{
			name: "unknown tag",
			configs: []speaker.Config{
				{Tag: "SPEAKER00"},
				{Tag: "SPEAKER01"},
				{Tag: "SPEAKER09"},
			},
			wantErr: "unknown speaker tag SPEAKER09",
		},
		{
			name: "duplicate tag",
			configs: []speaker.Config{
				{Tag: "SPEAKER00"},
				{Tag: "SPEAKER00"},
				{Tag: "SPEAKER01"},
			},
			wantErr: "duplicate configuration for SPEAKER00",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := speaker.Validate(tc.configs, detected)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid configs, got %v", err)
				}
				return
			}
			if !errors.Is(err, services.ErrSpeakerInput) {
				t.Fatalf("expected speaker input error, got %v", err)
			}
			if got := services.Details(err).Message; got != tc.wantErr {
				t.Fatalf("expected message %q, got %q", tc.wantErr, got)
			}
		})
	}
}
