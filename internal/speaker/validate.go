package speaker

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"dubcast/internal/services"
)

// DecodePayload parses a caller-supplied speaker configuration payload.
// Malformed JSON or entries missing a speaker tag are rejected.
func DecodePayload(raw []byte) ([]Config, error) {
	var configs []Config
	if err := json.Unmarshal(raw, &configs); err != nil {
		return nil, services.Wrap(services.ErrSpeakerInput, "speakers", "decode", "malformed speaker configuration payload", err)
	}
	for i := range configs {
		configs[i].Tag = strings.TrimSpace(configs[i].Tag)
		if configs[i].Tag == "" {
			return nil, services.Wrap(services.ErrSpeakerInput, "speakers", "decode",
				fmt.Sprintf("speaker configuration %d is missing a speaker_tag", i), nil)
		}
	}
	return configs, nil
}

// Validate checks that the supplied configs cover exactly the detected tag
// set: no missing tags, no unknown tags, no duplicates.
func Validate(configs []Config, detected []string) error {
	supplied := make(map[string]struct{}, len(configs))
	for _, cfg := range configs {
		if _, dup := supplied[cfg.Tag]; dup {
			return services.Wrap(services.ErrSpeakerInput, "speakers", "validate",
				fmt.Sprintf("duplicate configuration for %s", cfg.Tag), nil)
		}
		supplied[cfg.Tag] = struct{}{}
	}

	expected := make(map[string]struct{}, len(detected))
	for _, tag := range detected {
		expected[tag] = struct{}{}
	}

	var missing, unknown []string
	for tag := range expected {
		if _, ok := supplied[tag]; !ok {
			missing = append(missing, tag)
		}
	}
	for tag := range supplied {
		if _, ok := expected[tag]; !ok {
			unknown = append(unknown, tag)
		}
	}
	sort.Strings(missing)
	sort.Strings(unknown)

	if len(missing) > 0 {
		return services.Wrap(services.ErrSpeakerInput, "speakers", "validate",
			"missing configuration for "+strings.Join(missing, ", "), nil)
	}
	if len(unknown) > 0 {
		return services.Wrap(services.ErrSpeakerInput, "speakers", "validate",
			"unknown speaker tag "+strings.Join(unknown, ", "), nil)
	}
	return nil
}
