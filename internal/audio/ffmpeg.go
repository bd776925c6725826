// Package audio shells out to ffmpeg for the audio assembly the synthesis
// service does not perform itself.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Assembler concatenates and inspects audio files with ffmpeg/ffprobe.
type Assembler struct {
	binary string
	probe  string
}

// NewAssembler returns an assembler using the given ffmpeg binary name. The
// matching ffprobe binary is derived from it.
func NewAssembler(binary string) *Assembler {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &Assembler{binary: binary, probe: probeBinary(binary)}
}

func probeBinary(ffmpeg string) string {
	if strings.HasSuffix(ffmpeg, "ffmpeg") {
		return strings.TrimSuffix(ffmpeg, "ffmpeg") + "ffprobe"
	}
	return "ffprobe"
}

// Concat joins the input audio files into a single output file, re-encoding
// so inputs with mismatched codecs or sample rates still merge cleanly.
func (a *Assembler) Concat(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return errors.New("no input files to concatenate")
	}
	for _, input := range inputs {
		if _, err := os.Stat(input); err != nil {
			return fmt.Errorf("input %s: %w", input, err)
		}
	}

	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	var filter strings.Builder
	for i, input := range inputs {
		args = append(args, "-i", input)
		fmt.Fprintf(&filter, "[%d:a]", i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=0:a=1[out]", len(inputs))
	args = append(args, "-filter_complex", filter.String(), "-map", "[out]", output)

	cmd := exec.CommandContext(ctx, a.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("ffmpeg concat: %s", detail)
		}
		return fmt.Errorf("ffmpeg concat: %w", err)
	}
	return nil
}

// Duration probes the playback length of an audio file in seconds.
func (a *Assembler) Duration(ctx context.Context, path string) (float64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}

	cmd := exec.CommandContext(ctx, a.probe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return 0, fmt.Errorf("ffprobe: %s", detail)
		}
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe output %q: %w", stdout.String(), err)
	}
	return seconds, nil
}
