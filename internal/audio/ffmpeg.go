package audio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrInputNotFound is returned when the source file does not exist.
var ErrInputNotFound = errors.New("audio: input file does not exist")

// Verify interface implementation at compile time.
var (
	_ Extractor       = (*FFmpeg)(nil)
	_ SilenceDetector = (*FFmpeg)(nil)
)

// FFmpeg implements Extractor and SilenceDetector using the ffmpeg CLI.
type FFmpeg struct {
	ffmpegPath string
}

// NewFFmpeg creates a new FFmpeg audio tool.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpeg(ffmpegPath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpeg{ffmpegPath: ffmpegPath}
}

// ExtractWav writes the first audio stream of src to dst as mono 16 kHz PCM WAV.
func (f *FFmpeg) ExtractWav(ctx context.Context, src, dst string) error {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrInputNotFound, src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	args := []string{
		"-y",
		"-i", src,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dst,
	}

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg error: %w, stderr: %s", err, stderr.String())
	}
	return nil
}

// DetectSilences runs ffmpeg silencedetect over path.
func (f *FFmpeg) DetectSilences(ctx context.Context, path string, opts SilenceOpts) ([]Silence, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
	}

	filter := fmt.Sprintf("silencedetect=noise=%ddB:d=%f",
		int(opts.ThreshDB),
		float64(opts.MinSilenceMs)/1000.0,
	)

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, f.ffmpegPath,
		"-i", path,
		"-vn",
		"-af", filter,
		"-f", "null",
		"-hide_banner",
		"-",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// ffmpeg writes silencedetect output to stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("ffmpeg error: %w, stderr: %s", err, stderr.String())
	}

	return parseSilenceOutput(stderr.String())
}

// parseSilenceOutput parses silencedetect log lines. A trailing
// silence_start without a matching end is dropped.
func parseSilenceOutput(output string) ([]Silence, error) {
	var silences []Silence
	scanner := bufio.NewScanner(strings.NewReader(output))

	var currentStart float64
	hasStart := false

	for scanner.Scan() {
		line := scanner.Text()

		if v, ok := valueAfter(line, "silence_start:"); ok {
			currentStart = v
			hasStart = true
		}

		if v, ok := valueAfter(line, "silence_end:"); ok && hasStart {
			silences = append(silences, Silence{Start: currentStart, End: v})
			hasStart = false
		}
	}

	return silences, scanner.Err()
}

func valueAfter(line, marker string) (float64, bool) {
	_, rest, ok := strings.Cut(line, marker)
	if !ok {
		return 0, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
