package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/maauso/shortsgen-api/internal/pipeline"
)

// Static errors for media operations.
var (
	// ErrInvalidSegment is returned when a segment does not have a positive length.
	ErrInvalidSegment = errors.New("invalid segment: end must be after start")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrInputNotFound is returned when the source file does not exist.
	ErrInputNotFound = errors.New("input file does not exist")
)

// compile-time interface checks
var (
	_ Processor         = (*FFmpegProcessor)(nil)
	_ pipeline.Cutter   = (*FFmpegProcessor)(nil)
	_ pipeline.Renderer = (*FFmpegProcessor)(nil)
	_ pipeline.Prober   = (*FFmpegProcessor)(nil)
)

// FFmpegProcessor implements Processor using the ffmpeg CLI.
type FFmpegProcessor struct {
	ffmpegPath  string
	ffprobePath string
	videoCodec  string
	frameBase   int
	fontFile    string
}

// Option configures an FFmpegProcessor.
type Option func(*FFmpegProcessor)

// WithFFprobePath sets the ffprobe binary. Defaults to "ffprobe".
func WithFFprobePath(path string) Option {
	return func(p *FFmpegProcessor) {
		if path != "" {
			p.ffprobePath = path
		}
	}
}

// WithVideoCodec sets the H.264 encoder (libx264 or h264_nvenc).
func WithVideoCodec(codec string) Option {
	return func(p *FFmpegProcessor) {
		if codec != "" {
			p.videoCodec = codec
		}
	}
}

// WithFrameBase sets the length of the shorter output side when reframing.
// Defaults to 1080.
func WithFrameBase(px int) Option {
	return func(p *FFmpegProcessor) {
		if px > 0 {
			p.frameBase = px
		}
	}
}

// WithFontFile sets the font used for the drawtext overlays.
func WithFontFile(path string) Option {
	return func(p *FFmpegProcessor) {
		p.fontFile = path
	}
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegProcessor(ffmpegPath string, opts ...Option) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	p := &FFmpegProcessor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: "ffprobe",
		videoCodec:  "libx264",
		frameBase:   1080,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Cut implements Processor.Cut. Seeking happens before decoding; the output
// is re-encoded so the cut is frame accurate.
func (p *FFmpegProcessor) Cut(ctx context.Context, src, dst string, seg pipeline.Segment) error {
	if seg.End <= seg.Start || seg.Start < 0 {
		return fmt.Errorf("%w: start=%.3f end=%.3f", ErrInvalidSegment, seg.Start, seg.End)
	}
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrInputNotFound, src)
	}

	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", seg.Start),
		"-i", src,
		"-t", fmt.Sprintf("%.3f", seg.Duration()),
	}
	args = append(args, encoderArgs(p.videoCodec)...)
	args = append(args,
		"-c:a", "aac",
		"-b:a", "128k",
		"-pix_fmt", "yuv420p",
		dst,
	)

	return p.runFFmpeg(ctx, args)
}

// Render implements Processor.Render.
func (p *FFmpegProcessor) Render(ctx context.Context, req pipeline.RenderRequest) error {
	if _, err := os.Stat(req.Input); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrInputNotFound, req.Input)
	}
	if req.Subtitles != "" {
		if _, err := os.Stat(req.Subtitles); os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrInputNotFound, req.Subtitles)
		}
	}

	graph, err := buildRenderFilter(req, p.frameBase, p.fontFile)
	if err != nil {
		return err
	}

	args := []string{
		"-y",
		"-i", req.Input,
		"-filter_complex", graph,
		"-map", "[out]",
		"-map", "0:a?",
	}
	args = append(args, encoderArgs(p.videoCodec)...)
	args = append(args,
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		req.Output,
	)

	return p.runFFmpeg(ctx, args)
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (p *FFmpegProcessor) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, tail(e.Stderr, 2048))
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// tail keeps the last n bytes of s; ffmpeg prints the actual failure last.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// GetMediaDuration returns the duration in seconds of a media file.
// It uses ffprobe to extract the duration metadata.
func (p *FFmpegProcessor) GetMediaDuration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	var duration float64
	_, err = fmt.Sscanf(strings.TrimSpace(stdout.String()), "%f", &duration)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}

	return duration, nil
}
