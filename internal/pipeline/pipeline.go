// Package pipeline defines the typed stage ports an item runs through and the
// StageError every stage failure is reported as.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/maauso/shortsgen-api/internal/style"
)

// Stage names one step of an item's pipeline.
type Stage string

// Stages in execution order.
const (
	StageAcquire      Stage = "acquire"
	StageProbe        Stage = "probe"
	StageTranscribe   Stage = "transcribe"
	StageFindSegments Stage = "find_segments"
	StageCut          Stage = "cut"
	StageRetranscribe Stage = "retranscribe"
	StageCaption      Stage = "caption"
	StageRender       Stage = "render"
	StagePublish      Stage = "publish"
)

// Stage error kinds.
const (
	KindFailed   = "failed"
	KindTimeout  = "timeout"
	KindCanceled = "canceled"
	KindEmpty    = "empty"
	KindPanic    = "panic"
)

// StageError is a failure scoped to one stage of one item.
type StageError struct {
	Stage  Stage
	Kind   string
	Detail string
	Err    error
}

func (e *StageError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("stage %s: %s: %s", e.Stage, e.Kind, e.Detail)
	}
	return fmt.Sprintf("stage %s: %s", e.Stage, e.Kind)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Fail wraps err as a failure of stage. A *StageError already carrying a
// stage is returned unchanged; context errors get the timeout or canceled kind.
func Fail(stage Stage, err error) *StageError {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		if se.Stage == "" {
			se.Stage = stage
		}
		return se
	}

	kind := KindFailed
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, context.Canceled):
		kind = KindCanceled
	}
	return &StageError{Stage: stage, Kind: kind, Detail: err.Error(), Err: err}
}

// Word is one recognized word with its timing in seconds.
type Word struct {
	Text  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Transcript is the word-level output of speech recognition.
type Transcript struct {
	Language string `json:"language,omitempty"`
	Text     string `json:"text"`
	Words    []Word `json:"words"`
}

// Duration returns the end time of the last word.
func (t Transcript) Duration() float64 {
	if len(t.Words) == 0 {
		return 0
	}
	return t.Words[len(t.Words)-1].End
}

// Segment is a span of the source chosen to become one clip.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Title string  `json:"title"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// SegmentRequest asks the segment finder for up to Count clips.
type SegmentRequest struct {
	MediaPath    string
	Transcript   Transcript
	Count        int
	MinDuration  float64
	MaxDuration  float64
	Instructions string
}

// RenderRequest describes the final burn of one clip.
type RenderRequest struct {
	Input       string
	Output      string
	Subtitles   string
	AspectRatio string
	Title       string
	Header      string
	Watermark   string
}

// Acquirer fetches an item's source media into dst.
type Acquirer interface {
	Fetch(ctx context.Context, locator, dst string) error
}

// Transcriber produces word timings for a media file.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath string) (Transcript, error)
}

// SegmentFinder picks the spans of a transcript worth turning into clips.
type SegmentFinder interface {
	FindSegments(ctx context.Context, req SegmentRequest) ([]Segment, error)
}

// Cutter extracts one segment of src into dst.
type Cutter interface {
	Cut(ctx context.Context, src, dst string, seg Segment) error
}

// Captioner writes a styled subtitle file for a transcript.
type Captioner interface {
	Caption(ctx context.Context, t Transcript, cfg style.Config, dst string) error
}

// Renderer burns captions and overlays into a clip.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) error
}

// Publisher stores a finished clip under key and returns its locator.
type Publisher interface {
	Publish(ctx context.Context, key, src, contentType string) (string, error)
}

// Prober reports the duration of a media file in seconds.
type Prober interface {
	GetMediaDuration(ctx context.Context, path string) (float64, error)
}

// Stages bundles the adapters an item processor drives.
type Stages struct {
	Acquire    Acquirer
	Probe      Prober
	Transcribe Transcriber
	Segments   SegmentFinder
	Cut        Cutter
	Caption    Captioner
	Render     Renderer
	Publish    Publisher
}

// Validate reports the first missing adapter.
func (s Stages) Validate() error {
	missing := func(name string) error {
		return fmt.Errorf("pipeline: %s stage not configured", name)
	}
	switch {
	case s.Acquire == nil:
		return missing(string(StageAcquire))
	case s.Probe == nil:
		return missing(string(StageProbe))
	case s.Transcribe == nil:
		return missing(string(StageTranscribe))
	case s.Segments == nil:
		return missing(string(StageFindSegments))
	case s.Cut == nil:
		return missing(string(StageCut))
	case s.Caption == nil:
		return missing(string(StageCaption))
	case s.Render == nil:
		return missing(string(StageRender))
	case s.Publish == nil:
		return missing(string(StagePublish))
	}
	return nil
}
