// Package media cuts, renders and probes video with the ffmpeg CLI.
package media

import (
	"context"

	"github.com/maauso/shortsgen-api/internal/pipeline"
)

// Processor defines the video operations the pipeline needs.
type Processor interface {
	// Cut re-encodes the [seg.Start, seg.End) span of src into dst.
	Cut(ctx context.Context, src, dst string, seg pipeline.Segment) error

	// Render reframes a clip to the requested aspect ratio and burns the
	// title, header, watermark and subtitle file into it.
	Render(ctx context.Context, req pipeline.RenderRequest) error

	// GetMediaDuration returns the duration in seconds of a media file.
	GetMediaDuration(ctx context.Context, path string) (float64, error)
}
