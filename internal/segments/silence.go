package segments

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/shortsgen-api/internal/audio"
	"github.com/maauso/shortsgen-api/internal/pipeline"
)

// compile-time interface check
var _ pipeline.SegmentFinder = (*SilenceFinder)(nil)

// SilenceFinder splits the source into consecutive spans that end on a pause
// near the middle of the allowed duration window.
type SilenceFinder struct {
	detector audio.SilenceDetector
	opts     audio.SilenceOpts
	logger   *slog.Logger
}

// NewSilenceFinder creates a SilenceFinder. A nil logger uses slog.Default().
func NewSilenceFinder(detector audio.SilenceDetector, opts audio.SilenceOpts, logger *slog.Logger) *SilenceFinder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SilenceFinder{
		detector: detector,
		opts:     opts,
		logger:   logger,
	}
}

// FindSegments implements pipeline.SegmentFinder.
func (f *SilenceFinder) FindSegments(ctx context.Context, req pipeline.SegmentRequest) ([]pipeline.Segment, error) {
	total := req.Transcript.Duration()
	if total <= 0 {
		return normalize(nil, req)
	}

	silences, err := f.detector.DetectSilences(ctx, req.MediaPath, f.opts)
	if err != nil {
		return nil, fmt.Errorf("detect silences: %w", err)
	}

	spans := splitOnSilence(silences, total, req.MinDuration, req.MaxDuration)
	for i := range spans {
		spans[i].Title = titleFor(req.Transcript, spans[i], 6)
	}

	f.logger.Debug("silence segments",
		slog.Int("silences", len(silences)),
		slog.Int("spans", len(spans)),
		slog.Float64("total_sec", total),
	)

	return normalize(spans, req)
}

// splitOnSilence walks from 0 to total, ending each span on the pause closest
// to the middle of [min, max] or hard at max when there is none. A tail
// shorter than min is dropped.
func splitOnSilence(silences []audio.Silence, total, minDur, maxDur float64) []pipeline.Segment {
	if maxDur <= 0 || maxDur < minDur {
		return nil
	}
	target := (minDur + maxDur) / 2
	tolerance := (maxDur - minDur) / 2

	var spans []pipeline.Segment
	cursor := 0.0
	for total-cursor >= minDur {
		end := cursor + maxDur
		if s, ok := audio.NearestSilence(silences, cursor+target, tolerance); ok {
			end = s.Mid()
		}
		if end > total {
			end = total
		}
		if end-cursor < minDur {
			break
		}
		spans = append(spans, pipeline.Segment{Start: cursor, End: end})
		cursor = end
	}
	return spans
}
