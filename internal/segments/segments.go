// Package segments picks the spans of a source video that become clips.
// Client asks an HTTP ranking engine; SilenceFinder splits on pauses when no
// engine is configured.
package segments

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maauso/shortsgen-api/internal/pipeline"
)

// ErrNoSegments is returned when no span satisfies the duration bounds.
var ErrNoSegments = errors.New("segments: no segment within duration bounds")

// boundsTolerance absorbs millisecond rounding at the min/max edges.
const boundsTolerance = 0.05

// normalize drops spans that are inverted, start before zero or fall outside
// [MinDuration, MaxDuration], then truncates to Count.
func normalize(in []pipeline.Segment, req pipeline.SegmentRequest) ([]pipeline.Segment, error) {
	out := make([]pipeline.Segment, 0, len(in))
	for _, seg := range in {
		d := seg.Duration()
		switch {
		case seg.Start < 0 || d <= 0:
			continue
		case req.MinDuration > 0 && d < req.MinDuration-boundsTolerance:
			continue
		case req.MaxDuration > 0 && d > req.MaxDuration+boundsTolerance:
			continue
		}
		seg.Title = strings.TrimSpace(seg.Title)
		out = append(out, seg)
		if req.Count > 0 && len(out) == req.Count {
			break
		}
	}

	if len(out) == 0 {
		return nil, &pipeline.StageError{
			Kind:   pipeline.KindEmpty,
			Detail: fmt.Sprintf("%s (%d candidates)", ErrNoSegments.Error(), len(in)),
			Err:    ErrNoSegments,
		}
	}
	return out, nil
}

// titleFor builds a title from the first words spoken inside seg.
func titleFor(t pipeline.Transcript, seg pipeline.Segment, maxWords int) string {
	var words []string
	for _, w := range t.Words {
		if w.Start < seg.Start {
			continue
		}
		if w.Start >= seg.End || len(words) == maxWords {
			break
		}
		words = append(words, strings.TrimSpace(w.Text))
	}
	return strings.Join(words, " ")
}
