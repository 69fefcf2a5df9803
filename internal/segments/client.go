package segments

import (
	"context"
	"net/http"

	"github.com/maauso/shortsgen-api/internal/httpretry"
	"github.com/maauso/shortsgen-api/internal/pipeline"
)

// compile-time interface check
var _ pipeline.SegmentFinder = (*Client)(nil)

type findRequest struct {
	Transcript   pipeline.Transcript `json:"transcript"`
	NumSegments  int                 `json:"num_segments"`
	MinDuration  float64             `json:"min_duration"`
	MaxDuration  float64             `json:"max_duration"`
	Instructions string              `json:"instructions,omitempty"`
}

// engineSegment carries times in milliseconds.
type engineSegment struct {
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	Title     string `json:"title"`
}

type findResponse struct {
	Segments []engineSegment `json:"segments"`
}

// Client implements pipeline.SegmentFinder against a ranking engine.
type Client struct {
	http *httpretry.Client
}

// NewClient creates a Client for the engine behind hc.
func NewClient(hc *httpretry.Client) *Client {
	return &Client{http: hc}
}

// FindSegments implements pipeline.SegmentFinder.
func (c *Client) FindSegments(ctx context.Context, req pipeline.SegmentRequest) ([]pipeline.Segment, error) {
	body := findRequest{
		Transcript:   req.Transcript,
		NumSegments:  req.Count,
		MinDuration:  req.MinDuration,
		MaxDuration:  req.MaxDuration,
		Instructions: req.Instructions,
	}

	var resp findResponse
	if err := c.http.Do(ctx, http.MethodPost, "/v1/segments", body, &resp); err != nil {
		return nil, err
	}

	segs := make([]pipeline.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		seg := pipeline.Segment{
			Start: float64(s.StartTime) / 1000,
			End:   float64(s.EndTime) / 1000,
			Title: s.Title,
		}
		if seg.Title == "" {
			seg.Title = titleFor(req.Transcript, seg, 6)
		}
		segs = append(segs, seg)
	}

	return normalize(segs, req)
}
