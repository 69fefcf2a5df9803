package segments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/shortsgen-api/internal/audio"
	"github.com/maauso/shortsgen-api/internal/httpretry"
	"github.com/maauso/shortsgen-api/internal/pipeline"
)

type mockDetector struct {
	mock.Mock
}

func (m *mockDetector) DetectSilences(ctx context.Context, path string, opts audio.SilenceOpts) ([]audio.Silence, error) {
	args := m.Called(ctx, path, opts)
	s, _ := args.Get(0).([]audio.Silence)
	return s, args.Error(1)
}

// transcriptUntil returns one word per second up to end.
func transcriptUntil(end float64) pipeline.Transcript {
	var t pipeline.Transcript
	for s := 0.0; s < end; s++ {
		t.Words = append(t.Words, pipeline.Word{Text: "w", Start: s, End: s + 0.8})
	}
	return t
}

func TestNormalize(t *testing.T) {
	req := pipeline.SegmentRequest{Count: 2, MinDuration: 15, MaxDuration: 60}
	in := []pipeline.Segment{
		{Start: 10, End: 5},    // inverted
		{Start: -1, End: 20},   // negative start
		{Start: 0, End: 10},    // too short
		{Start: 0, End: 90},    // too long
		{Start: 0, End: 14.98}, // within tolerance
		{Start: 20, End: 80, Title: "  kept  "},
		{Start: 100, End: 130}, // over count
	}

	out, err := normalize(in, req)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 14.98, out[0].End)
	assert.Equal(t, "kept", out[1].Title)
}

func TestNormalize_Empty(t *testing.T) {
	_, err := normalize([]pipeline.Segment{{Start: 0, End: 1}}, pipeline.SegmentRequest{MinDuration: 15, MaxDuration: 60})

	var se *pipeline.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, pipeline.KindEmpty, se.Kind)
	assert.ErrorIs(t, err, ErrNoSegments)
}

func TestClient_FindSegments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/segments", r.URL.Path)

		var req findRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 2, req.NumSegments)
		assert.Equal(t, 15.0, req.MinDuration)
		assert.Equal(t, 60.0, req.MaxDuration)
		assert.Equal(t, "funny bits", req.Instructions)

		_, _ = w.Write([]byte(`{"segments":[
			{"start_time":1000,"end_time":21500,"title":"Opening"},
			{"start_time":30000,"end_time":32000,"title":"Too short"},
			{"start_time":40000,"end_time":70000}
		]}`))
	}))
	defer server.Close()

	hc, err := httpretry.New(server.URL)
	require.NoError(t, err)

	segs, err := NewClient(hc).FindSegments(context.Background(), pipeline.SegmentRequest{
		Transcript:   transcriptUntil(80),
		Count:        2,
		MinDuration:  15,
		MaxDuration:  60,
		Instructions: "funny bits",
	})
	require.NoError(t, err)
	require.Len(t, segs, 2)

	assert.Equal(t, pipeline.Segment{Start: 1, End: 21.5, Title: "Opening"}, segs[0])
	assert.Equal(t, 40.0, segs[1].Start)
	assert.Equal(t, 70.0, segs[1].End)
	assert.Equal(t, "w w w w w w", segs[1].Title)
}

func TestClient_FindSegments_EngineError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	hc, err := httpretry.New(server.URL)
	require.NoError(t, err)

	_, err = NewClient(hc).FindSegments(context.Background(), pipeline.SegmentRequest{Count: 1})
	assert.ErrorIs(t, err, httpretry.ErrRequestFailed)
}

func TestSplitOnSilence(t *testing.T) {
	silences := []audio.Silence{
		{Start: 29, End: 31},     // mid 30, near first target 37.5
		{Start: 69.5, End: 70.5}, // mid 70, near second target 67.5
	}

	spans := splitOnSilence(silences, 80, 15, 60)
	require.Len(t, spans, 2)
	assert.Equal(t, pipeline.Segment{Start: 0, End: 30}, spans[0])
	assert.Equal(t, pipeline.Segment{Start: 30, End: 70}, spans[1])

	// no pause near 107.5: the hard cut at 130 is capped to the end
	spans = splitOnSilence(silences, 125, 15, 60)
	require.Len(t, spans, 3)
	assert.Equal(t, pipeline.Segment{Start: 70, End: 125}, spans[2])
}

func TestSplitOnSilence_NoPauses(t *testing.T) {
	spans := splitOnSilence(nil, 130, 15, 60)
	require.Len(t, spans, 2)
	assert.Equal(t, 60.0, spans[0].End)
	assert.Equal(t, 120.0, spans[1].End)

	assert.Nil(t, splitOnSilence(nil, 100, 60, 15))
}

func TestSilenceFinder_FindSegments(t *testing.T) {
	det := new(mockDetector)
	opts := audio.DefaultSilenceOpts()
	det.On("DetectSilences", mock.Anything, "/work/source.mp4", opts).
		Return([]audio.Silence{{Start: 29, End: 31}}, nil)

	segs, err := NewSilenceFinder(det, opts, nil).FindSegments(context.Background(), pipeline.SegmentRequest{
		MediaPath:   "/work/source.mp4",
		Transcript:  transcriptUntil(40),
		Count:       3,
		MinDuration: 15,
		MaxDuration: 60,
	})
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, 30.0, segs[0].End)
	assert.Equal(t, "w w w w w w", segs[0].Title)
	det.AssertExpectations(t)
}

func TestSilenceFinder_DetectorError(t *testing.T) {
	det := new(mockDetector)
	boom := errors.New("ffmpeg missing")
	det.On("DetectSilences", mock.Anything, mock.Anything, mock.Anything).Return(nil, boom)

	_, err := NewSilenceFinder(det, audio.DefaultSilenceOpts(), nil).FindSegments(context.Background(), pipeline.SegmentRequest{
		Transcript:  transcriptUntil(40),
		MinDuration: 15,
		MaxDuration: 60,
	})
	assert.ErrorIs(t, err, boom)
}

func TestSilenceFinder_EmptyTranscript(t *testing.T) {
	det := new(mockDetector)

	_, err := NewSilenceFinder(det, audio.DefaultSilenceOpts(), nil).FindSegments(context.Background(), pipeline.SegmentRequest{
		MinDuration: 15,
		MaxDuration: 60,
	})
	assert.ErrorIs(t, err, ErrNoSegments)
	det.AssertNotCalled(t, "DetectSilences", mock.Anything, mock.Anything, mock.Anything)
}
