package job

import (
	"context"
	"strings"

	"github.com/stretchr/testify/mock"

	"github.com/maauso/shortsgen-api/internal/pipeline"
	"github.com/maauso/shortsgen-api/internal/style"
)

// mockStages implements every stage port so one mock can back a whole
// pipeline.Stages bundle.
type mockStages struct {
	mock.Mock
}

func (m *mockStages) Fetch(ctx context.Context, locator, dst string) error {
	args := m.Called(ctx, locator, dst)
	return args.Error(0)
}

func (m *mockStages) GetMediaDuration(ctx context.Context, path string) (float64, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockStages) Transcribe(ctx context.Context, mediaPath string) (pipeline.Transcript, error) {
	args := m.Called(ctx, mediaPath)
	return args.Get(0).(pipeline.Transcript), args.Error(1)
}

func (m *mockStages) FindSegments(ctx context.Context, req pipeline.SegmentRequest) ([]pipeline.Segment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]pipeline.Segment), args.Error(1)
}

func (m *mockStages) Cut(ctx context.Context, src, dst string, seg pipeline.Segment) error {
	args := m.Called(ctx, src, dst, seg)
	return args.Error(0)
}

func (m *mockStages) Caption(ctx context.Context, t pipeline.Transcript, cfg style.Config, dst string) error {
	args := m.Called(ctx, t, cfg, dst)
	return args.Error(0)
}

func (m *mockStages) Render(ctx context.Context, req pipeline.RenderRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *mockStages) Publish(ctx context.Context, key, src, contentType string) (string, error) {
	args := m.Called(ctx, key, src, contentType)
	if loc := args.String(0); loc != "" {
		return loc, args.Error(1)
	}
	return "s3://out/" + key, args.Error(1)
}

func (m *mockStages) stages() pipeline.Stages {
	return pipeline.Stages{
		Acquire:    m,
		Probe:      m,
		Transcribe: m,
		Segments:   m,
		Cut:        m,
		Caption:    m,
		Render:     m,
		Publish:    m,
	}
}

// callsTo returns the recorded calls of one method.
func (m *mockStages) callsTo(method string) []mock.Call {
	var out []mock.Call
	for _, c := range m.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

var testTranscript = pipeline.Transcript{
	Text: "hello there world",
	Words: []pipeline.Word{
		{Text: "hello", Start: 0, End: 0.5},
		{Text: "there", Start: 0.6, End: 1.0},
		{Text: "world", Start: 1.1, End: 1.5},
	},
}

func testSegments(n int) []pipeline.Segment {
	segs := make([]pipeline.Segment, n)
	for i := range segs {
		start := float64(i * 30)
		segs[i] = pipeline.Segment{Start: start, End: start + 20, Title: "Clip"}
	}
	return segs
}

// expectHappyPath registers catch-all expectations that succeed. Register
// failing expectations before calling it; the first match wins.
func (m *mockStages) expectHappyPath(segments int) {
	m.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("GetMediaDuration", mock.Anything, mock.Anything).Return(45.0, nil).Maybe()
	m.On("Transcribe", mock.Anything, mock.Anything).Return(testTranscript, nil).Maybe()
	m.On("FindSegments", mock.Anything, mock.Anything).Return(testSegments(segments), nil).Maybe()
	m.On("Cut", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("Caption", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("Render", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", nil).Maybe()
}

// inDir matches a path argument under the given item directory.
func inDir(item string) any {
	return mock.MatchedBy(func(path string) bool {
		return strings.Contains(path, item+"/")
	})
}

// renderOf matches a render request by a fragment of its output path.
func renderOf(fragment string) any {
	return mock.MatchedBy(func(req pipeline.RenderRequest) bool {
		return strings.Contains(req.Output, fragment)
	})
}
