package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFail(t *testing.T) {
	assert.Nil(t, Fail(StageCut, nil))

	base := errors.New("ffmpeg exploded")
	se := Fail(StageCut, base)
	require.NotNil(t, se)
	assert.Equal(t, StageCut, se.Stage)
	assert.Equal(t, KindFailed, se.Kind)
	assert.Equal(t, "ffmpeg exploded", se.Detail)
	assert.ErrorIs(t, se, base)
	assert.Equal(t, "stage cut: failed: ffmpeg exploded", se.Error())
}

func TestFail_ContextKinds(t *testing.T) {
	se := Fail(StageTranscribe, fmt.Errorf("request: %w", context.DeadlineExceeded))
	assert.Equal(t, KindTimeout, se.Kind)

	se = Fail(StageTranscribe, context.Canceled)
	assert.Equal(t, KindCanceled, se.Kind)
}

func TestFail_KeepsExistingStageError(t *testing.T) {
	orig := &StageError{Stage: StageAcquire, Kind: "not_found", Detail: "missing"}
	wrapped := fmt.Errorf("outer: %w", orig)

	se := Fail(StageRender, wrapped)
	assert.Same(t, orig, se)
	assert.Equal(t, StageAcquire, se.Stage)

	blank := &StageError{Kind: KindEmpty}
	se = Fail(StageFindSegments, blank)
	assert.Equal(t, StageFindSegments, se.Stage)
	assert.Equal(t, "stage find_segments: empty", se.Error())
}

func TestTranscriptAndSegmentDuration(t *testing.T) {
	assert.Equal(t, 0.0, Transcript{}.Duration())
	tr := Transcript{Words: []Word{{Text: "a", Start: 0, End: 0.4}, {Text: "b", Start: 0.5, End: 1.25}}}
	assert.InDelta(t, 1.25, tr.Duration(), 1e-9)
	assert.InDelta(t, 12.5, Segment{Start: 10, End: 22.5}.Duration(), 1e-9)
}

func TestStages_Validate(t *testing.T) {
	err := Stages{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire")
}
