package job

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maauso/shortsgen-api/internal/pipeline"
	"github.com/maauso/shortsgen-api/internal/style"
)

// Output collections under users/{owner}/.
const (
	collectionShorts    = "generatedShorts"
	collectionSubtitles = "generatedSubtitles"
)

const mimeMP4 = "video/mp4"

// Plan is what every item of one job shares.
type Plan struct {
	JobID   string
	OwnerID string
	Params  Params
	Style   style.Config
}

// Recorder persists one published artifact. A unit only counts once its
// artifact is recorded.
type Recorder func(ctx context.Context, a Artifact) error

// ItemProcessor drives one item through the stage adapters. It never
// touches the ledger; it only reports how many units it produced.
type ItemProcessor struct {
	stages  pipeline.Stages
	workers int
	logger  *slog.Logger
	now     func() time.Time
}

// ProcessorOption configures an ItemProcessor.
type ProcessorOption func(*ItemProcessor)

// WithWorkers sets the cut/render pool size, clamped to 2..4.
func WithWorkers(n int) ProcessorOption {
	return func(p *ItemProcessor) {
		p.workers = min(max(n, 2), 4)
	}
}

// WithProcessorLogger sets the logger.
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *ItemProcessor) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewItemProcessor creates an ItemProcessor with three workers.
func NewItemProcessor(stages pipeline.Stages, opts ...ProcessorOption) (*ItemProcessor, error) {
	if err := stages.Validate(); err != nil {
		return nil, err
	}
	p := &ItemProcessor{
		stages:  stages,
		workers: 3,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// clip tracks the files of one segment.
type clip struct {
	seg      pipeline.Segment
	cut      string
	subs     string
	rendered string
}

// Process runs acquire, transcribe, find segments, cut, re-transcribe,
// caption, render and publish for item inside dir. It returns the number
// of units published and the first stage error. Clips rendered before a
// failure are still published.
func (p *ItemProcessor) Process(ctx context.Context, dir string, item Item, plan Plan, record Recorder) (units int, err error) {
	defer recoverStage(&err, p.logger, item.Key)

	src := filepath.Join(dir, "source.mp4")
	if err := p.stages.Acquire.Fetch(ctx, item.Locator, src); err != nil {
		return 0, pipeline.Fail(pipeline.StageAcquire, err)
	}

	full, err := p.stages.Transcribe.Transcribe(ctx, src)
	if err != nil {
		return 0, pipeline.Fail(pipeline.StageTranscribe, err)
	}

	segs, err := p.stages.Segments.FindSegments(ctx, pipeline.SegmentRequest{
		MediaPath:    src,
		Transcript:   full,
		Count:        plan.Params.NumberOfClips,
		MinDuration:  float64(plan.Params.MinDuration),
		MaxDuration:  float64(plan.Params.MaxDuration),
		Instructions: plan.Params.Instructions,
	})
	if err != nil {
		return 0, pipeline.Fail(pipeline.StageFindSegments, err)
	}
	if len(segs) > plan.Params.NumberOfClips {
		segs = segs[:plan.Params.NumberOfClips]
	}

	clips := make([]clip, len(segs))
	for i, seg := range segs {
		clips[i] = clip{
			seg:      seg,
			cut:      filepath.Join(dir, fmt.Sprintf("cut_%d.mp4", i)),
			subs:     filepath.Join(dir, fmt.Sprintf("cut_%d.ass", i)),
			rendered: filepath.Join(dir, fmt.Sprintf("short_%d.mp4", i)),
		}
	}

	// Cut: the first failure cancels the remaining cuts.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range clips {
		g.Go(func() error {
			return guard(pipeline.StageCut, func() error {
				return p.stages.Cut.Cut(gctx, src, clips[i].cut, clips[i].seg)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	for i := range clips {
		tr, err := p.stages.Transcribe.Transcribe(ctx, clips[i].cut)
		if err != nil {
			return 0, pipeline.Fail(pipeline.StageRetranscribe, err)
		}
		if err := p.stages.Caption.Caption(ctx, tr, plan.Style, clips[i].subs); err != nil {
			return 0, pipeline.Fail(pipeline.StageCaption, err)
		}
	}

	// Render: every clip is attempted so finished ones can still be published.
	renderErrs := make([]error, len(clips))
	var rg errgroup.Group
	rg.SetLimit(p.workers)
	for i := range clips {
		rg.Go(func() error {
			renderErrs[i] = guard(pipeline.StageRender, func() error {
				return p.stages.Render.Render(ctx, pipeline.RenderRequest{
					Input:       clips[i].cut,
					Output:      clips[i].rendered,
					Subtitles:   clips[i].subs,
					AspectRatio: plan.Params.AspectRatio,
					Title:       clips[i].seg.Title,
					Header:      plan.Params.Header,
					Watermark:   plan.Params.Watermark,
				})
			})
			return nil
		})
	}
	_ = rg.Wait()

	var firstErr error
	for i := range clips {
		if renderErrs[i] != nil {
			firstErr = firstOf(firstErr, renderErrs[i])
			continue
		}
		a, err := p.publish(ctx, clips[i].rendered, collectionShorts, "short", item, clips[i].seg.Title, plan, record)
		if err != nil {
			firstErr = firstOf(firstErr, err)
			continue
		}
		units++
		p.logger.Debug("unit published",
			slog.String("job_id", plan.JobID),
			slog.String("item", item.Key),
			slog.String("artifact_id", a.ID),
		)
	}
	return units, firstErr
}

// Acquire fetches item into dir and probes its duration in seconds.
func (p *ItemProcessor) Acquire(ctx context.Context, dir string, item Item) (src string, duration float64, err error) {
	defer recoverStage(&err, p.logger, item.Key)

	src = filepath.Join(dir, "source.mp4")
	if err := p.stages.Acquire.Fetch(ctx, item.Locator, src); err != nil {
		return "", 0, pipeline.Fail(pipeline.StageAcquire, err)
	}
	duration, err = p.stages.Probe.GetMediaDuration(ctx, src)
	if err != nil {
		return "", 0, pipeline.Fail(pipeline.StageProbe, err)
	}
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration < 0 {
		return "", 0, pipeline.Fail(pipeline.StageProbe, fmt.Errorf("invalid duration %v", duration))
	}
	return src, duration, nil
}

// Subtitle transcribes, captions, renders and publishes the whole of src.
func (p *ItemProcessor) Subtitle(ctx context.Context, dir, src string, item Item, plan Plan, record Recorder) (units int, err error) {
	defer recoverStage(&err, p.logger, item.Key)

	tr, err := p.stages.Transcribe.Transcribe(ctx, src)
	if err != nil {
		return 0, pipeline.Fail(pipeline.StageTranscribe, err)
	}

	subs := filepath.Join(dir, "source.ass")
	if err := p.stages.Caption.Caption(ctx, tr, plan.Style, subs); err != nil {
		return 0, pipeline.Fail(pipeline.StageCaption, err)
	}

	out := filepath.Join(dir, "subtitled.mp4")
	if err := p.stages.Render.Render(ctx, pipeline.RenderRequest{
		Input:       src,
		Output:      out,
		Subtitles:   subs,
		AspectRatio: plan.Params.AspectRatio,
		Header:      plan.Params.Header,
		Watermark:   plan.Params.Watermark,
	}); err != nil {
		return 0, pipeline.Fail(pipeline.StageRender, err)
	}

	if _, err := p.publish(ctx, out, collectionSubtitles, "subtitled", item, item.Title, plan, record); err != nil {
		return 0, err
	}
	return 1, nil
}

func (p *ItemProcessor) publish(ctx context.Context, path, collection, prefix string, item Item, title string, plan Plan, record Recorder) (Artifact, error) {
	artifactID := uuid.NewString()
	key := fmt.Sprintf("users/%s/%s/%s/%s_%s.mp4", plan.OwnerID, collection, plan.JobID, prefix, artifactID)

	locator, err := p.stages.Publish.Publish(ctx, key, path, mimeMP4)
	if err != nil {
		return Artifact{}, pipeline.Fail(pipeline.StagePublish, err)
	}

	a := Artifact{
		ID:         artifactID,
		URL:        locator,
		MimeType:   mimeMP4,
		Type:       "generated",
		Title:      title,
		Source:     item.Key,
		ProducedAt: p.now().UTC(),
	}
	if err := record(ctx, a); err != nil {
		return Artifact{}, pipeline.Fail(pipeline.StagePublish, fmt.Errorf("record artifact: %w", err))
	}
	return a, nil
}

// guard runs fn, turning a returned error or panic into a stage error.
func guard(stage pipeline.Stage, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &pipeline.StageError{Stage: stage, Kind: pipeline.KindPanic, Detail: fmt.Sprint(r)}
		}
	}()
	if err := fn(); err != nil {
		return pipeline.Fail(stage, err)
	}
	return nil
}

// recoverStage converts a panic in the calling goroutine into a stage error.
func recoverStage(errp *error, logger *slog.Logger, itemKey string) {
	r := recover()
	if r == nil {
		return
	}
	logger.Error("item processing panicked",
		slog.String("item", itemKey),
		slog.Any("panic", r),
		slog.String("stack", string(debug.Stack())),
	)
	*errp = &pipeline.StageError{Kind: pipeline.KindPanic, Detail: fmt.Sprint(r)}
}

func firstOf(current, next error) error {
	if current != nil {
		return current
	}
	return next
}
