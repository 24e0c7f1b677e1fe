// Package orchestrator turns decoded inputs into an architectural model.
// It runs the strategy's fast path, falls back to the three-stage pipeline
// when that produces nothing usable, and ends with the heuristic analyzer,
// which cannot fail.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/archifusion/api/internal/analyzer"
	"github.com/archifusion/api/internal/client"
	"github.com/archifusion/api/internal/executor"
	"github.com/archifusion/api/internal/metrics"
	"github.com/archifusion/api/internal/model"
	"github.com/archifusion/api/internal/synthesizer"
)

// Progress checkpoints reported while a job runs.
const (
	ProgressProcessing   = 5
	ProgressAnalyzing    = 15
	ProgressGenerating   = 55
	ProgressInterpreting = 65
	ProgressDesigning    = 75
	ProgressRendering    = 85
)

// Degradation stages.
const (
	StageSpeech    = "speech"
	StageInference = "inference"
	StageVisual    = "visual"
	StageSketch    = "visual.sketch"
	StagePhoto     = "visual.photo"
	StageLayout    = "layout"
	StageSynthesis = "synthesis"
	StagePipeline  = "pipeline"
	StageJob       = "job"
)

// ProgressFunc receives status transitions of a running job.
type ProgressFunc func(status model.JobStatus, progress int, step string)

// Generator runs one job's generation with its fallback chain.
type Generator struct {
	inference client.Inference
	vision    client.Vision
	speech    client.Speech
	exec      *executor.Executor
	pipeline  *Pipeline
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewGenerator(caps client.Capabilities, exec *executor.Executor, m *metrics.Metrics, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		inference: caps.Inference,
		vision:    caps.Vision,
		speech:    caps.Speech,
		exec:      exec,
		pipeline:  NewPipeline(caps.Inference, exec, logger),
		metrics:   m,
		logger:    logger,
	}
}

// generation is the mutable state of one Generate call.
type generation struct {
	g            *Generator
	strategy     model.Strategy
	degradations []model.Degradation
}

func (r *generation) degrade(stage string, err error, reason string) {
	kind := model.KindOf(err)
	if kind == "" {
		kind = model.KindUpstreamFailure
	}
	d := model.Degradation{Stage: stage, Kind: kind, Reason: reason}
	if err != nil {
		d.Reason = reason + ": " + err.Error()
	}
	r.degradations = append(r.degradations, d)
	r.g.metrics.Degradation(stage, string(kind))
	r.g.logger.Warn("degraded", zap.String("stage", stage), zap.String("kind", string(kind)), zap.String("reason", d.Reason))
}

// Generate produces a model for in. Upstream timeouts and failures are
// absorbed as degradations; the only error is a synthesis defect (or a
// validation error for input without any modality).
func (g *Generator) Generate(ctx context.Context, in *model.DecodedInput, progress ProgressFunc) (*model.Outcome, error) {
	if progress == nil {
		progress = func(model.JobStatus, int, string) {}
	}
	strategy, err := SelectStrategy(in)
	if err != nil {
		return nil, err
	}

	jobCtx, cancel := g.exec.JobContext(ctx)
	defer cancel()

	r := &generation{g: g, strategy: strategy}
	input := *in

	progress(model.JobStatusProcessing, ProgressProcessing, "processing")

	if input.SpeechAudio != nil && strings.TrimSpace(input.SpeechTranscript) == "" {
		input.SpeechTranscript = g.transcribe(jobCtx, r, input.SpeechAudio)
	}
	input.SpeechAudio = nil
	if strings.TrimSpace(input.CombinedText()) == "" && input.HasVisual() {
		r.strategy = model.StrategyVisualOnly
	}

	progress(model.JobStatusAnalyzingInputs, ProgressAnalyzing, "analyzing inputs")

	var (
		req    *model.RequirementSet
		visual *model.VisualAnalysis
	)
	if jobCtx.Err() == nil {
		req, visual = g.fastPath(jobCtx, r, &input)
	}
	prompt := BuildPrompt(&input, visual)

	progress(model.JobStatusGeneratingModel, ProgressGenerating, "generating model")

	var (
		m           *model.ArchitecturalModel
		description string
	)
	if req != nil {
		m = g.synthesize(r, req, visual)
	}

	if m == nil || len(m.Rooms) == 0 {
		if m != nil {
			r.degrade(StageSynthesis, model.NewError(model.KindUpstreamFailure, "synthesize", "no rooms"), "fast path produced an empty model")
			m = nil
		}
		if jobCtx.Err() == nil {
			res, err := g.pipeline.Run(jobCtx, prompt, visual, func(s State) {
				switch s {
				case StateInterpreting:
					progress(model.JobStatusGeneratingModel, ProgressInterpreting, "interpreting requirements")
				case StateDesigning:
					progress(model.JobStatusGeneratingModel, ProgressDesigning, "designing layout")
				case StateRendering:
					progress(model.JobStatusGeneratingModel, ProgressRendering, "rendering description")
				}
			})
			if err != nil {
				stage := StagePipeline
				var se *StageError
				if errors.As(err, &se) {
					stage = StagePipeline + "." + string(se.State)
				}
				r.degrade(stage, err, "pipeline failed, heuristic model used")
			} else {
				req, m, description = res.Requirements, res.Model, res.Description
			}
		}
	}

	if m == nil && jobCtx.Err() != nil {
		r.degrade(StageJob, model.WrapError(model.KindUpstreamTimeout, "job", executor.ErrJobDeadline), "job deadline reached, heuristic model used")
	}

	if m == nil {
		req = analyzer.Analyze(prompt)
		m, err = synthesizer.Synthesize(req, visual)
		if err != nil {
			g.logger.Error("heuristic synthesis failed", zap.Error(err))
			return nil, err
		}
	}

	g.logger.Info("model generated",
		zap.String("strategy", string(r.strategy)),
		zap.Int("rooms", len(m.Rooms)),
		zap.Int("degradations", len(r.degradations)),
	)

	return &model.Outcome{
		Model:        m,
		Requirements: req,
		Visual:       visual,
		Strategy:     r.strategy,
		Description:  description,
		Degradations: r.degradations,
	}, nil
}

// Quick is the synchronous heuristic-only path.
func Quick(prompt string) (*model.RequirementSet, *model.ArchitecturalModel, error) {
	req := analyzer.Analyze(prompt)
	m, err := synthesizer.Synthesize(req, nil)
	if err != nil {
		return nil, nil, err
	}
	return req, m, nil
}

func (g *Generator) transcribe(ctx context.Context, r *generation, audio *model.Media) string {
	text, err := executor.Run(ctx, g.exec, executor.TierSpeech, client.OpTranscribe,
		func(ctx context.Context) (string, error) {
			return g.speech.Transcribe(ctx, audio)
		})
	if err != nil {
		r.degrade(StageSpeech, err, "speech transcription failed, continuing without transcript")
		return ""
	}
	return strings.TrimSpace(text)
}

// fastPath runs the selected strategy. A nil requirement set means the
// path produced nothing usable.
func (g *Generator) fastPath(ctx context.Context, r *generation, in *model.DecodedInput) (*model.RequirementSet, *model.VisualAnalysis) {
	text := in.CombinedText()

	switch r.strategy {
	case model.StrategyParallel:
		var (
			wg        sync.WaitGroup
			req       *model.RequirementSet
			textErr   error
			visual    *model.VisualAnalysis
			visualErr []model.Degradation
		)
		// the visual branch must not outlive the text branch
		budget := g.exec.Timeout(executor.TierVisual)
		if t := g.exec.Timeout(executor.TierText); t < budget {
			budget = t
		}

		wg.Add(2)
		go func() {
			defer wg.Done()
			req, textErr = g.interpret(ctx, text)
		}()
		go func() {
			defer wg.Done()
			visual, visualErr = g.analyze(ctx, in, budget)
		}()
		wg.Wait()

		for _, d := range visualErr {
			r.record(d, "text-only model used")
		}
		if textErr != nil {
			r.degrade(StageInference, textErr, "text inference failed")
			req = nil
		}
		return req, visual

	case model.StrategyVisualOnly:
		visual, visualErr := g.analyze(ctx, in, g.exec.Timeout(executor.TierVisual))
		for _, d := range visualErr {
			r.record(d, "")
		}

		prompt := PromptFromVisual(visual)
		if prompt == "" {
			if len(visualErr) == 0 {
				r.degrade(StageVisual, model.NewError(model.KindUpstreamFailure, client.OpAnalyze, "no rooms or description detected"), "visual analysis was empty")
			}
			return analyzer.Analyze(""), visual
		}
		req, err := g.interpret(ctx, prompt)
		if err != nil {
			r.degrade(StageInference, err, "inference on visual prompt failed, heuristic analyzer used")
			return analyzer.Analyze(prompt), visual
		}
		return req, visual

	default:
		if strings.TrimSpace(text) == "" {
			return analyzer.Analyze(""), nil
		}
		req, err := g.interpret(ctx, text)
		if err != nil {
			r.degrade(StageInference, err, "text inference failed")
			return nil, nil
		}
		return req, nil
	}
}

func (g *Generator) interpret(ctx context.Context, prompt string) (*model.RequirementSet, error) {
	req, err := executor.Run(ctx, g.exec, executor.TierText, client.OpInterpret,
		func(ctx context.Context) (*model.RequirementSet, error) {
			return g.inference.Interpret(ctx, prompt)
		})
	if err == nil && req == nil {
		err = model.NewError(model.KindUpstreamFailure, client.OpInterpret, "no requirements returned")
	}
	return req, err
}

// analyze runs the sketch and photo analyses concurrently under one budget
// and merges them. Failed analyses come back as degradations.
func (g *Generator) analyze(ctx context.Context, in *model.DecodedInput, budget time.Duration) (*model.VisualAnalysis, []model.Degradation) {
	type result struct {
		va  *model.VisualAnalysis
		err error
	}
	run := func(img *model.Media) result {
		va, err := executor.RunWithin(ctx, g.exec, budget, client.OpAnalyze,
			func(ctx context.Context) (*model.VisualAnalysis, error) {
				return g.vision.Analyze(ctx, img)
			})
		if err == nil && va == nil {
			err = model.NewError(model.KindUpstreamFailure, client.OpAnalyze, "no analysis returned")
		}
		return result{va, err}
	}

	var sketch, photo result
	var wg sync.WaitGroup
	if in.Sketch != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sketch = run(in.Sketch)
		}()
	}
	if in.Photo != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			photo = run(in.Photo)
		}()
	}
	wg.Wait()

	stage := func(specific string) string {
		if in.Sketch != nil && in.Photo != nil {
			return specific
		}
		return StageVisual
	}

	var failed []model.Degradation
	if sketch.err != nil {
		failed = append(failed, failure(stage(StageSketch), sketch.err))
	}
	if photo.err != nil {
		failed = append(failed, failure(stage(StagePhoto), photo.err))
	}
	return mergeVisual(sketch.va, photo.va), failed
}

// failure builds an unrecorded degradation for a failed visual call.
func failure(stage string, err error) model.Degradation {
	kind := model.KindOf(err)
	if kind == "" {
		kind = model.KindUpstreamFailure
	}
	reason := "visual analysis failed"
	if kind == model.KindUpstreamTimeout {
		reason = "visual analysis timed out"
	}
	return model.Degradation{Stage: stage, Kind: kind, Reason: reason + ": " + err.Error()}
}

func (r *generation) record(d model.Degradation, suffix string) {
	if suffix != "" {
		d.Reason += "; " + suffix
	}
	r.degradations = append(r.degradations, d)
	r.g.metrics.Degradation(d.Stage, string(d.Kind))
	r.g.logger.Warn("degraded", zap.String("stage", d.Stage), zap.String("kind", string(d.Kind)), zap.String("reason", d.Reason))
}

// mergeVisual combines sketch and photo analyses. Rooms come from the
// sketch when it found any; style prefers the photo.
func mergeVisual(sketch, photo *model.VisualAnalysis) *model.VisualAnalysis {
	switch {
	case sketch == nil:
		return photo
	case photo == nil:
		return sketch
	}

	out := &model.VisualAnalysis{
		DetectedRooms: sketch.DetectedRooms,
		Style:         photo.Style,
	}
	if len(out.DetectedRooms) == 0 {
		out.DetectedRooms = photo.DetectedRooms
	}
	if out.Style == "" {
		out.Style = sketch.Style
	}

	var desc []string
	for _, d := range []string{sketch.Description, photo.Description} {
		if d = strings.TrimSpace(d); d != "" {
			desc = append(desc, d)
		}
	}
	out.Description = strings.Join(desc, " ")

	seen := make(map[string]bool)
	for _, t := range append(append([]string(nil), sketch.Tags...), photo.Tags...) {
		if !seen[t] {
			seen[t] = true
			out.Tags = append(out.Tags, t)
		}
	}
	return out
}

// synthesize builds the fast-path model and records an unusable visual layout.
func (g *Generator) synthesize(r *generation, req *model.RequirementSet, visual *model.VisualAnalysis) *model.ArchitecturalModel {
	if visual != nil && len(visual.DetectedRooms) > 0 {
		if _, err := synthesizer.UsableLayout(visual); err != nil {
			r.degrade(StageLayout, model.WrapError(model.KindUpstreamFailure, "layout", err), "visual layout unusable, packed layout used")
		}
	}
	m, err := synthesizer.Synthesize(req, visual)
	if err != nil {
		r.degrade(StageSynthesis, err, "fast-path synthesis failed")
		return nil
	}
	return m
}
