package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/archifusion/api/internal/analyzer"
	"github.com/archifusion/api/internal/client"
	"github.com/archifusion/api/internal/executor"
	"github.com/archifusion/api/internal/model"
)

var errUpstream = errors.New("upstream 503")

type fakeInference struct {
	interpret func(ctx context.Context, prompt string, call int32) (*model.RequirementSet, error)
	describe  func(ctx context.Context, m *model.ArchitecturalModel) (string, error)

	interpretCalls atomic.Int32
	lastPrompt     atomic.Value
}

func (f *fakeInference) Interpret(ctx context.Context, prompt string) (*model.RequirementSet, error) {
	call := f.interpretCalls.Add(1)
	f.lastPrompt.Store(prompt)
	if f.interpret == nil {
		return analyzer.Analyze(prompt), nil
	}
	return f.interpret(ctx, prompt, call)
}

func (f *fakeInference) Describe(ctx context.Context, m *model.ArchitecturalModel) (string, error) {
	if f.describe == nil {
		return "a described model", nil
	}
	return f.describe(ctx, m)
}

func (f *fakeInference) prompt() string {
	s, _ := f.lastPrompt.Load().(string)
	return s
}

type fakeVision struct {
	analyze func(ctx context.Context, img *model.Media) (*model.VisualAnalysis, error)
}

func (f *fakeVision) Analyze(ctx context.Context, img *model.Media) (*model.VisualAnalysis, error) {
	return f.analyze(ctx, img)
}

type fakeSpeech struct {
	text string
	err  error
}

func (f *fakeSpeech) Transcribe(ctx context.Context, audio *model.Media) (string, error) {
	return f.text, f.err
}

// blockingVision waits for cancellation, like a hung upstream.
func blockingVision() *fakeVision {
	return &fakeVision{analyze: func(ctx context.Context, img *model.Media) (*model.VisualAnalysis, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Second):
			return &model.VisualAnalysis{Description: "too late"}, nil
		}
	}}
}

func failingVision() *fakeVision {
	return &fakeVision{analyze: func(ctx context.Context, img *model.Media) (*model.VisualAnalysis, error) {
		return nil, errUpstream
	}}
}

func failingInference() *fakeInference {
	return &fakeInference{
		interpret: func(ctx context.Context, prompt string, call int32) (*model.RequirementSet, error) {
			return nil, errUpstream
		},
	}
}

func testTimeouts() executor.Timeouts {
	return executor.Timeouts{
		Speech: 100 * time.Millisecond,
		Text:   150 * time.Millisecond,
		Visual: 2 * time.Second,
		Job:    5 * time.Second,
		Stage:  150 * time.Millisecond,
	}
}

func newGenerator(t *testing.T, tt executor.Timeouts, inf client.Inference, vis client.Vision, sp client.Speech) *Generator {
	t.Helper()
	exec, err := executor.New(tt, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	if inf == nil {
		inf = &fakeInference{}
	}
	if vis == nil {
		vis = client.StubVision{}
	}
	if sp == nil {
		sp = client.StubSpeech{}
	}
	return NewGenerator(client.Capabilities{Inference: inf, Vision: vis, Speech: sp}, exec, nil, zaptest.NewLogger(t))
}

func image() *model.Media {
	return &model.Media{Data: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/png"}
}

type progressLog struct {
	statuses []model.JobStatus
	values   []int
	steps    []string
}

func (p *progressLog) fn(status model.JobStatus, progress int, step string) {
	p.statuses = append(p.statuses, status)
	p.values = append(p.values, progress)
	p.steps = append(p.steps, step)
}

func stages(out *model.Outcome) []string {
	s := make([]string, 0, len(out.Degradations))
	for _, d := range out.Degradations {
		s = append(s, d.Stage)
	}
	return s
}
