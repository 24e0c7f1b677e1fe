package client

import (
	"context"

	"github.com/archifusion/api/internal/model"
	"github.com/archifusion/api/internal/resilience"
)

// Operation names used for breakers, metrics and degradations.
const (
	OpInterpret  = "inference.interpret"
	OpDescribe   = "inference.describe"
	OpAnalyze    = "vision.analyze"
	OpTranscribe = "speech.transcribe"
)

type guardedInference struct {
	inner   Inference
	breaker *resilience.Breaker
}

// GuardInference routes calls to inner through per-operation breakers.
func GuardInference(inner Inference, b *resilience.Breaker) Inference {
	return &guardedInference{inner: inner, breaker: b}
}

func (g *guardedInference) Interpret(ctx context.Context, prompt string) (*model.RequirementSet, error) {
	var out *model.RequirementSet
	err := g.breaker.Execute(ctx, OpInterpret, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Interpret(ctx, prompt)
		return err
	})
	return out, err
}

func (g *guardedInference) Describe(ctx context.Context, m *model.ArchitecturalModel) (string, error) {
	var out string
	err := g.breaker.Execute(ctx, OpDescribe, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Describe(ctx, m)
		return err
	})
	return out, err
}

type guardedVision struct {
	inner   Vision
	breaker *resilience.Breaker
}

func GuardVision(inner Vision, b *resilience.Breaker) Vision {
	return &guardedVision{inner: inner, breaker: b}
}

func (g *guardedVision) Analyze(ctx context.Context, img *model.Media) (*model.VisualAnalysis, error) {
	var out *model.VisualAnalysis
	err := g.breaker.Execute(ctx, OpAnalyze, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Analyze(ctx, img)
		return err
	})
	return out, err
}

type guardedSpeech struct {
	inner   Speech
	breaker *resilience.Breaker
}

func GuardSpeech(inner Speech, b *resilience.Breaker) Speech {
	return &guardedSpeech{inner: inner, breaker: b}
}

func (g *guardedSpeech) Transcribe(ctx context.Context, audio *model.Media) (string, error) {
	var out string
	err := g.breaker.Execute(ctx, OpTranscribe, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Transcribe(ctx, audio)
		return err
	})
	return out, err
}
