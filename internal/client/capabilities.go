package client

import (
	"context"

	"github.com/archifusion/api/internal/model"
)

// Inference turns free-form building descriptions into requirements and
// describes generated models.
type Inference interface {
	Interpret(ctx context.Context, prompt string) (*model.RequirementSet, error)
	Describe(ctx context.Context, m *model.ArchitecturalModel) (string, error)
}

// Vision analyzes sketches and photographs.
type Vision interface {
	Analyze(ctx context.Context, img *model.Media) (*model.VisualAnalysis, error)
}

// Speech converts recorded audio into a transcript.
type Speech interface {
	Transcribe(ctx context.Context, audio *model.Media) (string, error)
}

// Capabilities bundles the adapters chosen at startup.
type Capabilities struct {
	Inference Inference
	Vision    Vision
	Speech    Speech

	// Live flags are reported by the health endpoint.
	InferenceLive bool
	VisionLive    bool
	SpeechLive    bool
}

// Mode returns "live" or "stub" for the health payload.
func Mode(live bool) string {
	if live {
		return "live"
	}
	return "stub"
}
