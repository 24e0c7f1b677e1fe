package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/archifusion/api/internal/analyzer"
	"github.com/archifusion/api/internal/model"
)

// ErrNoTranscription is returned by the speech stub; there is no local
// speech-to-text fallback.
var ErrNoTranscription = errors.New("speech-to-text not configured")

// StubInference interprets prompts with the heuristic analyzer and
// describes models from a template.
type StubInference struct{}

func (StubInference) Interpret(ctx context.Context, prompt string) (*model.RequirementSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return analyzer.Analyze(prompt), nil
}

func (StubInference) Describe(ctx context.Context, m *model.ArchitecturalModel) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m == nil {
		return "", fmt.Errorf("nil model")
	}
	names := make([]string, 0, len(m.Rooms))
	for _, r := range m.Rooms {
		names = append(names, r.Name)
	}
	floors := "single-storey"
	if m.FloorCount > 1 {
		floors = fmt.Sprintf("%d-storey", m.FloorCount)
	}
	return fmt.Sprintf("A %s %s building with %d rooms: %s. It has %d doors and %d windows.",
		floors, m.Style, len(m.Rooms), strings.Join(names, ", "), len(m.Doors), len(m.Windows)), nil
}

// StubVision reports what it was given without detecting any rooms.
type StubVision struct{}

func (StubVision) Analyze(ctx context.Context, img *model.Media) (*model.VisualAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("empty image")
	}
	return &model.VisualAnalysis{
		Tags: []string{img.MIMEType},
	}, nil
}

// StubSpeech always fails so the caller records the missing transcript.
type StubSpeech struct{}

func (StubSpeech) Transcribe(ctx context.Context, audio *model.Media) (string, error) {
	return "", ErrNoTranscription
}
