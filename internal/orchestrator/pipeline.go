package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/archifusion/api/internal/client"
	"github.com/archifusion/api/internal/executor"
	"github.com/archifusion/api/internal/model"
	"github.com/archifusion/api/internal/synthesizer"
)

// State is a pipeline stage.
type State string

const (
	StateInterpreting State = "interpreting"
	StateDesigning    State = "designing"
	StateRendering    State = "rendering"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// PipelineResult carries everything the stages produced.
type PipelineResult struct {
	Requirements *model.RequirementSet
	Model        *model.ArchitecturalModel
	Description  string
}

// StageError reports the stage a pipeline run failed in.
type StageError struct {
	State State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline failed while %s: %v", e.State, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Pipeline runs Interpreting, Designing and Rendering in order. Each stage
// is bounded by the stage deadline and is never retried.
type Pipeline struct {
	inference client.Inference
	exec      *executor.Executor
	logger    *zap.Logger
}

func NewPipeline(inference client.Inference, exec *executor.Executor, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{inference: inference, exec: exec, logger: logger}
}

// Run drives the state machine. onTransition sees every state entered,
// including the final Done or Failed.
func (p *Pipeline) Run(ctx context.Context, prompt string, visual *model.VisualAnalysis, onTransition func(State)) (*PipelineResult, error) {
	if onTransition == nil {
		onTransition = func(State) {}
	}

	var res PipelineResult
	state := StateInterpreting
	for state != StateDone {
		onTransition(state)

		var err error
		switch state {
		case StateInterpreting:
			res.Requirements, err = executor.Run(ctx, p.exec, executor.TierStage, "pipeline.interpreting",
				func(ctx context.Context) (*model.RequirementSet, error) {
					return p.inference.Interpret(ctx, prompt)
				})
			if err == nil && res.Requirements == nil {
				err = model.NewError(model.KindUpstreamFailure, "pipeline.interpreting", "no requirements returned")
			}

		case StateDesigning:
			req := res.Requirements
			res.Model, err = executor.Run(ctx, p.exec, executor.TierStage, "pipeline.designing",
				func(ctx context.Context) (*model.ArchitecturalModel, error) {
					return synthesizer.Synthesize(req, visual)
				})
			if err == nil && len(res.Model.Rooms) == 0 {
				err = model.NewError(model.KindUpstreamFailure, "pipeline.designing", "designed model has no rooms")
			}

		case StateRendering:
			m := res.Model
			res.Description, err = executor.Run(ctx, p.exec, executor.TierStage, "pipeline.rendering",
				func(ctx context.Context) (string, error) {
					return p.inference.Describe(ctx, m)
				})
		}

		if err != nil {
			onTransition(StateFailed)
			p.logger.Warn("pipeline failed", zap.String("stage", string(state)), zap.Error(err))
			return nil, &StageError{State: state, Err: err}
		}
		state = next(state)
	}

	onTransition(StateDone)
	return &res, nil
}

func next(s State) State {
	switch s {
	case StateInterpreting:
		return StateDesigning
	case StateDesigning:
		return StateRendering
	default:
		return StateDone
	}
}
