package orchestrator

import (
	"github.com/archifusion/api/internal/model"
)

// SelectStrategy classifies the modality combination.
func SelectStrategy(in *model.DecodedInput) (model.Strategy, error) {
	if in == nil {
		return "", model.NewValidationError("select_strategy", "no input supplied", nil)
	}
	hasText, hasVisual := in.HasText(), in.HasVisual()
	switch {
	case hasText && hasVisual:
		return model.StrategyParallel, nil
	case hasText:
		return model.StrategyTextOnly, nil
	case hasVisual:
		return model.StrategyVisualOnly, nil
	default:
		return "", model.NewValidationError("select_strategy", "at least one of text, sketchImage, speechTranscript, photoImage or speechAudio is required", nil)
	}
}
