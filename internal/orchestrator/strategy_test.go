package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archifusion/api/internal/model"
)

func TestSelectStrategy(t *testing.T) {
	audio := &model.Media{Data: []byte("RIFF"), MIMEType: "audio/wav"}

	tests := []struct {
		name string
		in   *model.DecodedInput
		want model.Strategy
	}{
		{"text only", &model.DecodedInput{Text: "a house"}, model.StrategyTextOnly},
		{"transcript only", &model.DecodedInput{SpeechTranscript: "a house"}, model.StrategyTextOnly},
		{"audio only", &model.DecodedInput{SpeechAudio: audio}, model.StrategyTextOnly},
		{"sketch only", &model.DecodedInput{Sketch: image()}, model.StrategyVisualOnly},
		{"photo only", &model.DecodedInput{Photo: image()}, model.StrategyVisualOnly},
		{"text and sketch", &model.DecodedInput{Text: "a house", Sketch: image()}, model.StrategyParallel},
		{"audio and photo", &model.DecodedInput{SpeechAudio: audio, Photo: image()}, model.StrategyParallel},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SelectStrategy(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSelectStrategy_RejectsEmpty(t *testing.T) {
	for _, in := range []*model.DecodedInput{nil, {}, {Text: "   "}} {
		_, err := SelectStrategy(in)
		require.Error(t, err)
		assert.True(t, model.IsKind(err, model.KindValidation))
	}
}
