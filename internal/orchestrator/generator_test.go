package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archifusion/api/internal/analyzer"
	"github.com/archifusion/api/internal/executor"
	"github.com/archifusion/api/internal/model"
	"github.com/archifusion/api/internal/synthesizer"
)

func TestGenerate_ScenarioA_TwoBedroomHouse(t *testing.T) {
	g := newGenerator(t, testTimeouts(), failingInference(), nil, nil)

	out, err := g.Generate(context.Background(), &model.DecodedInput{Text: "Create a simple 2-bedroom house"}, nil)
	require.NoError(t, err)

	assert.Equal(t, model.StrategyTextOnly, out.Strategy)
	assert.Equal(t, model.SourceHeuristic, out.Requirements.Source)
	require.GreaterOrEqual(t, len(out.Model.Rooms), 5)

	bedrooms := 0
	for _, r := range out.Requirements.Rooms {
		if r.Type == model.RoomBedroom {
			bedrooms++
		}
	}
	assert.Equal(t, 2, bedrooms)

	require.Len(t, out.Model.Doors, len(out.Model.Rooms)-1)
	for i := 1; i < len(out.Model.Rooms); i++ {
		n := 0
		for _, d := range out.Model.Doors {
			if d.From == out.Model.Rooms[i-1].Name && d.To == out.Model.Rooms[i].Name {
				n++
			}
		}
		assert.Equal(t, 1, n)
	}

	assert.Equal(t, []string{StageInference, StagePipeline + ".interpreting"}, stages(out))
	for _, d := range out.Degradations {
		assert.Equal(t, model.KindUpstreamFailure, d.Kind)
	}
}

func TestGenerate_ScenarioB_Commercial(t *testing.T) {
	g := newGenerator(t, testTimeouts(), failingInference(), nil, nil)

	out, err := g.Generate(context.Background(), &model.DecodedInput{Text: "modern office with meeting room"}, nil)
	require.NoError(t, err)

	assert.Equal(t, model.BuildingCommercial, out.Requirements.BuildingType)
	types := map[model.RoomType]bool{}
	for _, r := range out.Model.Rooms {
		types[r.Type] = true
	}
	assert.True(t, types[model.RoomOffice])
	assert.True(t, types[model.RoomMeeting])
	assert.True(t, types[model.RoomReception])
}

func TestGenerate_ScenarioC_PhotoOnlyVisionFails(t *testing.T) {
	inf := &fakeInference{}
	g := newGenerator(t, testTimeouts(), inf, failingVision(), nil)

	out, err := g.Generate(context.Background(), &model.DecodedInput{Photo: image()}, nil)
	require.NoError(t, err)

	assert.Equal(t, model.StrategyVisualOnly, out.Strategy)
	assert.Equal(t, model.BuildingResidential, out.Requirements.BuildingType)
	want := analyzer.DefaultRooms(model.BuildingResidential)
	require.Len(t, out.Model.Rooms, len(want))
	for i, r := range out.Model.Rooms {
		assert.Equal(t, want[i], r.Type)
	}
	assert.Equal(t, int32(0), inf.interpretCalls.Load(), "empty visual evidence goes straight to the analyzer")
	assert.Equal(t, []string{StageVisual}, stages(out))
}

func TestGenerate_ScenarioC_EmptyAnalysis(t *testing.T) {
	empty := &fakeVision{analyze: func(ctx context.Context, img *model.Media) (*model.VisualAnalysis, error) {
		return &model.VisualAnalysis{}, nil
	}}
	g := newGenerator(t, testTimeouts(), nil, empty, nil)

	out, err := g.Generate(context.Background(), &model.DecodedInput{Photo: image()}, nil)
	require.NoError(t, err)
	assert.Len(t, out.Model.Rooms, 4)
	require.Len(t, out.Degradations, 1)
	assert.Equal(t, StageVisual, out.Degradations[0].Stage)
}

func TestGenerate_ScenarioD_SketchTimeoutKeepsTextModel(t *testing.T) {
	text := "a 3 bedroom traditional house with a garage"
	g := newGenerator(t, testTimeouts(), nil, blockingVision(), nil)

	start := time.Now()
	out, err := g.Generate(context.Background(), &model.DecodedInput{Text: text, Sketch: image()}, nil)
	elapsed := time.Since(start)
	require.NoError(t, err)

	expected, err := synthesizer.Synthesize(analyzer.Analyze(text), nil)
	require.NoError(t, err)
	assert.Equal(t, expected, out.Model)
	assert.Equal(t, model.StrategyParallel, out.Strategy)
	assert.Nil(t, out.Visual)

	require.Len(t, out.Degradations, 1)
	assert.Equal(t, StageVisual, out.Degradations[0].Stage)
	assert.Equal(t, model.KindUpstreamTimeout, out.Degradations[0].Kind)
	assert.Contains(t, out.Degradations[0].Reason, "text-only model used")

	assert.Less(t, elapsed, testTimeouts().Text+500*time.Millisecond)
}

func TestGenerate_ParallelNeverWaitsForSlowVisual(t *testing.T) {
	tt := testTimeouts()
	tt.Text = 100 * time.Millisecond
	tt.Visual = 3 * time.Second
	tt.Stage = 100 * time.Millisecond

	slowText := &fakeInference{interpret: func(ctx context.Context, prompt string, call int32) (*model.RequirementSet, error) {
		select {
		case <-time.After(60 * time.Millisecond):
			return analyzer.Analyze(prompt), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	g := newGenerator(t, tt, slowText, blockingVision(), nil)

	start := time.Now()
	out, err := g.Generate(context.Background(), &model.DecodedInput{Text: "two bedroom flat", Photo: image()}, nil)
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Less(t, elapsed, tt.Text+400*time.Millisecond)
	assert.NotEmpty(t, out.Model.Rooms)
	assert.Equal(t, model.SourceHeuristic, out.Requirements.Source)
}

func TestGenerate_ParallelVisualOverridesLayoutAndStyle(t *testing.T) {
	vis := &fakeVision{analyze: func(ctx context.Context, img *model.Media) (*model.VisualAnalysis, error) {
		return &model.VisualAnalysis{
			Description: "loft conversion",
			Style:       model.StyleIndustrial,
			DetectedRooms: []model.DetectedRoom{
				{Type: model.RoomLiving, BoundingBox: model.BoundingBox{X: 0, Y: 0, Width: 6, Height: 5}, Confidence: 0.9},
				{Type: model.RoomKitchen, BoundingBox: model.BoundingBox{X: 6, Y: 0, Width: 3, Height: 5}, Confidence: 0.8},
			},
		}, nil
	}}
	g := newGenerator(t, testTimeouts(), nil, vis, nil)

	out, err := g.Generate(context.Background(), &model.DecodedInput{Text: "modern 2 bedroom flat", Sketch: image()}, nil)
	require.NoError(t, err)

	require.Len(t, out.Model.Rooms, 2)
	assert.Equal(t, 6.0, out.Model.Rooms[1].X)
	assert.Equal(t, model.StyleIndustrial, out.Model.Style)
	assert.Empty(t, out.Degradations)
	require.NotNil(t, out.Visual)
}

func TestGenerate_UnusableVisualLayoutIsRecorded(t *testing.T) {
	vis := &fakeVision{analyze: func(ctx context.Context, img *model.Media) (*model.VisualAnalysis, error) {
		return &model.VisualAnalysis{DetectedRooms: []model.DetectedRoom{
			{Type: model.RoomLiving, BoundingBox: model.BoundingBox{Width: 5, Height: 5}},
			{Type: model.RoomKitchen, BoundingBox: model.BoundingBox{X: 1, Y: 1, Width: 5, Height: 5}},
		}}, nil
	}}
	g := newGenerator(t, testTimeouts(), nil, vis, nil)

	out, err := g.Generate(context.Background(), &model.DecodedInput{Text: "2 bedroom house", Sketch: image()}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{StageLayout}, stages(out))
	assert.Equal(t, "Bedroom 1", out.Model.Rooms[0].Name)
}

func TestGenerate_VisualOnlyFeedsPromptToInference(t *testing.T) {
	vis := &fakeVision{analyze: func(ctx context.Context, img *model.Media) (*model.VisualAnalysis, error) {
		return &model.VisualAnalysis{
			Description: "Hand sketch of a cottage",
			DetectedRooms: []model.DetectedRoom{
				{Type: model.RoomBedroom, BoundingBox: model.BoundingBox{X: 0, Y: 0, Width: 3, Height: 3}},
				{Type: model.RoomBedroom, BoundingBox: model.BoundingBox{X: 3, Y: 0, Width: 3, Height: 3}},
			},
		}, nil
	}}
	inf := &fakeInference{}
	g := newGenerator(t, testTimeouts(), inf, vis, nil)

	out, err := g.Generate(context.Background(), &model.DecodedInput{Sketch: image()}, nil)
	require.NoError(t, err)

	assert.Equal(t, model.StrategyVisualOnly, out.Strategy)
	assert.Contains(t, inf.prompt(), "2 bedrooms")
	assert.Contains(t, inf.prompt(), "Hand sketch of a cottage")
	assert.Len(t, out.Model.Rooms, 2, "detected layout wins")
}

func TestGenerate_VisualOnlyInferenceFailureUsesAnalyzer(t *testing.T) {
	vis := &fakeVision{analyze: func(ctx context.Context, img *model.Media) (*model.VisualAnalysis, error) {
		return &model.VisualAnalysis{Description: "three bedroom bungalow", Tags: []string{"photo"}}, nil
	}}
	g := newGenerator(t, testTimeouts(), failingInference(), vis, nil)

	out, err := g.Generate(context.Background(), &model.DecodedInput{Photo: image()}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{StageInference}, stages(out))

	bedrooms := 0
	for _, r := range out.Model.Rooms {
		if r.Type == model.RoomBedroom {
			bedrooms++
		}
	}
	assert.Equal(t, 3, bedrooms)
}

func TestGenerate_EmptyFastPathRunsPipeline(t *testing.T) {
	inf := &fakeInference{
		interpret: func(ctx context.Context, prompt string, call int32) (*model.RequirementSet, error) {
			if call == 1 {
				return &model.RequirementSet{Source: model.SourceInference}, nil
			}
			req := analyzer.Analyze("a small studio with kitchen and bathroom")
			req.Source = model.SourceInference
			return req, nil
		},
		describe: func(ctx context.Context, m *model.ArchitecturalModel) (string, error) {
			return "compact studio", nil
		},
	}
	g := newGenerator(t, testTimeouts(), inf, nil, nil)
	var p progressLog

	out, err := g.Generate(context.Background(), &model.DecodedInput{Text: "studio"}, p.fn)
	require.NoError(t, err)

	assert.Equal(t, "compact studio", out.Description)
	assert.Equal(t, model.SourceInference, out.Requirements.Source)
	assert.NotEmpty(t, out.Model.Rooms)
	assert.Equal(t, []string{StageSynthesis}, stages(out))
	assert.Equal(t, []int{5, 15, 55, 65, 75, 85}, p.values)
	assert.Equal(t, int32(2), inf.interpretCalls.Load())
}

func TestGenerate_PipelineFailureFallsBackToHeuristic(t *testing.T) {
	inf := &fakeInference{
		interpret: func(ctx context.Context, prompt string, call int32) (*model.RequirementSet, error) {
			if call == 1 {
				return nil, errUpstream
			}
			return analyzer.Analyze(prompt), nil
		},
		describe: func(ctx context.Context, m *model.ArchitecturalModel) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	g := newGenerator(t, testTimeouts(), inf, nil, nil)

	out, err := g.Generate(context.Background(), &model.DecodedInput{Text: "a 4 bedroom house"}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{StageInference, StagePipeline + ".rendering"}, stages(out))
	assert.Equal(t, model.KindUpstreamTimeout, out.Degradations[1].Kind)
	assert.Empty(t, out.Description)
	assert.Equal(t, model.SourceHeuristic, out.Requirements.Source)
}

func TestGenerate_JobDeadlineForcesHeuristic(t *testing.T) {
	tt := testTimeouts()
	tt.Text = time.Second
	tt.Job = 80 * time.Millisecond

	hung := &fakeInference{interpret: func(ctx context.Context, prompt string, call int32) (*model.RequirementSet, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	g := newGenerator(t, tt, hung, nil, nil)

	start := time.Now()
	out, err := g.Generate(context.Background(), &model.DecodedInput{Text: "large 3 bedroom villa"}, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	assert.Equal(t, []string{StageInference, StageJob}, stages(out))
	assert.Contains(t, out.Degradations[1].Reason, executor.ErrJobDeadline.Error())
	assert.Equal(t, model.KindUpstreamTimeout, out.Degradations[1].Kind)
	assert.Equal(t, model.SizeLarge, out.Requirements.SizeClass)
	assert.Equal(t, int32(1), hung.interpretCalls.Load(), "pipeline is skipped once the job deadline passed")
}

func TestGenerate_TranscribesSpeech(t *testing.T) {
	inf := &fakeInference{}
	g := newGenerator(t, testTimeouts(), inf, nil, &fakeSpeech{text: "  a three bedroom house with a garage "})

	out, err := g.Generate(context.Background(), &model.DecodedInput{SpeechAudio: &model.Media{Data: []byte("RIFF"), MIMEType: "audio/wav"}}, nil)
	require.NoError(t, err)

	assert.Equal(t, "a three bedroom house with a garage", inf.prompt())
	assert.Empty(t, out.Degradations)
	types := map[model.RoomType]int{}
	for _, r := range out.Model.Rooms {
		types[r.Type]++
	}
	assert.Equal(t, 3, types[model.RoomBedroom])
	assert.Equal(t, 1, types[model.RoomGarage])
}

func TestGenerate_FailedSpeechWithPhotoBecomesVisualOnly(t *testing.T) {
	g := newGenerator(t, testTimeouts(), nil, nil, &fakeSpeech{err: errUpstream})

	out, err := g.Generate(context.Background(), &model.DecodedInput{
		SpeechAudio: &model.Media{Data: []byte("RIFF"), MIMEType: "audio/wav"},
		Photo:       image(),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, model.StrategyVisualOnly, out.Strategy)
	assert.Equal(t, StageSpeech, out.Degradations[0].Stage)
}

func TestGenerate_ExistingTranscriptSkipsSpeech(t *testing.T) {
	sp := &fakeSpeech{err: errUpstream}
	g := newGenerator(t, testTimeouts(), nil, nil, sp)

	out, err := g.Generate(context.Background(), &model.DecodedInput{
		SpeechTranscript: "two bedroom cottage",
		SpeechAudio:      &model.Media{Data: []byte("RIFF"), MIMEType: "audio/wav"},
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, out.Degradations)
}

func TestGenerate_ProgressIsMonotonic(t *testing.T) {
	g := newGenerator(t, testTimeouts(), failingInference(), failingVision(), nil)
	var p progressLog

	_, err := g.Generate(context.Background(), &model.DecodedInput{Text: "house", Sketch: image()}, p.fn)
	require.NoError(t, err)

	require.NotEmpty(t, p.values)
	for i := 1; i < len(p.values); i++ {
		assert.GreaterOrEqual(t, p.values[i], p.values[i-1])
	}
	assert.Less(t, p.values[len(p.values)-1], 100)
	assert.Equal(t, model.JobStatusProcessing, p.statuses[0])
	assert.Equal(t, model.JobStatusAnalyzingInputs, p.statuses[1])
}

func TestGenerate_RejectsEmptyInput(t *testing.T) {
	g := newGenerator(t, testTimeouts(), nil, nil, nil)
	_, err := g.Generate(context.Background(), &model.DecodedInput{Text: "   "}, nil)
	assert.True(t, model.IsKind(err, model.KindValidation))
}

func TestMergeVisual(t *testing.T) {
	sketch := &model.VisualAnalysis{
		Description:   "plan",
		Tags:          []string{"sketch", "plan"},
		DetectedRooms: []model.DetectedRoom{{Type: model.RoomKitchen}},
		Style:         model.StyleModern,
	}
	photo := &model.VisualAnalysis{
		Description:   "brick facade",
		Tags:          []string{"photo", "plan"},
		DetectedRooms: []model.DetectedRoom{{Type: model.RoomGarage}},
		Style:         model.StyleTraditional,
	}

	m := mergeVisual(sketch, photo)
	assert.Equal(t, "plan brick facade", m.Description)
	assert.Equal(t, []string{"sketch", "plan", "photo"}, m.Tags)
	assert.Equal(t, model.RoomKitchen, m.DetectedRooms[0].Type)
	assert.Equal(t, model.StyleTraditional, m.Style)

	sketch.DetectedRooms = nil
	photo.Style = ""
	m = mergeVisual(sketch, photo)
	assert.Equal(t, model.RoomGarage, m.DetectedRooms[0].Type)
	assert.Equal(t, model.StyleModern, m.Style)

	assert.Same(t, photo, mergeVisual(nil, photo))
	assert.Nil(t, mergeVisual(nil, nil))
}

func TestGenerate_SketchAndPhotoPartialFailure(t *testing.T) {
	vis := &fakeVision{analyze: func(ctx context.Context, img *model.Media) (*model.VisualAnalysis, error) {
		if img.MIMEType == "image/jpeg" {
			return nil, errUpstream
		}
		return &model.VisualAnalysis{DetectedRooms: []model.DetectedRoom{
			{Type: model.RoomOffice, BoundingBox: model.BoundingBox{Width: 3, Height: 3}},
		}}, nil
	}}
	g := newGenerator(t, testTimeouts(), nil, vis, nil)

	out, err := g.Generate(context.Background(), &model.DecodedInput{
		Sketch: image(),
		Photo:  &model.Media{Data: []byte{0xff, 0xd8, 0xff}, MIMEType: "image/jpeg"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{StagePhoto}, stages(out))
	require.Len(t, out.Model.Rooms, 1)
	assert.Equal(t, model.RoomOffice, out.Model.Rooms[0].Type)
}

func TestQuick(t *testing.T) {
	req, m, err := Quick("two bedroom bungalow")
	require.NoError(t, err)
	assert.Equal(t, model.SourceHeuristic, req.Source)
	assert.Len(t, m.Rooms, len(req.Rooms))
}
