package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/archifusion/api/internal/config"
	"github.com/archifusion/api/internal/model"
)

const visionSystemPrompt = `You analyze architectural sketches, floor plans and building photographs.
Return ONLY a JSON object with this shape:
{
  "description": "<one or two sentences>",
  "tags": ["<short tag>", ...],
  "detectedRooms": [
    {"type": "<room type>", "name": "<label if visible>", "boundingBox": {"x": 0, "y": 0, "width": 0, "height": 0}, "confidence": 0.0}
  ],
  "style": "modern" | "traditional" | "industrial" | ""
}
Room types: bedroom, bathroom, kitchen, living, dining, office, garage, basement, attic, utility, meeting, reception.
Bounding boxes are in metres on the floor plane with the origin at the top-left corner of the plan.
Photos without a visible plan have an empty detectedRooms list.
No prose outside the JSON.`

// GeminiClient analyzes images with a Gemini multimodal model.
type GeminiClient struct {
	apiKey string
	model  string
}

func NewGeminiClient(cfg *config.GeminiConfig) *GeminiClient {
	return &GeminiClient{
		apiKey: strings.TrimSpace(cfg.APIKey),
		model:  strings.TrimSpace(cfg.Model),
	}
}

// Analyze returns the detected rooms, tags and style of img.
func (c *GeminiClient) Analyze(ctx context.Context, img *model.Media) (*model.VisualAnalysis, error) {
	if c.apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	if img == nil || len(img.Data) == 0 {
		return nil, errors.New("empty image")
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(c.model)
	if m == nil {
		return nil, fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(visionSystemPrompt)},
	}

	parts := []genai.Part{
		genai.Text("Analyze this image. Answer strictly in JSON."),
		&genai.Blob{MIMEType: img.MIMEType, Data: img.Data},
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini analyze: %w", err)
	}
	txt := firstText(resp)
	if txt == "" {
		return nil, fmt.Errorf("gemini analyze: empty response")
	}
	return ParseVisualAnalysis(txt)
}

// ParseVisualAnalysis decodes a model answer and normalizes room types and style.
func ParseVisualAnalysis(raw string) (*model.VisualAnalysis, error) {
	var out struct {
		Description   string               `json:"description"`
		Tags          []string             `json:"tags"`
		DetectedRooms []model.DetectedRoom `json:"detectedRooms"`
		Style         string               `json:"style"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return nil, fmt.Errorf("vision: bad JSON: %w", err)
	}

	va := &model.VisualAnalysis{
		Description:   strings.TrimSpace(out.Description),
		Tags:          out.Tags,
		DetectedRooms: out.DetectedRooms,
	}
	if s, ok := model.ParseStyle(out.Style); ok {
		va.Style = s
	}
	for i := range va.DetectedRooms {
		r := &va.DetectedRooms[i]
		label := string(r.Type)
		if label == "" {
			label = r.Name
		}
		r.Type = model.ParseRoomType(label)
	}
	return va, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }

// IsConfigured returns true if the client has an API key
func (c *GeminiClient) IsConfigured() bool {
	return c.apiKey != ""
}
