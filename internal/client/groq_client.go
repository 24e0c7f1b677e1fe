package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/archifusion/api/internal/config"
	"github.com/archifusion/api/internal/model"
)

// GroqClient handles communication with the Groq API. It serves both text
// inference (chat completions) and speech-to-text (audio transcriptions).
type GroqClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	sttModel   string
}

// ChatMessage represents a message in the chat completion request
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat asks the model for a JSON object
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatCompletionRequest represents the request body for chat completion
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ChatCompletionResponse represents the response from chat completion
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// TranscriptionResponse is the JSON body of /audio/transcriptions
type TranscriptionResponse struct {
	Text string `json:"text"`
}

const interpretSystemPrompt = `You are an architectural requirements analyst.
Read the user's description of a building and return ONLY a JSON object with this shape:
{
  "buildingType": "residential" | "commercial" | "hospitality",
  "rooms": [{"type": "<room type>", "name": "<unique display name>"}],
  "style": "modern" | "traditional" | "industrial",
  "sizeClass": "small" | "medium" | "large",
  "floorCount": <integer >= 1>
}
Room types: bedroom, bathroom, kitchen, living, dining, office, garage, basement, attic, utility, meeting, reception.
Repeated rooms get numbered names such as "Bedroom 1" and "Bedroom 2".
Include the essential rooms a building of that type needs even if they are not mentioned.
No prose, no markdown.`

const describeSystemPrompt = `You are an architect presenting a floor plan to a client.
Given the JSON model of a building, write a short description (at most 120 words) of its layout, flow and style.
Plain prose only.`

// NewGroqClient creates a new Groq API client
func NewGroqClient(cfg *config.GroqConfig) *GroqClient {
	return &GroqClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		sttModel: cfg.STTModel,
	}
}

// ChatCompletion sends a chat completion request to Groq
func (c *GroqClient) ChatCompletion(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	reqBody := ChatCompletionRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
		MaxTokens:   1024,
	}
	if jsonMode {
		reqBody.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	respBody, err := c.do(req)
	if err != nil {
		return "", err
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// Interpret asks the model for a structured RequirementSet.
func (c *GroqClient) Interpret(ctx context.Context, prompt string) (*model.RequirementSet, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("empty prompt")
	}
	content, err := c.ChatCompletion(ctx, interpretSystemPrompt, prompt, true)
	if err != nil {
		return nil, err
	}

	var req model.RequirementSet
	if err := json.Unmarshal([]byte(extractJSON(content)), &req); err != nil {
		return nil, fmt.Errorf("groq interpret: bad JSON: %w", err)
	}
	req.Source = model.SourceInference
	req.Normalize()
	return &req, nil
}

// Describe asks the model for a prose summary of m.
func (c *GroqClient) Describe(ctx context.Context, m *model.ArchitecturalModel) (string, error) {
	if m == nil {
		return "", fmt.Errorf("nil model")
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal model: %w", err)
	}
	content, err := c.ChatCompletion(ctx, describeSystemPrompt, string(payload), false)
	if err != nil {
		return "", err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("groq describe: empty response")
	}
	return content, nil
}

// Transcribe uploads audio to the Whisper-compatible transcription endpoint.
func (c *GroqClient) Transcribe(ctx context.Context, audio *model.Media) (string, error) {
	if audio == nil || len(audio.Data) == 0 {
		return "", fmt.Errorf("empty audio")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	mt := mimetype.Lookup(audio.MIMEType)
	if mt == nil {
		mt = mimetype.Detect(audio.Data)
	}
	filename := "audio" + mt.Extension()
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}
	_ = w.WriteField("model", c.sttModel)
	_ = w.WriteField("response_format", "json")
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	respBody, err := c.do(req)
	if err != nil {
		return "", err
	}

	var tr TranscriptionResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return "", fmt.Errorf("failed to unmarshal transcription: %w", err)
	}
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return "", fmt.Errorf("groq transcribe: empty transcript")
	}
	return text, nil
}

func (c *GroqClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("groq API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *GroqClient) IsConfigured() bool {
	return c.apiKey != ""
}
