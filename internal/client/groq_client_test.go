package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archifusion/api/internal/config"
	"github.com/archifusion/api/internal/model"
)

func chatReply(content string) map[string]any {
	return map[string]any{
		"id":    "chatcmpl-1",
		"model": "llama",
		"choices": []map[string]any{
			{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	}
}

func newTestGroq(t *testing.T, handler http.HandlerFunc) *GroqClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGroqClient(&config.GroqConfig{
		APIKey:   "test-key",
		BaseURL:  srv.URL + "/",
		Model:    "llama-test",
		STTModel: "whisper-test",
	})
}

func TestGroqClient_Interpret(t *testing.T) {
	var got ChatCompletionRequest
	c := newTestGroq(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		content := "```json\n" + `{"buildingType":"Residential","rooms":[{"type":"bedroom","name":"Bedroom"},{"type":"bedroom","name":"Bedroom"},{"name":"Master Bath"}],"style":"rustic","sizeClass":"large","floorCount":0}` + "\n```"
		_ = json.NewEncoder(w).Encode(chatReply(content))
	})

	req, err := c.Interpret(context.Background(), "a cosy two bedroom cottage")
	require.NoError(t, err)

	assert.Equal(t, "llama-test", got.Model)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	assert.Equal(t, "a cosy two bedroom cottage", got.Messages[1].Content)

	assert.Equal(t, model.SourceInference, req.Source)
	assert.Equal(t, model.BuildingResidential, req.BuildingType)
	assert.Equal(t, model.StyleModern, req.Style)
	assert.Equal(t, model.SizeLarge, req.SizeClass)
	assert.Equal(t, 1, req.FloorCount)
	require.Len(t, req.Rooms, 3)
	assert.Equal(t, "Bedroom 2", req.Rooms[1].Name)
	assert.Equal(t, model.RoomBathroom, req.Rooms[2].Type)
}

func TestGroqClient_InterpretBadJSON(t *testing.T) {
	c := newTestGroq(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatReply("I cannot help with that"))
	})

	_, err := c.Interpret(context.Background(), "house")
	assert.Error(t, err)
}

func TestGroqClient_StatusError(t *testing.T) {
	c := newTestGroq(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"overloaded"}`))
	})

	_, err := c.Interpret(context.Background(), "house")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestGroqClient_Describe(t *testing.T) {
	c := newTestGroq(t, func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Nil(t, req.ResponseFormat)
		assert.Contains(t, req.Messages[1].Content, `"Kitchen"`)
		_ = json.NewEncoder(w).Encode(chatReply("  A bright kitchen.  "))
	})

	m := &model.ArchitecturalModel{Rooms: []model.Room{{Name: "Kitchen", Type: model.RoomKitchen, Width: 3, Length: 4, Height: 3}}}
	desc, err := c.Describe(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, "A bright kitchen.", desc)
}

func TestGroqClient_Transcribe(t *testing.T) {
	c := newTestGroq(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-test", r.FormValue("model"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, []byte("RIFFfake"), data)
		assert.Equal(t, "audio.wav", hdr.Filename)

		_ = json.NewEncoder(w).Encode(TranscriptionResponse{Text: " three bedroom house "})
	})

	text, err := c.Transcribe(context.Background(), &model.Media{Data: []byte("RIFFfake"), MIMEType: "audio/wav"})
	require.NoError(t, err)
	assert.Equal(t, "three bedroom house", text)
}

func TestGroqClient_HonoursContext(t *testing.T) {
	block := make(chan struct{})
	c := newTestGroq(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-block:
		}
	})
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Interpret(ctx, "house")
	assert.Error(t, err)
}

func TestGroqClient_IsConfigured(t *testing.T) {
	assert.False(t, NewGroqClient(&config.GroqConfig{}).IsConfigured())
	assert.True(t, NewGroqClient(&config.GroqConfig{APIKey: "k"}).IsConfigured())
}
