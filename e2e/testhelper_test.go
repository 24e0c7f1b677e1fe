package e2e

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/archifusion/api/internal/client"
	"github.com/archifusion/api/internal/config"
	"github.com/archifusion/api/internal/executor"
	"github.com/archifusion/api/internal/metrics"
	"github.com/archifusion/api/internal/orchestrator"
	"github.com/archifusion/api/internal/server"
	"github.com/archifusion/api/internal/service"
	"github.com/archifusion/api/internal/store"
	"github.com/archifusion/api/internal/websocket"
	"github.com/archifusion/api/internal/worker"
)

// A 1x1 PNG header; enough for content sniffing.
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

var pngBase64 = base64.StdEncoding.EncodeToString(pngBytes)

// testApp holds all components needed for testing
type testApp struct {
	app   *fiber.App
	store *store.JobStore
	redis *miniredis.Miniredis
}

type appOption func(*config.Config)

func withJobsPerMin(n int) appOption {
	return func(c *config.Config) { c.RateLimit.JobsPerMin = n }
}

// setupApp creates a Fiber app wired like main.go. Upstreams are unconfigured
// so every capability runs on its local stub, and rate limits live in miniredis.
func setupApp(t *testing.T, opts ...appOption) *testApp {
	t.Helper()

	cfg := &config.Config{
		Server:    config.ServerConfig{Env: "test"},
		RateLimit: config.RateLimitConfig{JobsPerMin: 10000, QuickPerMin: 10000},
		Limits:    config.LimitsConfig{MaxImageBytes: 1 << 20, MaxAudioBytes: 1 << 20, BodyLimit: 4 << 20},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	log := zaptest.NewLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	m := metrics.New()
	caps := client.NewCapabilities(cfg, nil, log)
	exec, err := executor.New(executor.Timeouts{
		Speech: time.Second,
		Text:   time.Second,
		Visual: time.Second,
		Job:    5 * time.Second,
		Stage:  time.Second,
	}, m, log)
	if err != nil {
		t.Fatalf("executor: %v", err)
	}

	jobs := store.New(time.Hour, log)
	hub := websocket.NewHub(log)
	go hub.Run(ctx)

	jobWorker := worker.NewJobWorker(orchestrator.NewGenerator(caps, exec, m, log), jobs, m, log)
	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		jobWorker.Shutdown(shutdownCtx)
	})

	svc := service.NewJobService(jobs, jobWorker, service.NewValidator(), cfg.Limits, m, log)

	app := server.NewApp(server.Deps{
		Config:       cfg,
		Service:      svc,
		Hub:          hub,
		Capabilities: caps,
		Redis:        redisClient,
		Metrics:      m,
		Logger:       log,
	})

	return &testApp{app: app, store: jobs, redis: mr}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// assertErrorCode checks the envelope's error code.
func assertErrorCode(t *testing.T, body map[string]interface{}, expected string) {
	t.Helper()
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected 'error' object in response, got %v", body)
	}
	if errObj["code"] != expected {
		t.Errorf("expected error code %q, got %v", expected, errObj["code"])
	}
}

// submitJob posts a bundle and returns the job id.
func submitJob(t *testing.T, app *fiber.App, body string) string {
	t.Helper()
	resp, err := doRequest(app, http.MethodPost, "/jobs", body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)
	result := parseJSON(t, resp)
	id, _ := result["jobId"].(string)
	if id == "" {
		t.Fatalf("expected 'jobId' in response, got %v", result)
	}
	return id
}

// waitForJob polls GET /jobs/:id until the job is terminal.
func waitForJob(t *testing.T, app *fiber.App, id string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := doRequest(app, http.MethodGet, "/jobs/"+id, "", nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		body := parseJSON(t, resp)
		if s := body["status"]; s == "completed" || s == "failed" {
			return body
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish in time", id)
	return nil
}

// readEvents parses a server-sent event body into JSON objects.
func readEvents(t *testing.T, resp *http.Response) []map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()

	var events []map[string]interface{}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]interface{}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad event %q: %v", line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("failed to read stream: %v", err)
	}
	return events
}
