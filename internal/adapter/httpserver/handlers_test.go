package httpserver_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aipkg "github.com/johnmichaelkuczynski/texteval/internal/adapter/ai"
	"github.com/johnmichaelkuczynski/texteval/internal/adapter/httpserver"
	"github.com/johnmichaelkuczynski/texteval/internal/adapter/repo/memory"
	"github.com/johnmichaelkuczynski/texteval/internal/app"
	"github.com/johnmichaelkuczynski/texteval/internal/config"
	"github.com/johnmichaelkuczynski/texteval/internal/domain"
	"github.com/johnmichaelkuczynski/texteval/internal/usecase"
)

type scriptedAI struct {
	reply string
	err   error
}

func (s *scriptedAI) CallLLM(ctx context.Context, p domain.Provider, prompt, system string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func testConfig() config.Config {
	return config.Config{
		AppEnv:           "test",
		ChunkSize:        1000,
		MaxBodyBytes:     1 << 20,
		CORSAllowOrigins: "*",
		RateLimitPerMin:  1000,
	}
}

func newTestHandler(t *testing.T, ai domain.AIClient) (http.Handler, *memory.Store) {
	t.Helper()
	cfg := testConfig()
	store := memory.NewStore(16)
	analyze := usecase.NewAnalyzeService(ai, store, aipkg.NewPromptBuilder(), time.Millisecond)
	analyze.Sleep = func(context.Context, time.Duration) error { return nil }
	srv := httpserver.NewServer(cfg, analyze, usecase.NewResultService(store), nil)
	return app.BuildRouter(cfg, srv), store
}

func goodReply() string {
	return `{"summary": "fine work", "overallScore": 81, "questions": [{"question": "q", "answer": "a", "score": 81}], "finalAssessment": "fa"}`
}

func postJSON(t *testing.T, h http.Handler, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, body *bytes.Buffer) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body.Bytes(), &env))
	return env.Error.Code
}

func TestChunkEndpoint(t *testing.T) {
	h, _ := newTestHandler(t, &scriptedAI{})

	words := make([]string, 250)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	body := fmt.Sprintf(`{"text": %q, "chunkSize": 100}`, strings.Join(words, " "))
	rec := postJSON(t, h, "/v1/chunk", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Chunks    []domain.Chunk `json:"chunks"`
		WordCount int            `json:"wordCount"`
		Needed    bool           `json:"needed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Chunks, 3)
	assert.Equal(t, 250, resp.WordCount)
	assert.True(t, resp.Needed)
	assert.Equal(t, "Chunk 1", resp.Chunks[0].Title)
}

func TestChunkEndpointValidation(t *testing.T) {
	h, _ := newTestHandler(t, &scriptedAI{})

	rec := postJSON(t, h, "/v1/chunk", `{"chunkSize": 100}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARGUMENT", decodeError(t, rec.Body))

	rec = postJSON(t, h, "/v1/chunk", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeEndpointBlockingJSON(t *testing.T) {
	h, store := newTestHandler(t, &scriptedAI{reply: goodReply()})

	body := `{"text": "evaluate this", "mode": "cognitive-short", "llmProvider": "openai"}`
	rec := postJSON(t, h, "/v1/analyze", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res domain.AnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 81, res.OverallScore)
	assert.NotEmpty(t, res.ID)

	stored, err := store.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.ID, stored.ID)
}

func TestAnalyzeEndpointErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		ai       *scriptedAI
		body     string
		wantCode int
		wantErr  string
	}{
		{
			"invalid mode", &scriptedAI{reply: goodReply()},
			`{"text": "t", "mode": "bogus", "llmProvider": "openai"}`,
			http.StatusBadRequest, "INVALID_ARGUMENT",
		},
		{
			"provider failure", &scriptedAI{err: fmt.Errorf("%w: upstream", domain.ErrProviderCall)},
			`{"text": "t", "mode": "cognitive-short", "llmProvider": "openai"}`,
			http.StatusServiceUnavailable, "PROVIDER_CALL_FAILED",
		},
		{
			"unparseable reply", &scriptedAI{reply: "no json at all"},
			`{"text": "t", "mode": "cognitive-short", "llmProvider": "openai"}`,
			http.StatusServiceUnavailable, "SCHEMA_INVALID",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newTestHandler(t, tc.ai)
			rec := postJSON(t, h, "/v1/analyze", tc.body, nil)
			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, tc.wantErr, decodeError(t, rec.Body))
		})
	}
}

func TestAnalyzeEndpointSSE(t *testing.T) {
	h, _ := newTestHandler(t, &scriptedAI{reply: goodReply()})
	ts := httptest.NewServer(h)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/analyze",
		strings.NewReader(`{"text": "evaluate this", "mode": "cognitive-short", "llmProvider": "openai"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	events := readSSEEvents(t, resp.Body)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventStatus, events[0].Type)
	assert.Equal(t, "initialization", events[0].Phase)

	last := events[len(events)-1]
	require.Equal(t, domain.EventComplete, last.Type)
	require.NotNil(t, last.Result)
	assert.Equal(t, 81, last.Result.OverallScore)
	assert.NotEmpty(t, last.Result.ID)
}

func TestAnalyzeEndpointSSEValidationError(t *testing.T) {
	h, _ := newTestHandler(t, &scriptedAI{reply: goodReply()})
	ts := httptest.NewServer(h)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/analyze",
		strings.NewReader(`{"text": "t", "mode": "bogus", "llmProvider": "openai"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := readSSEEvents(t, resp.Body)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, domain.EventError, last.Type)
	assert.Contains(t, last.Error, "unknown mode")
}

func TestResultEndpoint(t *testing.T) {
	h, store := newTestHandler(t, &scriptedAI{})
	res := domain.AnalysisResult{ID: "r1", Summary: "s", OverallScore: 66}
	require.NoError(t, store.Put(context.Background(), res))

	req := httptest.NewRequest(http.MethodGet, "/v1/result/r1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.AnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 66, got.OverallScore)
}

func TestResultEndpointNotFound(t *testing.T) {
	h, _ := newTestHandler(t, &scriptedAI{})
	req := httptest.NewRequest(http.MethodGet, "/v1/result/missing", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec.Body))
}

func TestExportEndpoint(t *testing.T) {
	h, store := newTestHandler(t, &scriptedAI{})
	res := domain.AnalysisResult{
		ID: "r2", Mode: domain.ModeCognitiveShort, Provider: domain.ProviderOpenAI,
		Summary: "exported summary", OverallScore: 73,
	}
	require.NoError(t, store.Put(context.Background(), res))

	req := httptest.NewRequest(http.MethodGet, "/v1/result/r2/export", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `analysis-r2.txt`)
	assert.Contains(t, rec.Body.String(), "TEXT EVALUATION REPORT")
	assert.Contains(t, rec.Body.String(), "exported summary")
}

func TestHealthz(t *testing.T) {
	h, _ := newTestHandler(t, &scriptedAI{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzStoreFailure(t *testing.T) {
	cfg := testConfig()
	store := memory.NewStore(16)
	analyze := usecase.NewAnalyzeService(&scriptedAI{}, store, aipkg.NewPromptBuilder(), time.Millisecond)
	srv := httpserver.NewServer(cfg, analyze, usecase.NewResultService(store), func(context.Context) error {
		return errors.New("store down")
	})
	h := app.BuildRouter(cfg, srv)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// readSSEEvents parses a server-sent-event stream into its data payloads.
func readSSEEvents(t *testing.T, r io.Reader) []domain.ProgressEvent {
	t.Helper()
	var events []domain.ProgressEvent
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev domain.ProgressEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}
