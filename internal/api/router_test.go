package api

import (
	"bytes"
	"encoding/json"
	"hash/fnv"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dogkeeper886/mem0/internal/embedding"
	"github.com/dogkeeper886/mem0/internal/memory"
	"github.com/dogkeeper886/mem0/internal/models"
	"github.com/dogkeeper886/mem0/internal/project"
	"github.com/dogkeeper886/mem0/internal/vectorstore"
)

const testDim = 8

func fakeOllamaServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			json.NewEncoder(w).Encode(map[string]any{"models": []any{}})
		case "/api/embeddings":
			var req struct {
				Prompt string `json:"prompt"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			vec := make([]float32, testDim)
			for _, word := range strings.Fields(req.Prompt) {
				h := fnv.New32a()
				h.Write([]byte(word))
				vec[h.Sum32()%(testDim-1)]++
			}
			vec[testDim-1] = 0.25
			json.NewEncoder(w).Encode(map[string]any{"embedding": vec})
		default:
			http.NotFound(w, r)
		}
	}))
}

func setupRouter(t *testing.T, apiKey string) (*httptest.Server, string) {
	t.Helper()
	ollamaSrv := fakeOllamaServer()
	t.Cleanup(ollamaSrv.Close)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	svc := memory.NewService(
		embedding.NewOllamaClient(ollamaSrv.URL, "nomic-embed-text", testDim, logger),
		vectorstore.NewChromemIndex(logger),
		project.NewResolver(nil, logger),
		memory.Options{Collection: "api_test", Logger: logger},
	)

	workDir := t.TempDir()
	router := NewRouter(svc, project.Env{WorkDir: workDir, SessionID: "s1"}, prometheus.NewRegistry(), apiKey, logger)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, workDir
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := setupRouter(t, "")

	resp := doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}

	var health models.HealthResponse
	json.NewDecoder(resp.Body).Decode(&health)
	if health.Status != "healthy" {
		t.Fatalf("expected healthy, got %s", health.Status)
	}
	if health.Services["embedding"].Status != "healthy" {
		t.Fatalf("expected embedding healthy, got %+v", health.Services)
	}
}

func TestAddSearchListDelete(t *testing.T) {
	srv, workDir := setupRouter(t, "")

	resp := doJSON(t, http.MethodPost, srv.URL+"/memories", models.AddRequest{
		Texts:    []string{"run migrations with goose up", "the api listens on port 8765"},
		UserID:   "alice",
		Metadata: map[string]any{"project_id": "forged", "source": "test"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var added models.AddResponse
	json.NewDecoder(resp.Body).Decode(&added)
	if len(added.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(added.Results))
	}
	wantProject := project.ProjectID(workDir)
	if got := added.Results[0].Metadata.ProjectID; got != wantProject {
		t.Fatalf("expected project_id %s, got %s", wantProject, got)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/memories/search", models.SearchRequest{
		Query:  "run migrations with goose up",
		UserID: "alice",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var found models.SearchResponse
	json.NewDecoder(resp.Body).Decode(&found)
	if len(found.Results) == 0 || found.Results[0].Content != "run migrations with goose up" {
		t.Fatalf("expected the migration memory first, got %+v", found.Results)
	}

	// A different work_dir is a different project.
	resp = doJSON(t, http.MethodPost, srv.URL+"/memories/search", models.SearchRequest{
		Query:   "run migrations with goose up",
		UserID:  "alice",
		WorkDir: t.TempDir(),
	})
	json.NewDecoder(resp.Body).Decode(&found)
	if len(found.Results) != 0 {
		t.Fatalf("expected no results from another project, got %d", len(found.Results))
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/memories/"+added.Results[0].ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/memories?user_id=alice", nil)
	var listed models.ListResponse
	json.NewDecoder(resp.Body).Decode(&listed)
	if len(listed.Results) != 1 {
		t.Fatalf("expected 1 memory after delete, got %d", len(listed.Results))
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/memories?user_id=alice", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, srv.URL+"/memories?user_id=alice", nil)
	json.NewDecoder(resp.Body).Decode(&listed)
	if len(listed.Results) != 0 {
		t.Fatalf("expected no memories after reset, got %d", len(listed.Results))
	}
}

func TestErrorStatusMapping(t *testing.T) {
	srv, _ := setupRouter(t, "")

	resp := doJSON(t, http.MethodPost, srv.URL+"/memories", models.AddRequest{UserID: "alice"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var body errorResponse
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Field != "texts" {
		t.Fatalf("expected field texts, got %q", body.Field)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/memories/search", models.SearchRequest{Query: "x", Scope: "everywhere"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestEnvelope(t *testing.T) {
	srv, _ := setupRouter(t, "")

	call := func(method string, params any) EnvelopeResponse {
		t.Helper()
		resp := doJSON(t, http.MethodPost, srv.URL+"/mcp", map[string]any{"method": method, "params": params})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", method, resp.StatusCode)
		}
		var out EnvelopeResponse
		json.NewDecoder(resp.Body).Decode(&out)
		return out
	}

	if out := call("ping", nil); out.Error != "" {
		t.Fatalf("ping failed: %s", out.Error)
	}

	out := call("memory/add", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "I prefer tabs"}},
		"user_id":  "bob",
	})
	if out.Error != "" {
		t.Fatalf("add failed: %s", out.Error)
	}

	out = call("memory/list", map[string]any{"user_id": "bob"})
	results := out.Result.(map[string]any)["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(results))
	}
	if content := results[0].(map[string]any)["content"]; content != "user: I prefer tabs" {
		t.Fatalf("unexpected content %q", content)
	}

	if out := call("memory/delete", map[string]any{"memory_id": "nonexistent-id"}); out.Error != "" {
		t.Fatalf("delete of unknown id failed: %s", out.Error)
	}
	if out := call("memory/delete", map[string]any{}); out.Kind != "invalid_input" {
		t.Fatalf("expected invalid_input, got %+v", out)
	}
	if out := call("memory/reset", map[string]any{"user_id": "bob"}); out.Error != "" {
		t.Fatalf("reset failed: %s", out.Error)
	}

	dir := t.TempDir()
	out = call("project/context", map[string]any{"work_dir": dir})
	if got := out.Result.(map[string]any)["project_id"]; got != project.ProjectID(dir) {
		t.Fatalf("expected project_id %s, got %v", project.ProjectID(dir), got)
	}

	if out := call("memory/frobnicate", nil); !strings.Contains(out.Error, "unknown method") {
		t.Fatalf("expected unknown method error, got %+v", out)
	}
}

func TestLegacyRoutes(t *testing.T) {
	srv, _ := setupRouter(t, "")

	resp := doJSON(t, http.MethodPost, srv.URL+"/memory/add?user_id=carol", []models.Message{
		{Role: "user", Content: "deploys happen on fridays"},
	})
	var out EnvelopeResponse
	json.NewDecoder(resp.Body).Decode(&out)
	if out.Error != "" {
		t.Fatalf("legacy add failed: %s", out.Error)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/memory/search?query=deploys&user_id=carol&limit=3", nil)
	json.NewDecoder(resp.Body).Decode(&out)
	results := out.Result.(map[string]any)["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestBearerAuth(t *testing.T) {
	srv, _ := setupRouter(t, "secret")

	resp := doJSON(t, http.MethodGet, srv.URL+"/memories", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/memories", nil)
	req.Header.Set("Authorization", "Bearer secret")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", authed.StatusCode)
	}

	// Health stays open.
	health := doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	if health.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", health.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := setupRouter(t, "")

	doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	resp := doJSON(t, http.MethodGet, srv.URL+"/metrics", nil)
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `claude_memory_http_requests_total{method="GET",route="/health",status="200"} 1`) {
		t.Fatalf("expected request counter in metrics output, got:\n%s", body)
	}
}
