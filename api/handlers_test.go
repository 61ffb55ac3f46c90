package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stellarlinkco/eval-studio/internal/llm"
	"github.com/stellarlinkco/eval-studio/internal/run"
	"github.com/stellarlinkco/eval-studio/internal/store"
)

// echoProvider answers every case prompt with a fixed reply and every judge
// prompt with a fixed verdict.
type echoProvider struct {
	reply      string
	judgeReply string
}

func (p *echoProvider) Name() string  { return "echo" }
func (p *echoProvider) Model() string { return "echo-model" }

func (p *echoProvider) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	text := p.reply
	if len(req.Messages) > 0 && strings.Contains(req.Messages[len(req.Messages)-1].Content, "## Actual Response") {
		text = p.judgeReply
	}
	return &llm.Response{Content: []llm.ContentBlock{{Type: "text", Text: text}}}, nil
}

type testServer struct {
	server *Server
	store  store.Store
	worker *run.Worker
}

func newTestServer(t *testing.T, p llm.Provider) *testServer {
	t.Helper()

	gin.SetMode(gin.TestMode)
	t.Setenv("EVAL_STUDIO_API_KEY", "")
	t.Setenv("EVAL_STUDIO_DISABLE_AUTH", "true")

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	orch := run.NewOrchestrator(p, st, run.Config{Concurrency: 2})
	worker := run.NewWorker(orch, 4, 1)
	t.Cleanup(worker.Stop)

	s, err := NewServer(nil, st, orch, worker)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return &testServer{server: s, store: st, worker: worker}
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.server.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) waitForTerminal(t *testing.T, id string) *store.RunRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := ts.store.GetRun(context.Background(), id)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if run.Status(rec.Status).Terminal() {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %q never reached a terminal status", id)
	return nil
}

func validCreatePayload() map[string]any {
	return map[string]any{
		"name": "api-smoke",
		"test_cases": []map[string]any{
			{"input": "say pong", "expected_output": "pong", "scoring_method": "exact_match"},
		},
	}
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t, &echoProvider{reply: "pong"})

	w := ts.do(http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestHandleCreateRunAccepted(t *testing.T) {
	ts := newTestServer(t, &echoProvider{reply: "pong"})

	w := ts.do(http.MethodPost, "/api/runs", validCreatePayload())
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}

	var created struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if created.ID == "" || created.Name != "api-smoke" {
		t.Fatalf("created = %+v", created)
	}
	if created.Status != string(run.StatusRunning) {
		t.Fatalf("Status = %q, want running", created.Status)
	}

	rec := ts.waitForTerminal(t, created.ID)
	if rec.Status != string(run.StatusCompleted) {
		t.Fatalf("terminal Status = %q error=%q", rec.Status, rec.Error)
	}
	if len(rec.Results) != 1 || !rec.Results[0].Passed {
		t.Fatalf("Results = %+v", rec.Results)
	}
}

func TestHandleCreateRunValidation(t *testing.T) {
	ts := newTestServer(t, &echoProvider{reply: "pong"})

	{
		w := ts.do(http.MethodPost, "/api/runs", map[string]any{
			"name":       "empty",
			"test_cases": []map[string]any{},
		})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("empty suite status = %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "no test cases") {
			t.Fatalf("body = %s", w.Body.String())
		}
	}
	{
		payload := validCreatePayload()
		payload["name"] = "  "
		w := ts.do(http.MethodPost, "/api/runs", payload)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("missing name status = %d", w.Code)
		}
	}
	{
		payload := validCreatePayload()
		payload["test_cases"] = []map[string]any{
			{"input": "x", "expected_output": "y", "scoring_method": "fuzzy"},
		}
		w := ts.do(http.MethodPost, "/api/runs", payload)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("unknown method status = %d", w.Code)
		}
	}
	{
		req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader("{not json"))
		w := httptest.NewRecorder()
		ts.server.router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("malformed body status = %d", w.Code)
		}
	}
}

func TestHandleGetRun(t *testing.T) {
	ts := newTestServer(t, &echoProvider{reply: "pong"})

	w := ts.do(http.MethodPost, "/api/runs", validCreatePayload())
	if w.Code != http.StatusAccepted {
		t.Fatalf("create status = %d", w.Code)
	}
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	ts.waitForTerminal(t, created.ID)

	gw := ts.do(http.MethodGet, "/api/runs/"+created.ID, nil)
	if gw.Code != http.StatusOK {
		t.Fatalf("get status = %d", gw.Code)
	}
	var got run.Run
	if err := json.Unmarshal(gw.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.ID != created.ID || got.Status != run.StatusCompleted {
		t.Fatalf("got id=%q status=%q", got.ID, got.Status)
	}
	if got.Summary == nil || got.Summary.PassCount != 1 {
		t.Fatalf("Summary = %+v", got.Summary)
	}
	if len(got.Results) != 1 || got.Results[0].ActualOutput != "pong" {
		t.Fatalf("Results = %+v", got.Results)
	}
}

func TestHandleGetRunNotFound(t *testing.T) {
	ts := newTestServer(t, &echoProvider{reply: "pong"})

	w := ts.do(http.MethodGet, "/api/runs/run_missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHandleListRuns(t *testing.T) {
	ts := newTestServer(t, &echoProvider{reply: "pong"})

	w := ts.do(http.MethodPost, "/api/runs", validCreatePayload())
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	ts.waitForTerminal(t, created.ID)

	lw := ts.do(http.MethodGet, "/api/runs", nil)
	if lw.Code != http.StatusOK {
		t.Fatalf("status = %d", lw.Code)
	}
	var listings []struct {
		ID          string   `json:"id"`
		Status      string   `json:"status"`
		ResultCount int      `json:"result_count"`
		AvgScore    *float64 `json:"avg_score"`
	}
	if err := json.Unmarshal(lw.Body.Bytes(), &listings); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(listings) != 1 || listings[0].ID != created.ID {
		t.Fatalf("listings = %+v", listings)
	}
	if listings[0].ResultCount != 1 || listings[0].AvgScore == nil || *listings[0].AvgScore != 1.0 {
		t.Fatalf("listings[0] = %+v", listings[0])
	}

	if bad := ts.do(http.MethodGet, "/api/runs?limit=zero", nil); bad.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", bad.Code)
	}
	if bad := ts.do(http.MethodGet, "/api/runs?limit=-1", nil); bad.Code != http.StatusBadRequest {
		t.Fatalf("negative limit status = %d", bad.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("EVAL_STUDIO_API_KEY", "sekrit")
	t.Setenv("EVAL_STUDIO_DISABLE_AUTH", "")

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	orch := run.NewOrchestrator(&echoProvider{reply: "pong"}, st, run.Config{})
	worker := run.NewWorker(orch, 1, 1)
	t.Cleanup(worker.Stop)

	s, err := NewServer(nil, st, orch, worker)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	{
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("no key status = %d", w.Code)
		}
	}
	{
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("X-API-Key", "wrong")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("wrong key status = %d", w.Code)
		}
	}
	{
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("X-API-Key", "sekrit")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("valid key status = %d", w.Code)
		}
	}
}

func TestMissingAuthConfiguration(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("EVAL_STUDIO_API_KEY", "")
	t.Setenv("EVAL_STUDIO_DISABLE_AUTH", "")

	if _, err := NewServer(nil, nil, nil, nil); err == nil {
		t.Fatalf("expected error without auth configuration")
	}
}
