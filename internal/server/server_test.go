package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"siteplan/internal/config"
	"siteplan/internal/db"
	"siteplan/internal/engine"
	"siteplan/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("siteplan")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	if _, err := e.InitProject(context.Background(), cfg.Project.ID, "Siteplan", "", "", "tester", nil); err != nil {
		t.Fatalf("init project: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestGenerateThenListTasks(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/siteplan/schedule/generate", map[string]any{
		"start_date": "2026-03-02",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("generate status %d: %s", res.StatusCode, string(data))
	}
	var generated ScheduleResponse
	if err := json.Unmarshal(data, &generated); err != nil {
		t.Fatalf("unmarshal schedule: %v", err)
	}
	if len(generated.Tasks) == 0 {
		t.Fatal("expected generated tasks")
	}

	listRes, listBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/siteplan/tasks", nil)
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list tasks status %d: %s", listRes.StatusCode, string(listBody))
	}
	var listed ScheduleResponse
	if err := json.Unmarshal(listBody, &listed); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(listed.Tasks) != len(generated.Tasks) {
		t.Fatalf("expected %d tasks, got %d", len(generated.Tasks), len(listed.Tasks))
	}

	historyRes, historyBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/siteplan/schedule/history", nil)
	if historyRes.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", historyRes.StatusCode, string(historyBody))
	}
	var history []map[string]any
	if err := json.Unmarshal(historyBody, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one history entry, got %d", len(history))
	}
}

func TestGenerateModesMutuallyExclusive(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/siteplan/schedule/generate", map[string]any{
		"use_templates": true,
		"from_jobs":     true,
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "bad_request" {
		t.Fatalf("expected bad_request, got %q", envelope.Error.Code)
	}
}

func TestUnknownProjectNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/missing", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
}

func TestOptimizeAndAnalyze(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/siteplan/schedule/generate", map[string]any{
		"start_date": "2026-03-02",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("generate status %d: %s", res.StatusCode, string(data))
	}

	optRes, optBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/siteplan/schedule/optimize", map[string]any{
		"prioritize_by_dependencies": true,
	})
	if optRes.StatusCode != http.StatusOK {
		t.Fatalf("optimize status %d: %s", optRes.StatusCode, string(optBody))
	}
	var optimized ScheduleResponse
	if err := json.Unmarshal(optBody, &optimized); err != nil {
		t.Fatalf("unmarshal optimized: %v", err)
	}
	if len(optimized.Tasks) == 0 {
		t.Fatal("expected optimized tasks")
	}

	anaRes, anaBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/siteplan/analysis", nil)
	if anaRes.StatusCode != http.StatusOK {
		t.Fatalf("analysis status %d: %s", anaRes.StatusCode, string(anaBody))
	}
	var report engine.AnalysisReport
	if err := json.Unmarshal(anaBody, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.TotalDurationMinutes == 0 {
		t.Fatal("expected non-zero total duration")
	}
}

func TestDetectAndResolveConflicts(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/siteplan/conflicts/detect", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("detect status %d: %s", res.StatusCode, string(data))
	}
	var detected ConflictListResponse
	if err := json.Unmarshal(data, &detected); err != nil {
		t.Fatalf("unmarshal conflicts: %v", err)
	}
	if len(detected.Conflicts) != 0 {
		t.Fatalf("expected no conflicts on empty schedule, got %d", len(detected.Conflicts))
	}

	missRes, missBody := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/projects/siteplan/conflicts/missing", map[string]any{
		"status": "resolved",
	})
	if missRes.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown conflict, got %d: %s", missRes.StatusCode, string(missBody))
	}
}
