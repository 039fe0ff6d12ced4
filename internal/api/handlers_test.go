package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mattjoyce/moagen/internal/auth"
	"github.com/mattjoyce/moagen/internal/dataset"
	"github.com/mattjoyce/moagen/internal/events"
	"github.com/mattjoyce/moagen/internal/generate"
	"github.com/mattjoyce/moagen/internal/ledger"
	"github.com/mattjoyce/moagen/internal/moa"
	"github.com/mattjoyce/moagen/internal/workspace"
)

// mockStore implements RunStore for testing
type mockStore struct {
	getRunFunc       func(ctx context.Context, runID string) (*ledger.Run, error)
	listRunsFunc     func(ctx context.Context, limit int) ([]ledger.Run, error)
	listDatasetsFunc func(ctx context.Context, runID string) ([]ledger.Dataset, error)
}

func (m *mockStore) GetRun(ctx context.Context, runID string) (*ledger.Run, error) {
	return m.getRunFunc(ctx, runID)
}

func (m *mockStore) ListRuns(ctx context.Context, limit int) ([]ledger.Run, error) {
	return m.listRunsFunc(ctx, limit)
}

func (m *mockStore) ListDatasets(ctx context.Context, runID string) ([]ledger.Dataset, error) {
	if m.listDatasetsFunc == nil {
		return nil, nil
	}
	return m.listDatasetsFunc(ctx, runID)
}

// mockGenerator implements Generator for testing
type mockGenerator struct {
	runFunc func(ctx context.Context, specs []dataset.Spec) (*generate.Report, error)
}

func (m *mockGenerator) Run(ctx context.Context, specs []dataset.Spec) (*generate.Report, error) {
	return m.runFunc(ctx, specs)
}

func newTestServer(store RunStore, gen Generator) *Server {
	config := Config{
		Listen:    "localhost:8484",
		APIKey:    "test-key-123",
		Tool:      moa.Tool{JavaPath: "java", MOAPath: "/opt/moa"},
		OutputDir: "results",
	}
	return New(config, store, gen, events.NewHub(10), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, s *Server, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHandleHealthz_NoAuth(t *testing.T) {
	server := newTestServer(nil, nil)

	rr := do(t, server, http.MethodGet, "/healthz", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp HealthzResponse
	decode(t, rr, &resp)
	if resp.Status != "ok" {
		t.Fatalf("expected status ok, got %q", resp.Status)
	}
	if resp.Generating {
		t.Fatalf("expected generating=false")
	}
	if resp.Generators != 3 {
		t.Fatalf("expected 3 generators, got %d", resp.Generators)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	server := newTestServer(nil, nil)

	rr := do(t, server, http.MethodGet, "/generators", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}

	rr = do(t, server, http.MethodGet, "/generators", "", "wrong")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for wrong key, got %d", rr.Code)
	}
}

func TestOpenAccessWithoutCredentials(t *testing.T) {
	server := newTestServer(nil, nil)
	server.config.APIKey = ""

	rr := do(t, server, http.MethodGet, "/generators", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 with auth disabled, got %d", rr.Code)
	}
}

func TestScopedTokens(t *testing.T) {
	server := newTestServer(&mockStore{
		listRunsFunc: func(ctx context.Context, limit int) ([]ledger.Run, error) { return nil, nil },
	}, &mockGenerator{
		runFunc: func(ctx context.Context, specs []dataset.Spec) (*generate.Report, error) {
			t.Fatalf("generator should not be called for forbidden request")
			return nil, nil
		},
	})
	server.config.Tokens = []auth.TokenConfig{
		{Token: "ro-token", Scopes: []string{auth.ScopeRunsRead}},
	}

	rr := do(t, server, http.MethodGet, "/runs", "", "ro-token")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for runs:ro, got %d", rr.Code)
	}

	rr = do(t, server, http.MethodPost, "/runs", `{"definitions":["SEA_f_1_s_10"]}`, "ro-token")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for POST /runs with runs:ro, got %d", rr.Code)
	}

	rr = do(t, server, http.MethodGet, "/generators", "", "ro-token")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for /generators with runs:ro, got %d", rr.Code)
	}
}

func TestHandleListGenerators(t *testing.T) {
	server := newTestServer(nil, nil)

	rr := do(t, server, http.MethodGet, "/generators", "", "test-key-123")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var gens []dataset.Generator
	decode(t, rr, &gens)
	if len(gens) != 3 || gens[0].Name != "Agrawal" || gens[0].MaxFunction != 11 {
		t.Fatalf("unexpected generators: %+v", gens)
	}
}

func TestHandleValidate(t *testing.T) {
	server := newTestServer(nil, nil)

	body := `{
		"definitions": ["SEA_f_1_1_p_50_w_10_s_100", "Foo_f_1_s_10"],
		"records": [
			{"generator": "STAGGER", "classification_functions": [1, 2], "drift_points": [40], "drift_widths": [4], "num_of_samples": 80},
			{"generator": "STAGGER", "classification_functions": [1.5], "num_of_samples": 80},
			"nope"
		]
	}`
	rr := do(t, server, http.MethodPost, "/validate", body, "test-key-123")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp ValidateResponse
	decode(t, rr, &resp)
	if len(resp.Valid) != 2 {
		t.Fatalf("expected 2 valid datasets, got %+v", resp.Valid)
	}
	if resp.Valid[0].Definition != "SEA_f_1_1_p_50_w_10_s_100" || resp.Valid[0].SwitchingDrifts != 1 {
		t.Fatalf("unexpected first dataset: %+v", resp.Valid[0])
	}
	if resp.Valid[1].Definition != "STAGGER_f_1_2_p_40_w_4_s_80" || resp.Valid[1].SwitchingDrifts != 0 {
		t.Fatalf("unexpected second dataset: %+v", resp.Valid[1])
	}

	wantKinds := map[int]string{1: "unsupported_generator", 3: "type", 4: "schema"}
	if len(resp.Errors) != len(wantKinds) {
		t.Fatalf("expected %d errors, got %+v", len(wantKinds), resp.Errors)
	}
	for _, e := range resp.Errors {
		if wantKinds[e.Index] != e.Kind {
			t.Fatalf("error at index %d: expected kind %q, got %q (%s)", e.Index, wantKinds[e.Index], e.Kind, e.Error)
		}
	}
}

func TestHandleValidate_BadBody(t *testing.T) {
	server := newTestServer(nil, nil)

	rr := do(t, server, http.MethodPost, "/validate", `{"definitions": "SEA"}`, "test-key-123")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestHandleCommand(t *testing.T) {
	server := newTestServer(nil, nil)

	rr := do(t, server, http.MethodPost, "/command?out_dir=/tmp/out", `{"definitions":["SEA_f_1_2_p_50_w_10_s_100"]}`, "test-key-123")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp CommandResponse
	decode(t, rr, &resp)
	if len(resp.Commands) != 1 {
		t.Fatalf("expected one command, got %+v", resp.Commands)
	}
	cmd := resp.Commands[0]
	if cmd.OutputPath != "/tmp/out/SEA_f_1_2_p_50_w_10_s_100.arff" {
		t.Fatalf("unexpected output path %q", cmd.OutputPath)
	}
	for _, want := range []string{
		"java -cp /opt/moa/lib/moa.jar",
		"-javaagent:/opt/moa/lib/sizeofag-1.1.0.jar moa.DoTask",
		"generators.SEAGenerator -f 1",
		"-m 100",
	} {
		if !strings.Contains(cmd.Command, want) {
			t.Fatalf("command %q does not contain %q", cmd.Command, want)
		}
	}
}

func TestHandleCommand_RejectsUnsafeOutDir(t *testing.T) {
	server := newTestServer(nil, nil)

	rr := do(t, server, http.MethodPost, "/command?out_dir=my%20results", `{"definitions":["SEA_f_1_s_100"]}`, "test-key-123")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "my results") {
		t.Fatalf("error should name the directory: %s", rr.Body.String())
	}
}

func TestHandleListRuns(t *testing.T) {
	elapsed := 1500 * time.Millisecond
	store := &mockStore{
		listRunsFunc: func(ctx context.Context, limit int) ([]ledger.Run, error) {
			if limit != 5 {
				t.Errorf("expected limit 5, got %d", limit)
			}
			return []ledger.Run{{ID: "run-1", RunDir: "2026_01_02_03_04_05", Status: ledger.StatusCompleted, Total: 2, Succeeded: 2, Elapsed: &elapsed}}, nil
		},
	}
	server := newTestServer(store, nil)

	rr := do(t, server, http.MethodGet, "/runs?limit=5", "", "test-key-123")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var runs []RunResponse
	decode(t, rr, &runs)
	if len(runs) != 1 || runs[0].RunID != "run-1" || runs[0].ElapsedMS == nil || *runs[0].ElapsedMS != 1500 {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	rr = do(t, server, http.MethodGet, "/runs?limit=zero", "", "test-key-123")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for bad limit, got %d", rr.Code)
	}
}

func TestHandleListRuns_NoStore(t *testing.T) {
	server := newTestServer(nil, nil)
	rr := do(t, server, http.MethodGet, "/runs", "", "test-key-123")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestHandleGetRun(t *testing.T) {
	path := "/out/SEA_f_1_s_10.arff"
	store := &mockStore{
		getRunFunc: func(ctx context.Context, runID string) (*ledger.Run, error) {
			if runID != "run-1" {
				return nil, ledger.ErrRunNotFound
			}
			return &ledger.Run{ID: "run-1", Status: ledger.StatusCompleted, Total: 1, Succeeded: 1}, nil
		},
		listDatasetsFunc: func(ctx context.Context, runID string) ([]ledger.Dataset, error) {
			return []ledger.Dataset{{RunID: runID, Definition: "SEA_f_1_s_10", Status: ledger.StatusSucceeded, OutputPath: &path}}, nil
		},
	}
	server := newTestServer(store, nil)

	rr := do(t, server, http.MethodGet, "/runs/run-1", "", "test-key-123")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp RunResponse
	decode(t, rr, &resp)
	if len(resp.Datasets) != 1 || resp.Datasets[0].OutputPath == nil || *resp.Datasets[0].OutputPath != path {
		t.Fatalf("unexpected run: %+v", resp)
	}

	rr = do(t, server, http.MethodGet, "/runs/missing", "", "test-key-123")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func fakeReport(specs []dataset.Spec) *generate.Report {
	rep := &generate.Report{RunID: "run-42", Run: workspace.RunDir{Name: "2026_01_02_03_04_05"}, Elapsed: time.Second}
	for i, s := range specs {
		o := generate.Outcome{Spec: s, Position: i, Command: "java ...", OutputPath: "/out/" + s.String() + ".arff", Digest: "abc"}
		if i == 1 {
			o.Err = errors.New("boom")
		}
		rep.Outcomes = append(rep.Outcomes, o)
	}
	return rep
}

func TestHandleStartRun_Wait(t *testing.T) {
	gen := &mockGenerator{
		runFunc: func(ctx context.Context, specs []dataset.Spec) (*generate.Report, error) {
			return fakeReport(specs), nil
		},
	}
	server := newTestServer(nil, gen)

	rr := do(t, server, http.MethodPost, "/runs?wait=true", `{"definitions":["SEA_f_1_s_10","SEA_f_2_s_10"]}`, "test-key-123")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp RunResponse
	decode(t, rr, &resp)
	if resp.RunID != "run-42" || resp.Succeeded != 1 || resp.Failed != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Datasets[1].Status != "failed" || resp.Datasets[1].LastError == nil || *resp.Datasets[1].LastError != "boom" {
		t.Fatalf("unexpected failed dataset: %+v", resp.Datasets[1])
	}
	if len(server.busy) != 0 {
		t.Fatalf("busy slot not released")
	}
}

func TestHandleStartRun_Async(t *testing.T) {
	var mu sync.Mutex
	var got []string
	gen := &mockGenerator{
		runFunc: func(ctx context.Context, specs []dataset.Spec) (*generate.Report, error) {
			mu.Lock()
			defer mu.Unlock()
			for _, s := range specs {
				got = append(got, s.String())
			}
			return fakeReport(specs), nil
		},
	}
	server := newTestServer(nil, gen)

	rr := do(t, server, http.MethodPost, "/runs", `{"records":[{"generator":"Agrawal","classification_functions":[3],"num_of_samples":20}]}`, "test-key-123")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rr.Code)
	}
	var resp StartRunResponse
	decode(t, rr, &resp)
	if resp.Status != "accepted" || resp.Total != 1 || resp.Definitions[0] != "Agrawal_f_3_s_20" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	server.Wait()
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "Agrawal_f_3_s_20" {
		t.Fatalf("generator received %v", got)
	}
}

func TestHandleStartRun_Rejections(t *testing.T) {
	gen := &mockGenerator{
		runFunc: func(ctx context.Context, specs []dataset.Spec) (*generate.Report, error) {
			t.Fatalf("generator should not be called")
			return nil, nil
		},
	}
	server := newTestServer(nil, gen)

	rr := do(t, server, http.MethodPost, "/runs", `{"definitions":["SEA_f_1_s_10","SEA_f_9_s_10"]}`, "test-key-123")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
	var errResp ErrorResponse
	decode(t, rr, &errResp)
	if len(errResp.Errors) != 1 || errResp.Errors[0].Kind != "unsupported_function" {
		t.Fatalf("unexpected errors: %+v", errResp.Errors)
	}

	rr = do(t, server, http.MethodPost, "/runs", `{}`, "test-key-123")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for empty request, got %d", rr.Code)
	}

	server.busy <- struct{}{}
	rr = do(t, server, http.MethodPost, "/runs", `{"definitions":["SEA_f_1_s_10"]}`, "test-key-123")
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409 while busy, got %d", rr.Code)
	}
	<-server.busy

	noGen := newTestServer(nil, nil)
	rr = do(t, noGen, http.MethodPost, "/runs", `{"definitions":["SEA_f_1_s_10"]}`, "test-key-123")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 without generator, got %d", rr.Code)
	}
}

func TestHandleOpenAPI(t *testing.T) {
	server := newTestServer(nil, nil)

	rr := do(t, server, http.MethodGet, "/openapi.json", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var doc map[string]any
	decode(t, rr, &doc)
	paths, _ := doc["paths"].(map[string]any)
	runs, _ := paths["/runs"].(map[string]any)
	if _, ok := runs["get"]; !ok {
		t.Fatalf("missing GET /runs in %v", paths)
	}
	if _, ok := runs["post"]; !ok {
		t.Fatalf("missing POST /runs in %v", paths)
	}
}

func TestHandleEvents_FiltersByRun(t *testing.T) {
	server := newTestServer(nil, nil)
	server.events.Publish(events.RunStarted, "run-a", events.RunPayload{Total: 1})
	server.events.Publish(events.RunStarted, "run-b", events.RunPayload{Total: 2})

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events?run_id=run-b", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer test-key-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	if len(lines) != 3 || lines[0] != "id: 2" || lines[1] != "event: run.started" {
		t.Fatalf("unexpected first event: %v", lines)
	}
	var ev events.Event
	if err := json.Unmarshal([]byte(strings.TrimPrefix(lines[2], "data: ")), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.RunID != "run-b" {
		t.Fatalf("expected run-b, got %q", ev.RunID)
	}
}

func TestParseLastEventID(t *testing.T) {
	tests := map[string]int64{"": 0, "12": 12, "-3": 0, "abc": 0}
	for in, want := range tests {
		if got := parseLastEventID(in); got != want {
			t.Fatalf("parseLastEventID(%q) = %d, want %d", in, got, want)
		}
	}
}
