package web

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/korhy/cookbook/internal/config"
	"github.com/korhy/cookbook/internal/core"
	"github.com/korhy/cookbook/internal/metrics"
)

// ============================================================================
// Test helpers
// ============================================================================

const (
	testCategories  = "Dessert,1\nPlat,2\n"
	testIngredients = "Sucre,1\nBeurre,2\nFarine,3\n"
	testRecipes     = "1,Tarte,Une tarte,1,30\n2,Quiche,Une quiche,,15\n3,Soupe,Une soupe,1,60\n"
	testLinks       = "1,100,1,1\n1,50,1,2\n3,2,1,3\n"
)

func writeData(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := core.DefaultFiles(dir)
	for name, content := range map[string]string{
		files.Categories:        testCategories,
		files.Ingredients:       testIngredients,
		files.Recipes:           testRecipes,
		files.RecipeIngredients: testLinks,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func testConfig(dataDir string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0, RequestTimeout: 5 * time.Second},
		Import: config.ImportConfig{
			DataDir:               dataDir,
			CategoriesFile:        core.DefaultCategoriesFile,
			IngredientsFile:       core.DefaultIngredientsFile,
			RecipesFile:           core.DefaultRecipesFile,
			RecipeIngredientsFile: core.DefaultRecipeIngredientsFile,
			Delimiter:             ",",
			Quote:                 `"`,
			Escape:                `\`,
			BatchSize:             50,
			RecipeFormat:          "keyed",
			MaxWarnings:           500,
			Timeout:               time.Minute,
		},
	}
}

type testEnv struct {
	server *Server
	store  *core.MemoryStore
	reg    *prometheus.Registry
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	store := core.NewMemoryStore()
	reg := prometheus.NewRegistry()
	srv := NewServer(cfg, Deps{
		Store:    store,
		Catalog:  store,
		History:  store,
		Recorder: store,
		Metrics:  metrics.New(reg),
		Gatherer: reg,
	})
	return &testEnv{server: srv, store: store, reg: reg}
}

func (e *testEnv) do(t *testing.T, method, path string, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	resp := decode[ErrorResponse](t, rec)
	if resp.Code != code {
		t.Errorf("code = %q, want %q", resp.Code, code)
	}
	if resp.Message == "" {
		t.Error("empty error message")
	}
}

func imported(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv(t, testConfig(writeData(t)))
	if rec := env.do(t, http.MethodPost, "/api/imports", ""); rec.Code != http.StatusOK {
		t.Fatalf("import status = %d: %s", rec.Code, rec.Body.String())
	}
	return env
}

// ============================================================================
// Health and metrics
// ============================================================================

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		env := newTestEnv(t, testConfig(t.TempDir()))
		rec := env.do(t, http.MethodGet, "/healthz", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := decode[healthResponse](t, rec); got.Status != "ok" || got.Imports.Capacity != 1 {
			t.Errorf("health = %+v", got)
		}
		if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Error("security headers missing")
		}
	})

	t.Run("database down", func(t *testing.T) {
		store := core.NewMemoryStore()
		srv := NewServer(testConfig(t.TempDir()), Deps{
			Store: store, Catalog: store, History: store,
			Pinger:   fakePinger{err: errors.New("connection refused")},
			Gatherer: prometheus.NewRegistry(),
		})
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	env := imported(t)
	env.do(t, http.MethodGet, "/api/recipes/1", "")

	rec := env.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`cookbook_http_requests_total{method="GET",route="/api/recipes/{id}",status="200"} 1`,
		`cookbook_import_rows_total{outcome="processed",stage="categories"} 2`,
		"cookbook_import_batches_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

// ============================================================================
// Imports
// ============================================================================

func TestStartImport_RunsAndRecords(t *testing.T) {
	env := newTestEnv(t, testConfig(writeData(t)))

	rec := env.do(t, http.MethodPost, "/api/imports", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[core.RunResult](t, rec)
	if len(res.Stages) != 4 {
		t.Fatalf("stages = %d, want 4", len(res.Stages))
	}
	if res.TotalProcessed() != 11 || res.TotalErrors() != 0 {
		t.Errorf("processed = %d errors = %d", res.TotalProcessed(), res.TotalErrors())
	}

	counts := env.store.Counts()
	if counts[core.KindRecipe] != 3 || counts[core.KindRecipeIngredient] != 3 {
		t.Errorf("counts = %v", counts)
	}

	recorded, _ := env.store.RecentStages(context.Background(), 10)
	if len(recorded) != 4 {
		t.Fatalf("recorded = %d, want 4", len(recorded))
	}
	for _, st := range recorded {
		if st.Trigger != core.TriggerAPI {
			t.Errorf("trigger = %q, want api", st.Trigger)
		}
		if st.RemoteAddr != "192.0.2.1:1234" {
			t.Errorf("remote addr = %q", st.RemoteAddr)
		}
	}

	last := env.do(t, http.MethodGet, "/api/imports/last", "")
	if last.Code != http.StatusOK {
		t.Fatalf("last status = %d", last.Code)
	}
	got := decode[lastImportResponse](t, last)
	if got.RunID != res.RunID {
		t.Errorf("last run id = %q, want %q", got.RunID, res.RunID)
	}
	if len(got.Stages) != 4 || got.Stages[0].Stage != core.StageCategories {
		t.Errorf("last stages = %+v", got.Stages)
	}
}

func TestStartImport_DryRunOverride(t *testing.T) {
	env := newTestEnv(t, testConfig(writeData(t)))

	rec := env.do(t, http.MethodPost, "/api/imports", `{"dry_run":true,"batch_size":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[core.RunResult](t, rec)
	if !res.DryRun {
		t.Error("result not marked dry run")
	}
	if n := env.store.Counts()[core.KindCategory]; n != 0 {
		t.Errorf("dry run persisted %d categories", n)
	}

	expectError(t, env.do(t, http.MethodGet, "/api/imports/last", ""), http.StatusNotFound, "REQ002")
}

func TestStartImport_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"dry_run":tru}`},
		{"unknown field", `{"dryrun":true}`},
		{"zero batch size", `{"batch_size":0}`},
		{"delimiter equals quote", `{"delimiter":"\""}`},
		{"unknown format", `{"recipe_format":"yaml"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, testConfig(writeData(t)))
			expectError(t, env.do(t, http.MethodPost, "/api/imports", tt.body), http.StatusBadRequest, "REQ001")
			if env.store.Commits() != 0 {
				t.Error("import ran despite a bad request")
			}
		})
	}
}

func TestStartImport_Conflict(t *testing.T) {
	env := newTestEnv(t, testConfig(writeData(t)))
	if err := env.server.deps.Limiter.TryAcquire(); err != nil {
		t.Fatal(err)
	}
	defer env.server.deps.Limiter.Release()

	rec := env.do(t, http.MethodPost, "/api/imports", "")
	expectError(t, rec, http.StatusConflict, "IMP001")
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After not set")
	}
}

func TestStartImport_MissingFiles(t *testing.T) {
	env := newTestEnv(t, testConfig(t.TempDir()))

	rec := env.do(t, http.MethodPost, "/api/imports", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[importErrorResponse](t, rec)
	if resp.Code != "FILE001" {
		t.Errorf("code = %q, want FILE001", resp.Code)
	}
	if resp.Result == nil || resp.Result.RunID == "" {
		t.Error("partial result missing")
	}
	if env.server.deps.Limiter.ActiveCount() != 0 {
		t.Error("limiter slot not released")
	}
}

func TestStartImport_APIKey(t *testing.T) {
	cfg := testConfig(writeData(t))
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}}
	env := newTestEnv(t, cfg)

	if rec := env.do(t, http.MethodPost, "/api/imports", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("without key: status = %d, want 401", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/imports", "", "X-API-Key", "secret"); rec.Code != http.StatusOK {
		t.Errorf("with key: status = %d, want 200", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/categories", ""); rec.Code != http.StatusOK {
		t.Errorf("reads should not need a key: status = %d", rec.Code)
	}
}

func TestStartImport_TrustedProxyAddress(t *testing.T) {
	cfg := testConfig(writeData(t))
	cfg.Security.TrustedProxies = []string{"192.0.2.0/24"}
	env := newTestEnv(t, cfg)

	if rec := env.do(t, http.MethodPost, "/api/imports", "", "X-Real-IP", "198.51.100.9"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	recorded, _ := env.store.RecentStages(context.Background(), 1)
	if len(recorded) != 1 || recorded[0].RemoteAddr != "198.51.100.9" {
		t.Errorf("recorded = %+v", recorded)
	}
}

func TestLastRun(t *testing.T) {
	stages := []core.RecordedStage{
		{RunID: "b", Stage: core.StageRecipes},
		{RunID: "a", Stage: core.StageRecipeIngredients},
		{RunID: "a", Stage: core.StageRecipes},
	}

	got, ok := lastRun(stages)
	if !ok || got.RunID != "b" || len(got.Stages) != 1 {
		t.Errorf("lastRun = %+v, %v", got, ok)
	}
	if _, ok := lastRun(nil); ok {
		t.Error("lastRun(nil) reported a run")
	}
}

// ============================================================================
// Catalog
// ============================================================================

func TestListCategories(t *testing.T) {
	env := imported(t)
	rec := env.do(t, http.MethodGet, "/api/categories", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	cats := decode[[]core.Category](t, rec)
	if len(cats) != 2 {
		t.Fatalf("categories = %+v", cats)
	}
}

func TestListCategories_Empty(t *testing.T) {
	env := newTestEnv(t, testConfig(t.TempDir()))
	rec := env.do(t, http.MethodGet, "/api/categories", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", rec.Body.String())
	}
}

func TestListRecipes(t *testing.T) {
	env := imported(t)

	tests := []struct {
		name    string
		query   string
		wantIDs []int64
	}{
		{"newest first", "", []int64{3, 2, 1}},
		{"duration ascending", "?max_duration=30", []int64{2, 1}},
		{"by category", "?category=dessert", []int64{3, 1}},
		{"category and duration", "?category=dessert&max_duration=45", []int64{1}},
		{"paged", "?limit=1&offset=1", []int64{2}},
		{"unknown category", "?category=nope", []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/recipes"+tt.query, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			recipes := decode[[]core.Recipe](t, rec)
			if len(recipes) != len(tt.wantIDs) {
				t.Fatalf("got %d recipes, want %v", len(recipes), tt.wantIDs)
			}
			for i, id := range tt.wantIDs {
				if recipes[i].ID != id {
					t.Errorf("recipe[%d] = %d, want %d", i, recipes[i].ID, id)
				}
			}
		})
	}
}

func TestListRecipes_BadQuery(t *testing.T) {
	env := newTestEnv(t, testConfig(t.TempDir()))
	for _, q := range []string{"?max_duration=abc", "?max_duration=-5", "?limit=-1", "?offset=x"} {
		t.Run(q, func(t *testing.T) {
			expectError(t, env.do(t, http.MethodGet, "/api/recipes"+q, ""), http.StatusBadRequest, "REQ001")
		})
	}
}

func TestGetRecipe(t *testing.T) {
	env := imported(t)

	rec := env.do(t, http.MethodGet, "/api/recipes/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	d := decode[core.RecipeDetail](t, rec)
	if d.Title != "Tarte" || d.Category == nil || d.Category.Slug != "dessert" {
		t.Errorf("recipe = %+v", d.Recipe)
	}
	if len(d.Lines) != 2 || d.Lines[0].Name != "Sucre" || *d.Lines[0].Quantity != 100 {
		t.Errorf("lines = %+v", d.Lines)
	}

	expectError(t, env.do(t, http.MethodGet, "/api/recipes/999", ""), http.StatusNotFound, "REQ002")
	expectError(t, env.do(t, http.MethodGet, "/api/recipes/abc", ""), http.StatusBadRequest, "REQ001")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errBadRequest, http.StatusBadRequest},
		{core.ErrNotFound, http.StatusNotFound},
		{core.ErrImportInProgress, http.StatusConflict},
		{&core.FileAccessError{Path: "x.csv", Err: os.ErrNotExist}, http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestShutdown_WaitsForDrain(t *testing.T) {
	env := newTestEnv(t, testConfig(t.TempDir()))
	if err := env.server.deps.Limiter.TryAcquire(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := env.server.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown with running import = %v, want deadline exceeded", err)
	}

	env.server.deps.Limiter.Release()
	if err := env.server.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown after drain = %v", err)
	}
}
