package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/korhy/cookbook/internal/core"
	"github.com/korhy/cookbook/internal/logging"
)

// maxImportRequestBody bounds the JSON overrides of POST /api/imports.
const maxImportRequestBody = 64 * 1024

// lastImportScan is how many recorded stages are read to rebuild the last run.
const lastImportScan = 16

// Pinger is implemented by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ----------------------------------------------------------------------------
// Health
// ----------------------------------------------------------------------------

type healthResponse struct {
	Status  string                   `json:"status"`
	Imports core.ImportLimiterStatus `json:"imports"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Pinger.Ping(ctx); err != nil {
			logging.FromContext(r.Context()).Warn("health check failed", "error", err)
			writeJSONStatus(w, http.StatusServiceUnavailable, healthResponse{
				Status:  "unavailable",
				Imports: s.deps.Limiter.Status(),
			})
			return
		}
	}
	writeJSON(w, healthResponse{Status: "ok", Imports: s.deps.Limiter.Status()})
}

// ----------------------------------------------------------------------------
// Imports
// ----------------------------------------------------------------------------

// importRequest overrides the configured import settings for one run. Every
// field is optional.
type importRequest struct {
	DryRun       *bool   `json:"dry_run"`
	BatchSize    *int    `json:"batch_size"`
	SkipHeader   *bool   `json:"skip_header"`
	Delimiter    *string `json:"delimiter"`
	RecipeFormat *string `json:"recipe_format"`
}

type importErrorResponse struct {
	ErrorResponse
	Result *core.RunResult `json:"result,omitempty"`
}

func decodeImportRequest(r *http.Request) (importRequest, error) {
	var req importRequest
	if r.Body == nil {
		return req, nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxImportRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return req, nil
}

func (s *Server) importOptions(req importRequest) (core.Options, error) {
	icfg := s.cfg.Import
	if req.DryRun != nil {
		icfg.DryRun = *req.DryRun
	}
	if req.BatchSize != nil {
		icfg.BatchSize = *req.BatchSize
	}
	if req.SkipHeader != nil {
		icfg.SkipHeader = *req.SkipHeader
	}
	if req.Delimiter != nil {
		icfg.Delimiter = *req.Delimiter
	}
	if req.RecipeFormat != nil {
		icfg.RecipeFormat = *req.RecipeFormat
	}
	opts, err := icfg.Options()
	if err != nil {
		return core.Options{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return opts, nil
}

// handleStartImport runs one import synchronously and returns its result.
// The run is detached from client cancellation and bounded by the import
// timeout instead.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	req, err := decodeImportRequest(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	opts, err := s.importOptions(req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.deps.Limiter.TryAcquire(); err != nil {
		w.Header().Set("Retry-After", "30")
		s.respondError(w, r, err)
		return
	}
	defer s.deps.Limiter.Release()

	ctx := withRequestMetadata(context.WithoutCancel(r.Context()), r)
	ctx, cancel := context.WithTimeout(ctx, s.importDeadline())
	defer cancel()

	options := []core.ImporterOption{core.WithLogger(logging.FromContext(r.Context()))}
	if s.deps.Recorder != nil {
		options = append(options, core.WithRecorder(s.deps.Recorder))
	}
	if s.deps.Metrics != nil {
		options = append(options, core.WithObserver(s.deps.Metrics))
	}

	result, err := core.NewImporter(s.deps.Store, opts, options...).Run(ctx)
	if err != nil {
		s.respondImportError(w, r, err, result)
		return
	}
	writeJSON(w, result)
}

func (s *Server) respondImportError(w http.ResponseWriter, r *http.Request, err error, result *core.RunResult) {
	status := statusFor(err)
	msg := core.MapError(err)
	logging.FromContext(r.Context()).Error("import failed",
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)
	writeJSONStatus(w, status, importErrorResponse{
		ErrorResponse: ErrorResponse{Error: msg.Message, Message: msg.Message, Action: msg.Action, Code: msg.Code},
		Result:        result,
	})
}

type lastImportResponse struct {
	RunID  string               `json:"run_id"`
	Stages []core.RecordedStage `json:"stages"`
}

// handleLastImport returns the recorded stages of the most recent live run,
// in run order.
func (s *Server) handleLastImport(w http.ResponseWriter, r *http.Request) {
	recent, err := s.deps.History.RecentStages(r.Context(), lastImportScan)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	resp, ok := lastRun(recent)
	if !ok {
		s.respondError(w, r, fmt.Errorf("no recorded import: %w", core.ErrNotFound))
		return
	}
	writeJSON(w, resp)
}

// lastRun groups the newest stages sharing the newest run id.
func lastRun(recent []core.RecordedStage) (lastImportResponse, bool) {
	if len(recent) == 0 {
		return lastImportResponse{}, false
	}
	resp := lastImportResponse{RunID: recent[0].RunID}
	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i].RunID == resp.RunID {
			resp.Stages = append(resp.Stages, recent[i])
		}
	}
	return resp, true
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.deps.Limiter.Status())
}

// ----------------------------------------------------------------------------
// Catalog
// ----------------------------------------------------------------------------

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.deps.Catalog.ListCategories(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if cats == nil {
		cats = []core.Category{}
	}
	writeJSON(w, cats)
}

func (s *Server) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRecipeFilter(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	recipes, err := s.deps.Catalog.ListRecipes(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if recipes == nil {
		recipes = []core.Recipe{}
	}
	writeJSON(w, recipes)
}

func (s *Server) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, r, fmt.Errorf("%w: invalid recipe id %q", errBadRequest, chi.URLParam(r, "id")))
		return
	}
	d, err := s.deps.Catalog.GetRecipe(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, d)
}

// parseRecipeFilter reads ?category=, ?max_duration=, ?limit= and ?offset=.
func parseRecipeFilter(r *http.Request) (core.RecipeFilter, error) {
	q := r.URL.Query()
	f := core.RecipeFilter{CategorySlug: q.Get("category")}

	if v := q.Get("max_duration"); v != "" {
		d, err := strconv.ParseInt(v, 10, 32)
		if err != nil || d < 0 {
			return f, fmt.Errorf("%w: invalid max_duration %q", errBadRequest, v)
		}
		d32 := int32(d)
		f.MaxDuration = &d32
	}

	var err error
	if f.Limit, err = parseIntParam(q.Get("limit")); err != nil {
		return f, fmt.Errorf("%w: invalid limit: %v", errBadRequest, err)
	}
	if f.Offset, err = parseIntParam(q.Get("offset")); err != nil {
		return f, fmt.Errorf("%w: invalid offset: %v", errBadRequest, err)
	}
	f.Limit = core.NormalizeLimit(f.Limit)
	return f, nil
}

// parseIntParam returns 0 for an empty value.
func parseIntParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%d is negative", n)
	}
	return n, nil
}
