package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/moagen/internal/dataset"
	"github.com/mattjoyce/moagen/internal/generate"
	"github.com/mattjoyce/moagen/internal/ledger"
	"github.com/mattjoyce/moagen/internal/moa"
)

const (
	maxBodyBytes     = 1 << 20
	defaultListLimit = 20
)

// errorKinds names the dataset error taxonomy for clients.
var errorKinds = []struct {
	err  error
	name string
}{
	{dataset.ErrParse, "parse"},
	{dataset.ErrSchema, "schema"},
	{dataset.ErrType, "type"},
	{dataset.ErrUnsupportedGenerator, "unsupported_generator"},
	{dataset.ErrUnsupportedFunction, "unsupported_function"},
	{dataset.ErrArity, "arity"},
	{dataset.ErrOrdering, "ordering"},
	{dataset.ErrWidth, "width"},
	{dataset.ErrRange, "range"},
	{dataset.ErrOverlap, "overlap"},
	{dataset.ErrSampleCount, "sample_count"},
}

func errorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "invalid"
}

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Generating:    len(s.busy) > 0,
		Generators:    len(dataset.Generators()),
	})
}

// handleOpenAPI handles GET /openapi.json (no auth).
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc())
}

// handleListGenerators handles GET /generators.
func (s *Server) handleListGenerators(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, dataset.Generators())
}

// handleValidate handles POST /validate.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	specs, itemErrs, ok := s.decodeDatasets(w, r)
	if !ok {
		return
	}
	resp := ValidateResponse{Valid: make([]DatasetView, 0, len(specs)), Errors: itemErrs}
	for _, spec := range specs {
		resp.Valid = append(resp.Valid, datasetView(spec))
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleCommand handles POST /command. The optional out_dir query parameter
// overrides the configured output directory in the rendered commands.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	outDir := r.URL.Query().Get("out_dir")
	if outDir == "" {
		outDir = s.config.OutputDir
	}
	if err := moa.CheckOutputDir(outDir); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	specs, itemErrs, ok := s.decodeDatasets(w, r)
	if !ok {
		return
	}

	resp := CommandResponse{Commands: make([]CommandView, 0, len(specs)), Errors: itemErrs}
	for _, spec := range specs {
		inv := moa.NewInvocation(s.config.Tool, spec, outDir)
		resp.Commands = append(resp.Commands, CommandView{
			Definition: spec.String(),
			Command:    inv.String(),
			OutputPath: inv.OutputPath,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleListRuns handles GET /runs?limit=N.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	out := make([]RunResponse, 0, len(runs))
	for i := range runs {
		out = append(out, runResponse(&runs[i]))
	}
	respondJSON(w, http.StatusOK, out)
}

// handleGetRun handles GET /runs/{runID}.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}
	runID := chi.URLParam(r, "runID")

	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, ledger.ErrRunNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("failed to get run", "run_id", runID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	datasets, err := s.store.ListDatasets(r.Context(), runID)
	if err != nil {
		s.logger.Error("failed to list datasets", "run_id", runID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list datasets")
		return
	}

	resp := runResponse(run)
	for _, d := range datasets {
		resp.Datasets = append(resp.Datasets, datasetOutcomeView(d))
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleStartRun handles POST /runs. Any invalid entry rejects the whole
// request. Only one run is generated at a time. By default the run proceeds
// in the background and progress is reported on /events; ?wait=true blocks
// until the run finishes.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		s.writeError(w, http.StatusServiceUnavailable, "generation is not configured")
		return
	}
	specs, itemErrs, ok := s.decodeDatasets(w, r)
	if !ok {
		return
	}
	if len(itemErrs) > 0 {
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "invalid datasets", Errors: itemErrs})
		return
	}
	if len(specs) == 0 {
		s.writeError(w, http.StatusBadRequest, "no datasets given")
		return
	}

	select {
	case s.busy <- struct{}{}:
	default:
		s.writeError(w, http.StatusConflict, "a generation run is already in progress")
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		defer func() { <-s.busy }()
		report, err := s.generator.Run(r.Context(), specs)
		if report == nil {
			s.writeError(w, http.StatusInternalServerError, "generation failed: "+errString(err))
			return
		}
		resp := reportResponse(report)
		if err != nil {
			msg := err.Error()
			resp.LastError = &msg
		}
		respondJSON(w, http.StatusOK, resp)
		return
	}

	definitions := make([]string, len(specs))
	for i, spec := range specs {
		definitions[i] = spec.String()
	}

	s.running.Add(1)
	go func() {
		defer s.running.Done()
		defer func() { <-s.busy }()
		if _, err := s.generator.Run(s.runCtx, specs); err != nil {
			s.logger.Error("background generation failed", "error", err)
		}
	}()

	s.logger.Info("generation accepted via API", "datasets", len(specs))
	respondJSON(w, http.StatusAccepted, StartRunResponse{
		Status:      "accepted",
		Total:       len(specs),
		Definitions: definitions,
	})
}

// decodeDatasets reads a DatasetsRequest and builds its specs. It writes the
// error response itself and reports false when the body is unusable.
func (s *Server) decodeDatasets(w http.ResponseWriter, r *http.Request) ([]dataset.Spec, []ItemError, bool) {
	var req DatasetsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, nil, false
	}

	specs := []dataset.Spec{}
	itemErrs := []ItemError{}
	reject := func(index int, input string, err error) {
		itemErrs = append(itemErrs, ItemError{Index: index, Input: input, Kind: errorKind(err), Error: err.Error()})
	}

	for i, def := range req.Definitions {
		spec, err := dataset.Parse(def)
		if err != nil {
			reject(i, def, err)
			continue
		}
		specs = append(specs, spec)
	}
	for i, raw := range req.Records {
		index := len(req.Definitions) + i
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			reject(index, string(raw), dataset.ErrSchema)
			continue
		}
		spec, err := dataset.FromRecord(rec)
		if err != nil {
			reject(index, string(raw), err)
			continue
		}
		specs = append(specs, spec)
	}
	return specs, itemErrs, true
}

func reportResponse(rep *generate.Report) RunResponse {
	elapsed := rep.Elapsed.Milliseconds()
	resp := RunResponse{
		RunID:     rep.RunID,
		Status:    "completed",
		RunDir:    rep.Run.Name,
		Total:     len(rep.Outcomes),
		Succeeded: rep.Succeeded(),
		Failed:    len(rep.Failed()),
		ElapsedMS: &elapsed,
	}
	for _, o := range rep.Outcomes {
		view := DatasetOutcomeView{
			Position:   o.Position,
			Definition: o.Spec.String(),
			Status:     "succeeded",
			Command:    o.Command,
		}
		if o.Succeeded() {
			path, digest := o.OutputPath, o.Digest
			view.OutputPath, view.Digest = &path, &digest
			if o.Drift != nil {
				view.Relabeled = o.Drift.Relabeled()
			}
		} else {
			msg := o.Err.Error()
			view.Status = "failed"
			view.LastError = &msg
		}
		resp.Datasets = append(resp.Datasets, view)
	}
	return resp
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return err.Error()
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
