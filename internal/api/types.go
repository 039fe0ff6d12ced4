package api

import (
	"encoding/json"
	"time"

	"github.com/mattjoyce/moagen/internal/dataset"
	"github.com/mattjoyce/moagen/internal/ledger"
)

// DatasetsRequest is the body of POST /validate, /command and /runs. Both
// forms may be mixed; definitions are numbered before records.
type DatasetsRequest struct {
	Definitions []string                     `json:"definitions,omitempty"`
	Records     []json.RawMessage `json:"records,omitempty"`
}

// ItemError reports one rejected entry of a DatasetsRequest.
type ItemError struct {
	Index int    `json:"index"`
	Input string `json:"input"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// DatasetView describes a valid dataset.
type DatasetView struct {
	Definition      string `json:"definition"`
	Generator       string `json:"generator"`
	Functions       []int  `json:"classification_functions"`
	DriftPoints     []int  `json:"drift_points"`
	DriftWidths     []int  `json:"drift_widths"`
	Samples         int    `json:"num_of_samples"`
	SwitchingDrifts int    `json:"switching_drifts"`
}

// ValidateResponse is returned by POST /validate.
type ValidateResponse struct {
	Valid  []DatasetView `json:"valid"`
	Errors []ItemError   `json:"errors"`
}

// CommandView is a rendered MOA invocation.
type CommandView struct {
	Definition string `json:"definition"`
	Command    string `json:"command"`
	OutputPath string `json:"output_path"`
}

// CommandResponse is returned by POST /command.
type CommandResponse struct {
	Commands []CommandView `json:"commands"`
	Errors   []ItemError   `json:"errors"`
}

// StartRunResponse is returned by POST /runs without ?wait=true.
type StartRunResponse struct {
	Status      string   `json:"status"`
	Total       int      `json:"total"`
	Definitions []string `json:"definitions"`
}

// RunResponse summarizes a run from the ledger, or from the report of a
// synchronous run.
type RunResponse struct {
	RunID       string     `json:"run_id"`
	Status      string     `json:"status"`
	OutputRoot  string     `json:"output_root,omitempty"`
	RunDir      string     `json:"run_dir"`
	SubmittedBy string     `json:"submitted_by,omitempty"`
	Total       int        `json:"total"`
	Succeeded   int        `json:"succeeded"`
	Failed      int        `json:"failed"`
	ElapsedMS   *int64     `json:"elapsed_ms,omitempty"`
	LastError   *string    `json:"last_error,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Datasets []DatasetOutcomeView `json:"datasets,omitempty"`
}

// DatasetOutcomeView is one dataset of a run.
type DatasetOutcomeView struct {
	Position    int        `json:"position"`
	Definition  string     `json:"definition"`
	Status      string     `json:"status"`
	Command     string     `json:"command,omitempty"`
	OutputPath  *string    `json:"output_path,omitempty"`
	Digest      *string    `json:"digest,omitempty"`
	Relabeled   int        `json:"relabeled"`
	LastError   *string    `json:"last_error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error  string      `json:"error"`
	Errors []ItemError `json:"errors,omitempty"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Generating    bool   `json:"generating"`
	Generators    int    `json:"generators"`
}

func datasetView(s dataset.Spec) DatasetView {
	switching := 0
	for _, d := range s.Drifts() {
		if d.Switching() {
			switching++
		}
	}
	return DatasetView{
		Definition:      s.String(),
		Generator:       s.GeneratorName(),
		Functions:       s.Functions(),
		DriftPoints:     s.DriftPoints(),
		DriftWidths:     s.DriftWidths(),
		Samples:         s.Samples(),
		SwitchingDrifts: switching,
	}
}

func runResponse(r *ledger.Run) RunResponse {
	out := RunResponse{
		RunID:       r.ID,
		Status:      string(r.Status),
		OutputRoot:  r.OutputRoot,
		RunDir:      r.RunDir,
		SubmittedBy: r.SubmittedBy,
		Total:       r.Total,
		Succeeded:   r.Succeeded,
		Failed:      r.Failed,
		LastError:   r.LastError,
		CompletedAt: r.CompletedAt,
	}
	if r.Elapsed != nil {
		ms := r.Elapsed.Milliseconds()
		out.ElapsedMS = &ms
	}
	if !r.CreatedAt.IsZero() {
		created := r.CreatedAt
		out.CreatedAt = &created
	}
	return out
}

func datasetOutcomeView(d ledger.Dataset) DatasetOutcomeView {
	return DatasetOutcomeView{
		Position:    d.Position,
		Definition:  d.Definition,
		Status:      string(d.Status),
		Command:     d.Command,
		OutputPath:  d.OutputPath,
		Digest:      d.Digest,
		Relabeled:   d.Relabeled,
		LastError:   d.LastError,
		StartedAt:   d.StartedAt,
		CompletedAt: d.CompletedAt,
	}
}
