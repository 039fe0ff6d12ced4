// Package generate drives a generation run: one MOA invocation per dataset,
// switching drift simulation on the produced files, then the run log, the
// ledger and progress events.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/moagen/internal/dataset"
	"github.com/mattjoyce/moagen/internal/drift"
	"github.com/mattjoyce/moagen/internal/events"
	"github.com/mattjoyce/moagen/internal/ledger"
	"github.com/mattjoyce/moagen/internal/log"
	"github.com/mattjoyce/moagen/internal/moa"
	"github.com/mattjoyce/moagen/internal/runner"
	"github.com/mattjoyce/moagen/internal/workspace"
)

var (
	// ErrNoDatasets is returned when Run is called with nothing to generate.
	ErrNoDatasets = errors.New("no datasets to generate")
	// ErrMissingOutput means the tool reported success without writing its file.
	ErrMissingOutput = errors.New("external tool wrote no output file")
)

// DriftOptions configures the switching drift simulation.
type DriftOptions struct {
	// Seed 0 draws a fresh seed per dataset. Otherwise dataset i uses Seed+i,
	// which keeps results independent of worker scheduling.
	Seed      uint64
	EarlyExit bool
}

// Orchestrator generates datasets into run directories.
type Orchestrator struct {
	Runner    ToolRunner
	Workspace workspace.Manager
	Tool      moa.Tool

	// Ledger and Hub are optional.
	Ledger Recorder
	Hub    *events.Hub

	Workers     int
	Drift       DriftOptions
	SubmittedBy string
	Logger      *slog.Logger
}

// Outcome is the result of one dataset.
type Outcome struct {
	Spec       dataset.Spec
	Position   int
	Command    string
	OutputPath string
	Digest     string
	Drift      *drift.Report
	Err        error
}

// Succeeded reports whether the dataset file was produced.
func (o Outcome) Succeeded() bool { return o.Err == nil }

// Report summarizes a run.
type Report struct {
	RunID    string
	Run      workspace.RunDir
	Elapsed  time.Duration
	Outcomes []Outcome
}

// Failed returns the outcomes that did not produce a dataset.
func (r *Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			out = append(out, o)
		}
	}
	return out
}

// Succeeded counts produced datasets.
func (r *Report) Succeeded() int {
	return len(r.Outcomes) - len(r.Failed())
}

// Run generates every spec into a fresh run directory. A failing dataset
// never stops the others; the returned error covers run-level failures only.
func (o *Orchestrator) Run(ctx context.Context, specs []dataset.Spec) (*Report, error) {
	if len(specs) == 0 {
		return nil, ErrNoDatasets
	}
	logger := o.logger()

	run, err := o.Workspace.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	invs := make([]moa.Invocation, len(specs))
	entries := make([]ledger.DatasetEntry, len(specs))
	for i, s := range specs {
		invs[i] = moa.NewInvocation(o.Tool, s, run.Dir)
		entries[i] = ledger.DatasetEntry{Definition: s.String(), Command: invs[i].String()}
	}

	// History is written even when ctx is canceled mid-run.
	recCtx := context.WithoutCancel(ctx)

	runID := uuid.NewString()
	datasetIDs := make([]string, len(specs))
	if o.Ledger != nil {
		runID, datasetIDs, err = o.Ledger.StartRun(recCtx, ledger.StartRunRequest{
			OutputRoot:  filepath.Dir(run.Dir),
			RunDir:      run.Name,
			SubmittedBy: o.submittedBy(),
			Datasets:    entries,
		})
		if err != nil {
			return nil, fmt.Errorf("record run start: %w", err)
		}
	}
	logger = logger.With(log.KeyRunID, runID)
	logger.Info("generation started", "run_dir", run.Dir, "datasets", len(specs), "workers", o.workers())
	o.Hub.Publish(events.RunStarted, runID, events.RunPayload{RunDir: run.Dir, Total: len(specs)})

	start := time.Now()
	outcomes := make([]Outcome, len(specs))

	var g errgroup.Group
	g.SetLimit(o.workers())
	for i := range specs {
		g.Go(func() error {
			outcomes[i] = o.generateOne(ctx, recCtx, runID, datasetIDs[i], i, specs[i], invs[i])
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	report := &Report{RunID: runID, Run: run, Elapsed: elapsed, Outcomes: outcomes}

	runErr := workspace.WriteRunLog(run.Dir, runLog(report))
	if runErr != nil {
		runErr = fmt.Errorf("write run log: %w", runErr)
	}

	status := ledger.StatusCompleted
	var lastError *string
	switch {
	case runErr != nil:
		status = ledger.StatusFailed
		msg := runErr.Error()
		lastError = &msg
	case ctx.Err() != nil:
		status = ledger.StatusFailed
		msg := ctx.Err().Error()
		lastError = &msg
	}
	if o.Ledger != nil {
		if err := o.Ledger.CompleteRun(recCtx, runID, status, elapsed, lastError); err != nil {
			logger.Error("failed to record run completion", "error", err)
		}
	}

	o.Hub.Publish(events.RunCompleted, runID, events.RunPayload{
		RunDir:    run.Dir,
		Total:     len(specs),
		Succeeded: report.Succeeded(),
		Failed:    len(report.Failed()),
		ElapsedMS: elapsed.Milliseconds(),
	})
	logger.Info("generation finished", "elapsed", elapsed,
		"succeeded", report.Succeeded(), "failed", len(report.Failed()))

	return report, runErr
}

func (o *Orchestrator) generateOne(ctx, recCtx context.Context, runID, datasetID string, pos int, spec dataset.Spec, inv moa.Invocation) Outcome {
	def := spec.String()
	logger := o.logger().With(log.KeyRunID, runID, log.KeyDataset, def)
	out := Outcome{Spec: spec, Position: pos, Command: inv.String()}
	payload := events.DatasetPayload{Definition: def, Position: pos, Command: out.Command}

	if o.Ledger != nil {
		if err := o.Ledger.MarkDatasetRunning(recCtx, datasetID); err != nil {
			logger.Error("failed to record dataset start", "error", err)
		}
	}
	o.Hub.Publish(events.DatasetStarted, runID, payload)

	fail := func(err error) Outcome {
		out.Err = err
		logger.Error("dataset failed", "error", err)
		payload.Error = err.Error()
		o.Hub.Publish(events.DatasetFailed, runID, payload)
		if o.Ledger != nil {
			msg := err.Error()
			rec := ledger.DatasetOutcome{Status: ledger.StatusFailed, LastError: &msg}
			var te *runner.ToolError
			if errors.As(err, &te) && te.Stderr != "" {
				rec.Stderr = &te.Stderr
			}
			if err := o.Ledger.CompleteDataset(recCtx, datasetID, rec); err != nil {
				logger.Error("failed to record dataset outcome", "error", err)
			}
		}
		return out
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("run canceled before start: %w", err))
	}

	if _, err := o.Runner.Run(ctx, inv); err != nil {
		return fail(err)
	}

	if _, err := os.Stat(inv.OutputPath); err != nil {
		return fail(fmt.Errorf("%w: %s: %w", ErrMissingOutput, inv.OutputPath, err))
	}
	out.OutputPath = inv.OutputPath

	if spec.HasSwitchingDrift() {
		sim := o.simulator(pos)
		rep, err := sim.ApplyFile(inv.OutputPath, spec)
		if err != nil {
			return fail(fmt.Errorf("simulate switching drift: %w", err))
		}
		out.Drift = rep
		logger.Info("switching drift simulated", "relabeled", rep.Relabeled(), "segments", len(rep.Segments))
	}

	digest, err := workspace.FileDigest(inv.OutputPath)
	if err != nil {
		return fail(fmt.Errorf("digest output: %w", err))
	}
	out.Digest = digest

	relabeled := 0
	if out.Drift != nil {
		relabeled = out.Drift.Relabeled()
	}
	if o.Ledger != nil {
		if err := o.Ledger.CompleteDataset(recCtx, datasetID, ledger.DatasetOutcome{
			Status:     ledger.StatusSucceeded,
			OutputPath: out.OutputPath,
			Digest:     digest,
			Relabeled:  relabeled,
		}); err != nil {
			logger.Error("failed to record dataset outcome", "error", err)
		}
	}

	payload.OutputPath = out.OutputPath
	payload.Digest = digest
	payload.Relabeled = relabeled
	o.Hub.Publish(events.DatasetCompleted, runID, payload)
	logger.Info("dataset generated", "path", out.OutputPath)
	return out
}

func (o *Orchestrator) simulator(pos int) *drift.Simulator {
	seed := o.Drift.Seed
	if seed != 0 {
		seed += uint64(pos)
	}
	sim := drift.New(seed)
	sim.DisableEarlyExit = !o.Drift.EarlyExit
	return sim
}

func runLog(r *Report) *workspace.RunLog {
	l := &workspace.RunLog{Elapsed: r.Elapsed}
	for _, o := range r.Outcomes {
		def := o.Spec.String()
		l.Datasets = append(l.Datasets, def)
		if !o.Succeeded() {
			l.Failures = append(l.Failures, workspace.Failure{Dataset: def, Error: o.Err.Error()})
			continue
		}
		l.Checksums = append(l.Checksums, workspace.Checksum{
			File:   filepath.Base(o.OutputPath),
			Digest: o.Digest,
		})
	}
	return l
}

func (o *Orchestrator) workers() int {
	if o.Workers < 1 {
		return 1
	}
	return o.Workers
}

func (o *Orchestrator) submittedBy() string {
	if o.SubmittedBy == "" {
		return "cli"
	}
	return o.SubmittedBy
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return log.WithComponent("generate")
	}
	return o.Logger
}
