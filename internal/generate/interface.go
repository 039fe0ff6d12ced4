package generate

import (
	"context"
	"time"

	"github.com/mattjoyce/moagen/internal/ledger"
	"github.com/mattjoyce/moagen/internal/moa"
	"github.com/mattjoyce/moagen/internal/runner"
)

//go:generate mockgen -destination=mocks/mock_runner.go -package=mocks github.com/mattjoyce/moagen/internal/generate ToolRunner

// ToolRunner executes MOA invocations. *runner.Runner satisfies it.
type ToolRunner interface {
	Run(ctx context.Context, inv moa.Invocation) (*runner.Result, error)
}

// Recorder persists run history. *ledger.Ledger satisfies it.
type Recorder interface {
	StartRun(ctx context.Context, req ledger.StartRunRequest) (string, []string, error)
	MarkDatasetRunning(ctx context.Context, datasetID string) error
	CompleteDataset(ctx context.Context, datasetID string, out ledger.DatasetOutcome) error
	CompleteRun(ctx context.Context, runID string, status ledger.Status, elapsed time.Duration, lastError *string) error
}
