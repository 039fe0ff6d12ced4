package workspace

import (
	"context"
	"time"
)

// RunDirLayout is the time layout used to name run directories.
const RunDirLayout = "2006_01_02_15_04_05"

// RunDir is one timestamped generation directory under the output root.
//
// Datasets and the run log of a single generation run live side by side in
// Dir; the ledger stores only Name so the output root can move.
type RunDir struct {
	Name      string
	Dir       string
	CreatedAt time.Time
}

// CleanupReport summarizes a cleanup run.
type CleanupReport struct {
	DeletedDirs int
}

// Manager governs the run directories below an output root.
type Manager interface {
	// Create makes a new run directory named after the current time.
	Create(ctx context.Context) (RunDir, error)

	// Open resolves an existing run directory by name.
	Open(ctx context.Context, name string) (RunDir, error)

	// List returns run directories, oldest first.
	List(ctx context.Context) ([]RunDir, error)

	// Cleanup removes run directories older than olderThan.
	Cleanup(ctx context.Context, olderThan time.Duration) (CleanupReport, error)
}
