package ledger

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCompleted Status = "completed"
)

// Run is one generation run.
type Run struct {
	ID          string
	OutputRoot  string
	RunDir      string
	Status      Status
	SubmittedBy string
	Total       int
	Succeeded   int
	Failed      int
	Elapsed     *time.Duration
	LastError   *string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Dataset is the outcome of one dataset inside a run.
type Dataset struct {
	ID          string
	RunID       string
	Position    int
	Definition  string
	Command     string
	Status      Status
	OutputPath  *string
	Digest      *string
	Relabeled   int
	LastError   *string
	Stderr      *string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// DatasetEntry announces a dataset when a run starts.
type DatasetEntry struct {
	Definition string
	Command    string
}

type StartRunRequest struct {
	OutputRoot  string
	RunDir      string
	SubmittedBy string
	Datasets    []DatasetEntry
}

// DatasetOutcome is recorded when a dataset reaches a terminal status.
type DatasetOutcome struct {
	Status     Status
	OutputPath string
	Digest     string
	Relabeled  int
	LastError  *string
	Stderr     *string
}

var (
	ErrRunNotFound     = errors.New("run not found")
	ErrDatasetNotFound = errors.New("dataset not found")
)
