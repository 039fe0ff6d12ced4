package events

const (
	RunStarted       = "run.started"
	RunCompleted     = "run.completed"
	DatasetStarted   = "dataset.started"
	DatasetCompleted = "dataset.completed"
	DatasetFailed    = "dataset.failed"
)

// RunPayload accompanies run.* events.
type RunPayload struct {
	RunDir    string `json:"run_dir"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded,omitempty"`
	Failed    int    `json:"failed,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms,omitempty"`
}

// DatasetPayload accompanies dataset.* events.
type DatasetPayload struct {
	Definition string `json:"definition"`
	Position   int    `json:"position"`
	Command    string `json:"command,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
	Digest     string `json:"digest,omitempty"`
	Relabeled  int    `json:"relabeled,omitempty"`
	Error      string `json:"error,omitempty"`
}
