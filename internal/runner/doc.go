// Package runner executes MOA invocations as subprocesses.
//
// Each invocation is spawned directly with exec.Command (no shell), with
// stdout and stderr captured. A run succeeds when stdout carries no error
// report and stderr carries the MOA banner.
//
// Timeout handling:
//   - When the timeout expires, SIGTERM is sent to the process
//   - After a 5 second grace period, SIGKILL is sent if it is still running
//   - The run fails with a *ToolError wrapping ErrTimeout
//
// Context cancellation terminates the process the same way.
package runner
