package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/moagen/internal/log"
	"github.com/mattjoyce/moagen/internal/moa"
)

const (
	// DefaultSuccessMarker is printed by MOA on stderr when a task runs.
	DefaultSuccessMarker = "{M}assive {O}nline {A}nalysis"

	// DefaultTimeout bounds a single generation.
	DefaultTimeout = 30 * time.Minute

	// maxCaptureBytes caps the stdout/stderr kept for reporting.
	maxCaptureBytes = 64 * 1024

	// terminationGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	terminationGracePeriod = 5 * time.Second
)

var (
	// ErrExternalTool is wrapped by every failed invocation.
	ErrExternalTool = errors.New("external tool failed")
	// ErrTimeout is additionally wrapped when the invocation ran out of time.
	ErrTimeout = errors.New("external tool timed out")
)

// Kind classifies a tool failure.
type Kind string

const (
	KindStart         Kind = "start"
	KindErrorOutput   Kind = "error_output"
	KindMissingMarker Kind = "missing_marker"
	KindTimeout       Kind = "timeout"
	KindCanceled      Kind = "canceled"
)

// ToolError describes a failed invocation.
type ToolError struct {
	Kind     Kind
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s (%s)", ErrExternalTool, e.Kind)
	switch e.Kind {
	case KindTimeout:
		msg = ErrTimeout.Error()
	case KindErrorOutput:
		msg += ": tool reported an error on stdout"
	case KindMissingMarker:
		msg += ": success marker not found on stderr"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ToolError) Unwrap() []error {
	errs := []error{ErrExternalTool}
	if e.Kind == KindTimeout {
		errs = append(errs, ErrTimeout)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Result is the outcome of a successful invocation.
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner spawns invocations and judges their output.
type Runner struct {
	Timeout       time.Duration
	SuccessMarker string
	// GracePeriod overrides the SIGTERM to SIGKILL delay when positive.
	GracePeriod time.Duration
	logger      *slog.Logger
}

// New creates a Runner. Zero values fall back to the defaults.
func New(timeout time.Duration, marker string) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if marker == "" {
		marker = DefaultSuccessMarker
	}
	return &Runner{
		Timeout:       timeout,
		SuccessMarker: marker,
		logger:        log.WithComponent("runner"),
	}
}

// Run executes inv and blocks until it exits, times out, or ctx is done.
func (r *Runner) Run(ctx context.Context, inv moa.Invocation) (*Result, error) {
	logger := r.log().With("command", inv.String())
	logger.Info("running external tool", "timeout", r.Timeout)

	res, err := r.spawn(ctx, inv, logger)
	if err != nil {
		var te *ToolError
		if errors.As(err, &te) {
			logger.Error("external tool failed", "kind", te.Kind, "exit_code", te.ExitCode,
				"stdout", te.Stdout, "stderr", te.Stderr)
		}
		return nil, err
	}

	if err := r.judge(res); err != nil {
		var te *ToolError
		errors.As(err, &te)
		logger.Error("external tool failed", "kind", te.Kind, "exit_code", te.ExitCode,
			"stdout", te.Stdout, "stderr", te.Stderr)
		return nil, err
	}

	logger.Info("external tool finished", "duration", res.Duration, "exit_code", res.ExitCode)
	return res, nil
}

// Probe runs the bare MOA entry point to check that Java and the MOA jars
// are reachable. Only the success marker is required.
func (r *Runner) Probe(ctx context.Context, tool moa.Tool) (*Result, error) {
	inv := moa.ProbeInvocation(tool)
	logger := r.log().With("command", inv.String())
	res, err := r.spawn(ctx, inv, logger)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(res.Stderr, r.marker()) && !strings.Contains(res.Stdout, r.marker()) {
		return nil, &ToolError{
			Kind:     KindMissingMarker,
			Command:  res.Command,
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
		}
	}
	return res, nil
}

// judge applies the success criteria to a finished run.
func (r *Runner) judge(res *Result) error {
	kind := Kind("")
	switch {
	case strings.Contains(strings.ToLower(res.Stdout), "error"):
		kind = KindErrorOutput
	case !strings.Contains(res.Stderr, r.marker()):
		kind = KindMissingMarker
	default:
		return nil
	}
	return &ToolError{
		Kind:     kind,
		Command:  res.Command,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}
}

func (r *Runner) spawn(ctx context.Context, inv moa.Invocation, logger *slog.Logger) (*Result, error) {
	timeoutTimer := time.NewTimer(r.Timeout)
	defer timeoutTimer.Stop()

	// Not CommandContext: termination is managed here so SIGTERM comes first.
	cmd := exec.Command(inv.Executable, inv.Args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &ToolError{Kind: KindStart, Command: inv.String(), ExitCode: -1,
			Err: fmt.Errorf("start process: %w", err)}
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	fail := func(kind Kind, cause error) error {
		return &ToolError{
			Kind:     kind,
			Command:  inv.String(),
			ExitCode: exitCode(cmd),
			Stdout:   truncate(stdout.String()),
			Stderr:   truncate(stderr.String()),
			Err:      cause,
		}
	}

	select {
	case <-timeoutTimer.C:
		logger.Warn("external tool timed out, sending SIGTERM", "timeout", r.Timeout)
		r.terminate(cmd, waitErr, logger)
		return nil, fail(KindTimeout, fmt.Errorf("no result after %v", r.Timeout))

	case <-ctx.Done():
		logger.Warn("run canceled, sending SIGTERM")
		r.terminate(cmd, waitErr, logger)
		return nil, fail(KindCanceled, ctx.Err())

	case err := <-waitErr:
		if err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return nil, fail(KindStart, fmt.Errorf("wait for process: %w", err))
			}
			logger.Warn("external tool exited with non-zero status", "exit_code", exitErr.ExitCode())
		}
		return &Result{
			Command:  inv.String(),
			Stdout:   truncate(stdout.String()),
			Stderr:   truncate(stderr.String()),
			ExitCode: exitCode(cmd),
			Duration: time.Since(start),
		}, nil
	}
}

// terminate sends SIGTERM, waits for the grace period, then SIGKILL.
func (r *Runner) terminate(cmd *exec.Cmd, waitErr <-chan error, logger *slog.Logger) {
	if cmd.Process != nil {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			logger.Error("failed to send SIGTERM", "error", err)
		}
	}

	grace := time.NewTimer(r.grace())
	defer grace.Stop()

	select {
	case <-waitErr:
		logger.Info("external tool exited after SIGTERM")
	case <-grace.C:
		logger.Warn("external tool did not exit after SIGTERM, sending SIGKILL")
		if cmd.Process != nil {
			if err := cmd.Process.Kill(); err != nil {
				logger.Error("failed to send SIGKILL", "error", err)
			}
		}
		<-waitErr
	}
}

func (r *Runner) grace() time.Duration {
	if r.GracePeriod > 0 {
		return r.GracePeriod
	}
	return terminationGracePeriod
}

func (r *Runner) marker() string {
	if r.SuccessMarker == "" {
		return DefaultSuccessMarker
	}
	return r.SuccessMarker
}

func (r *Runner) log() *slog.Logger {
	if r.logger == nil {
		return log.WithComponent("runner")
	}
	return r.logger
}

func exitCode(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}

// truncate caps captured output at maxCaptureBytes.
func truncate(s string) string {
	if len(s) > maxCaptureBytes {
		return s[:maxCaptureBytes]
	}
	return s
}
