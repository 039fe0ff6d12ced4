package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/moagen/internal/dataset"
	"github.com/mattjoyce/moagen/internal/log"
	"github.com/mattjoyce/moagen/internal/moa"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR") // Suppress logs in tests
	os.Exit(m.Run())
}

// fakeTool writes an executable script standing in for java.
func fakeTool(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "java")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/bash\n"+script), 0o755))
	return path
}

func invocationFor(t *testing.T, exe string) moa.Invocation {
	t.Helper()
	spec := dataset.MustNew("SEA", []int{1, 2}, []int{50}, []int{10}, 100)
	return moa.NewInvocation(moa.Tool{JavaPath: exe, MOAPath: "/opt/moa"}, spec, t.TempDir())
}

func TestRunSuccess(t *testing.T) {
	exe := fakeTool(t, `
echo "$@"
echo '{M}assive {O}nline {A}nalysis' >&2
`)
	inv := invocationFor(t, exe)

	res, err := New(5*time.Second, "").Run(context.Background(), inv)
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "moa.DoTask")
	assert.Contains(t, res.Stdout, "WriteStreamToARFFFile -s (ConceptDriftStream")
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, inv.String(), res.Command)
}

func TestRunErrorOnStdout(t *testing.T) {
	exe := fakeTool(t, `
echo "Task failed. Reason: ERROR in stream options"
echo '{M}assive {O}nline {A}nalysis' >&2
`)
	_, err := New(5*time.Second, "").Run(context.Background(), invocationFor(t, exe))
	require.ErrorIs(t, err, ErrExternalTool)
	assert.NotErrorIs(t, err, ErrTimeout)

	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindErrorOutput, te.Kind)
	assert.Contains(t, te.Stdout, "ERROR in stream options")
}

func TestRunMissingMarker(t *testing.T) {
	exe := fakeTool(t, `
echo "done"
echo "java.lang.NoClassDefFoundError: moa/DoTask" >&2
`)
	_, err := New(5*time.Second, "").Run(context.Background(), invocationFor(t, exe))

	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindMissingMarker, te.Kind)
	assert.Contains(t, te.Stderr, "NoClassDefFoundError")
}

func TestRunCustomMarker(t *testing.T) {
	exe := fakeTool(t, `echo "MOA ready" >&2`)
	_, err := New(5*time.Second, "MOA ready").Run(context.Background(), invocationFor(t, exe))
	require.NoError(t, err)
}

func TestRunNonZeroExitIsJudgedByMarkers(t *testing.T) {
	exe := fakeTool(t, `
echo '{M}assive {O}nline {A}nalysis' >&2
exit 3
`)
	res, err := New(5*time.Second, "").Run(context.Background(), invocationFor(t, exe))
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestRunTimeout(t *testing.T) {
	// exec so SIGTERM reaches sleep directly
	exe := fakeTool(t, `exec sleep 10`)
	r := New(200*time.Millisecond, "")

	start := time.Now()
	_, err := r.Run(context.Background(), invocationFor(t, exe))
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, err, ErrExternalTool)
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindTimeout, te.Kind)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestRunTimeoutEscalatesToKill(t *testing.T) {
	// An ignored SIGTERM survives exec, forcing the SIGKILL path.
	exe := fakeTool(t, `
trap '' TERM
exec sleep 10
`)
	r := New(200*time.Millisecond, "")
	r.GracePeriod = 200 * time.Millisecond

	start := time.Now()
	_, err := r.Run(context.Background(), invocationFor(t, exe))
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunCanceled(t *testing.T) {
	exe := fakeTool(t, `exec sleep 10`)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := New(time.Minute, "").Run(ctx, invocationFor(t, exe))
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, ErrExternalTool)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestRunMissingExecutable(t *testing.T) {
	exe := filepath.Join(t.TempDir(), "no-such-java")
	_, err := New(time.Second, "").Run(context.Background(), invocationFor(t, exe))

	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindStart, te.Kind)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestProbe(t *testing.T) {
	exe := fakeTool(t, `
echo "$@"
echo '{M}assive {O}nline {A}nalysis' >&2
`)
	tool := moa.Tool{JavaPath: exe, MOAPath: "/opt/moa"}
	res, err := New(5*time.Second, "").Probe(context.Background(), tool)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(res.Stdout), "moa.DoTask"))

	silent := moa.Tool{JavaPath: fakeTool(t, `exit 1`), MOAPath: "/opt/moa"}
	_, err = New(5*time.Second, "").Probe(context.Background(), silent)
	require.ErrorIs(t, err, ErrExternalTool)
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", maxCaptureBytes+10)
	assert.Len(t, truncate(long), maxCaptureBytes)
	assert.Equal(t, "short", truncate("short"))
}

func TestToolErrorMessage(t *testing.T) {
	err := &ToolError{Kind: KindMissingMarker}
	assert.Contains(t, err.Error(), "success marker")
	assert.Equal(t, ErrTimeout.Error(), (&ToolError{Kind: KindTimeout}).Error())
}
