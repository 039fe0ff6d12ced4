package doctor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/moagen/internal/config"
	"github.com/mattjoyce/moagen/internal/moa"
	"github.com/mattjoyce/moagen/internal/runner"
	"github.com/mattjoyce/moagen/internal/storage"
)

type fakeProber struct {
	err   error
	calls int
}

func (f *fakeProber) Probe(ctx context.Context, tool moa.Tool) (*runner.Result, error) {
	f.calls++
	return &runner.Result{}, f.err
}

func moaRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	lib := filepath.Join(root, "lib")
	if err := os.MkdirAll(lib, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, jar := range []string{"moa.jar", "sizeofag-1.1.0.jar"} {
		if err := os.WriteFile(filepath.Join(lib, jar), nil, 0o644); err != nil {
			t.Fatalf("write jar: %v", err)
		}
	}
	return root
}

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Tool.MOAPath = moaRoot(t)
	cfg.Output.Dir = t.TempDir()
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "moagen.db")
	return cfg
}

func newDoctor(cfg *config.Config, prober Prober) *Doctor {
	d := New(cfg, prober)
	d.lookPath = func(string) (string, error) { return "/usr/bin/java", nil }
	d.fsCheck = func(storage.Volume, string) error { return nil }
	return d
}

func hasIssue(issues []Issue, field, substr string) bool {
	for _, i := range issues {
		if i.Field == field && strings.Contains(i.Message, substr) {
			return true
		}
	}
	return false
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	prober := &fakeProber{}
	r := newDoctor(validConfig(t), prober).Validate(context.Background())
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if prober.calls != 1 {
		t.Fatalf("expected one probe, got %d", prober.calls)
	}
}

func TestValidate_JavaMissing(t *testing.T) {
	t.Parallel()
	prober := &fakeProber{}
	d := newDoctor(validConfig(t), prober)
	d.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	r := d.Validate(context.Background())
	if r.Valid {
		t.Fatal("expected invalid")
	}
	if !hasIssue(r.Errors, "tool.java_path", "not found") {
		t.Fatalf("expected java error, got %v", r.Errors)
	}
	if prober.calls != 0 {
		t.Fatal("probe must be skipped when java is missing")
	}
}

func TestValidate_MissingJar(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	if err := os.Remove(filepath.Join(cfg.Tool.MOAPath, "lib", "sizeofag-1.1.0.jar")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	r := newDoctor(cfg, nil).Validate(context.Background())
	if !hasIssue(r.Errors, "tool.moa_path", "sizeofag-1.1.0.jar") {
		t.Fatalf("expected missing agent jar, got %v", r.Errors)
	}
}

func TestValidate_MOAPathNotDir(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Tool.MOAPath = filepath.Join(t.TempDir(), "nope")
	r := newDoctor(cfg, nil).Validate(context.Background())
	if !hasIssue(r.Errors, "tool.moa_path", "nope") {
		t.Fatalf("expected moa_path error, got %v", r.Errors)
	}
}

func TestValidate_ProbeFailure(t *testing.T) {
	t.Parallel()
	r := newDoctor(validConfig(t), &fakeProber{err: runner.ErrExternalTool}).Validate(context.Background())
	if r.Valid {
		t.Fatal("expected invalid")
	}
	if !hasIssue(r.Errors, "", "MOA probe failed") {
		t.Fatalf("expected probe error, got %v", r.Errors)
	}
}

func TestValidate_OutputDir(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t)
	cfg.Output.Dir = filepath.Join(t.TempDir(), "later")
	r := newDoctor(cfg, nil).Validate(context.Background())
	if !r.Valid || !hasIssue(r.Warnings, "output.dir", "will be created") {
		t.Fatalf("expected creation warning, got %+v", r)
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg.Output.Dir = file
	r = newDoctor(cfg, nil).Validate(context.Background())
	if !hasIssue(r.Errors, "output.dir", "not a directory") {
		t.Fatalf("expected not-a-directory error, got %v", r.Errors)
	}
}

func TestValidate_LedgerFilesystem(t *testing.T) {
	t.Parallel()
	d := newDoctor(validConfig(t), nil)
	d.fsCheck = func(v storage.Volume, path string) error {
		return &storage.NetworkFSError{Volume: v, Path: path, FSType: "nfs"}
	}
	r := d.Validate(context.Background())
	if !hasIssue(r.Errors, "ledger.path", "network filesystem") {
		t.Fatalf("expected ledger error, got %v", r.Errors)
	}
	if !hasIssue(r.Warnings, "output.dir", "other hosts") {
		t.Fatalf("expected output root warning, got %v", r.Warnings)
	}
}

func TestValidate_APIExposure(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t)
	cfg.API.Listen = "0.0.0.0:8484"
	r := newDoctor(cfg, nil).Validate(context.Background())
	if !hasIssue(r.Errors, "api.auth", "without authentication") {
		t.Fatalf("expected exposure error, got %v", r.Errors)
	}

	cfg.API.Auth.APIKey = "secret"
	r = newDoctor(cfg, nil).Validate(context.Background())
	if !r.Valid {
		t.Fatalf("expected valid with api_key, got %v", r.Errors)
	}
	if !hasIssue(r.Warnings, "api.auth.api_key", "full access") {
		t.Fatalf("expected api_key warning, got %v", r.Warnings)
	}

	cfg.API.Listen = "not-an-address"
	r = newDoctor(cfg, nil).Validate(context.Background())
	if !hasIssue(r.Errors, "api.listen", "invalid listen address") {
		t.Fatalf("expected listen error, got %v", r.Errors)
	}
}

func TestValidate_EmptyToken(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.API.Auth.Tokens = []config.APIToken{{Token: " ", Scopes: []string{"runs:ro"}}}
	r := newDoctor(cfg, nil).Validate(context.Background())
	if !hasIssue(r.Warnings, "api.auth.tokens[0].token", "empty") {
		t.Fatalf("expected empty token warning, got %v", r.Warnings)
	}
}

func TestFormatHuman(t *testing.T) {
	t.Parallel()

	if got := FormatHuman(&Result{Valid: true}); got != "Configuration valid.\n" {
		t.Fatalf("unexpected output %q", got)
	}

	out := FormatHuman(&Result{
		Valid:    false,
		Errors:   []Issue{{Category: "tool", Field: "tool.java_path", Message: "missing"}},
		Warnings: []Issue{{Category: "output", Message: "later"}},
	})
	for _, want := range []string{
		"Configuration invalid (1 error(s), 1 warning(s))",
		"ERROR [tool] tool.java_path: missing",
		"WARN  [output] later",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	out, err := FormatJSON(&Result{Valid: true})
	if err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}
	if !strings.Contains(out, `"valid": true`) {
		t.Fatalf("unexpected JSON %q", out)
	}
}
