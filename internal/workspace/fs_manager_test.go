package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestFSManagerCreateAndOpen(t *testing.T) {
	root := filepath.Join(t.TempDir(), "results")
	mgr, err := NewFSManager(root)
	if err != nil {
		t.Fatalf("NewFSManager() error = %v", err)
	}
	mgr.now = fixedClock(time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local))

	run, err := mgr.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	wantPath := filepath.Join(root, "2024_03_09_14_05_07")
	if run.Dir != wantPath {
		t.Fatalf("Create() dir = %q, want %q", run.Dir, wantPath)
	}

	info, err := os.Stat(run.Dir)
	if err != nil {
		t.Fatalf("Stat(run dir) error = %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("run path is not a directory")
	}

	opened, err := mgr.Open(context.Background(), run.Name)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if opened.Dir != run.Dir || !opened.CreatedAt.Equal(run.CreatedAt) {
		t.Fatalf("Open() run = %+v, want %+v", opened, run)
	}
}

func TestFSManagerCreateSameSecond(t *testing.T) {
	root := t.TempDir()
	mgr, err := NewFSManager(root)
	if err != nil {
		t.Fatalf("NewFSManager() error = %v", err)
	}
	mgr.now = fixedClock(time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local))

	first, err := mgr.Create(context.Background())
	if err != nil {
		t.Fatalf("Create(first) error = %v", err)
	}
	second, err := mgr.Create(context.Background())
	if err != nil {
		t.Fatalf("Create(second) error = %v", err)
	}
	if first.Name != "2024_03_09_14_05_07" || second.Name != "2024_03_09_14_05_07_1" {
		t.Fatalf("Create() names = %q, %q", first.Name, second.Name)
	}
}

func TestFSManagerCreateIsIdempotentOnRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	mgr, err := NewFSManager(root)
	if err != nil {
		t.Fatalf("NewFSManager() error = %v", err)
	}
	if _, err := mgr.Create(context.Background()); err != nil {
		t.Fatalf("Create() with existing root error = %v", err)
	}
}

func TestFSManagerRejectsEmptyRoot(t *testing.T) {
	if _, err := NewFSManager("  "); err == nil {
		t.Fatalf("NewFSManager(blank) expected error")
	}
}

func TestFSManagerOpenInvalidName(t *testing.T) {
	mgr, err := NewFSManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSManager() error = %v", err)
	}
	for _, name := range []string{"", "..", "a/b", `a\b`} {
		if _, err := mgr.Open(context.Background(), name); err == nil {
			t.Fatalf("Open(%q) expected error", name)
		}
	}
}

func TestFSManagerListSkipsForeignEntries(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"2024_01_02_03_04_05", "2023_12_31_23_59_59_2", "notes", "2024_01_02_03_04_05_x"} {
		if err := os.Mkdir(filepath.Join(root, name), 0o755); err != nil {
			t.Fatalf("Mkdir(%s) error = %v", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "2024_05_05_05_05_05"), nil, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	mgr, err := NewFSManager(root)
	if err != nil {
		t.Fatalf("NewFSManager() error = %v", err)
	}
	runs, err := mgr.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("List() = %+v, want 2 runs", runs)
	}
	if runs[0].Name != "2023_12_31_23_59_59_2" || runs[1].Name != "2024_01_02_03_04_05" {
		t.Fatalf("List() order = %q, %q", runs[0].Name, runs[1].Name)
	}
}

func TestFSManagerListMissingRoot(t *testing.T) {
	mgr, err := NewFSManager(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("NewFSManager() error = %v", err)
	}
	runs, err := mgr.List(context.Background())
	if err != nil || runs != nil {
		t.Fatalf("List() = %v, %v; want nil, nil", runs, err)
	}
}

func TestFSManagerCleanup(t *testing.T) {
	root := t.TempDir()
	mgr, err := NewFSManager(root)
	if err != nil {
		t.Fatalf("NewFSManager() error = %v", err)
	}

	mgr.now = fixedClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local))
	oldRun, err := mgr.Create(context.Background())
	if err != nil {
		t.Fatalf("Create(old) error = %v", err)
	}
	mgr.now = time.Now
	newRun, err := mgr.Create(context.Background())
	if err != nil {
		t.Fatalf("Create(new) error = %v", err)
	}
	foreign := filepath.Join(root, "keep-me")
	if err := os.Mkdir(foreign, 0o755); err != nil {
		t.Fatalf("Mkdir(foreign) error = %v", err)
	}

	oldTime := time.Now().Add(-48 * time.Hour)
	for _, dir := range []string{oldRun.Dir, foreign} {
		if err := os.Chtimes(dir, oldTime, oldTime); err != nil {
			t.Fatalf("Chtimes(%s) error = %v", dir, err)
		}
	}

	report, err := mgr.Cleanup(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if report.DeletedDirs != 1 {
		t.Fatalf("Cleanup() deleted = %d, want 1", report.DeletedDirs)
	}

	if _, err := os.Stat(oldRun.Dir); !os.IsNotExist(err) {
		t.Fatalf("old run should be deleted, err = %v", err)
	}
	if _, err := os.Stat(newRun.Dir); err != nil {
		t.Fatalf("new run should still exist, err = %v", err)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Fatalf("foreign directory should still exist, err = %v", err)
	}

	if _, err := mgr.Cleanup(context.Background(), 0); err == nil {
		t.Fatalf("Cleanup(0) expected error")
	}
}
