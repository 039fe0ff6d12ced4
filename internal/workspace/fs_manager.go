package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// maxCollisions bounds the suffixes tried when two runs start in the same second.
const maxCollisions = 100

// fsManager manages run directories on local disk.
type fsManager struct {
	root string
	now  func() time.Time
}

var _ Manager = (*fsManager)(nil)

// NewFSManager creates a filesystem-backed run directory manager rooted at root.
func NewFSManager(root string) (*fsManager, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return nil, fmt.Errorf("output directory is empty")
	}

	return &fsManager{
		root: filepath.Clean(trimmed),
		now:  time.Now,
	}, nil
}

// Root returns the output root.
func (m *fsManager) Root() string { return m.root }

// Create initializes a run directory. The output root is created if missing.
func (m *fsManager) Create(ctx context.Context) (RunDir, error) {
	if err := ctx.Err(); err != nil {
		return RunDir{}, err
	}

	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return RunDir{}, fmt.Errorf("create output directory: %w", err)
	}

	created := m.now()
	base := created.Format(RunDirLayout)
	for i := 0; i < maxCollisions; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s_%d", base, i)
		}
		path := filepath.Join(m.root, name)
		err := os.Mkdir(path, 0o755)
		if err == nil {
			return RunDir{Name: name, Dir: path, CreatedAt: created}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return RunDir{}, fmt.Errorf("create run directory %q: %w", name, err)
		}
	}
	return RunDir{}, fmt.Errorf("create run directory: %d directories named %s already exist", maxCollisions, base)
}

// Open returns metadata for an existing run directory.
func (m *fsManager) Open(ctx context.Context, name string) (RunDir, error) {
	if err := ctx.Err(); err != nil {
		return RunDir{}, err
	}
	if err := validateName(name); err != nil {
		return RunDir{}, err
	}

	path := filepath.Join(m.root, name)
	info, err := os.Stat(path)
	if err != nil {
		return RunDir{}, fmt.Errorf("open run directory %q: %w", name, err)
	}
	if !info.IsDir() {
		return RunDir{}, fmt.Errorf("run directory %q is not a directory", name)
	}

	created, ok := parseRunName(name)
	if !ok {
		created = info.ModTime()
	}
	return RunDir{Name: name, Dir: path, CreatedAt: created}, nil
}

// List returns the run directories under the root. Entries that do not look
// like run directories are ignored.
func (m *fsManager) List(ctx context.Context) ([]RunDir, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(m.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read output directory: %w", err)
	}

	var runs []RunDir
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		created, ok := parseRunName(entry.Name())
		if !ok {
			continue
		}
		runs = append(runs, RunDir{
			Name:      entry.Name(),
			Dir:       filepath.Join(m.root, entry.Name()),
			CreatedAt: created,
		})
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Name < runs[j].Name })
	return runs, nil
}

// Cleanup removes run directories whose modification time is older than
// olderThan. Directories not named like runs are never touched.
func (m *fsManager) Cleanup(ctx context.Context, olderThan time.Duration) (CleanupReport, error) {
	if err := ctx.Err(); err != nil {
		return CleanupReport{}, err
	}
	if olderThan <= 0 {
		return CleanupReport{}, fmt.Errorf("olderThan must be positive")
	}

	runs, err := m.List(ctx)
	if err != nil {
		return CleanupReport{}, err
	}

	cutoff := m.now().Add(-olderThan)
	report := CleanupReport{}

	for _, run := range runs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		info, err := os.Stat(run.Dir)
		if err != nil {
			return report, fmt.Errorf("stat run directory %q: %w", run.Name, err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(run.Dir); err != nil {
			return report, fmt.Errorf("remove run directory %q: %w", run.Name, err)
		}
		report.DeletedDirs++
	}

	return report, nil
}

// parseRunName accepts "2006_01_02_15_04_05" with an optional "_N" suffix.
func parseRunName(name string) (time.Time, bool) {
	if len(name) < len(RunDirLayout) {
		return time.Time{}, false
	}
	stamp, suffix := name[:len(RunDirLayout)], name[len(RunDirLayout):]
	if suffix != "" {
		if suffix[0] != '_' || len(suffix) == 1 || strings.Trim(suffix[1:], "0123456789") != "" {
			return time.Time{}, false
		}
	}
	t, err := time.ParseInLocation(RunDirLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func validateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("run name is empty")
	}
	if trimmed == "." || trimmed == ".." {
		return fmt.Errorf("run name %q is invalid", name)
	}
	if strings.Contains(trimmed, "/") || strings.Contains(trimmed, `\`) {
		return fmt.Errorf("run name %q must not contain path separators", name)
	}
	if filepath.Clean(trimmed) != trimmed {
		return fmt.Errorf("run name %q is invalid", name)
	}
	return nil
}
