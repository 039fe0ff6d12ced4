package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNetworkFilesystem is wrapped by every *NetworkFSError.
var ErrNetworkFilesystem = errors.New("network filesystem")

// Volume is a configured path whose locking breaks on network mounts.
type Volume struct {
	// Field is the config key holding the path.
	Field string
	// Reason says what fails on a network mount.
	Reason string
}

var (
	LedgerVolume = Volume{
		Field:  "ledger.path",
		Reason: "SQLite requires a local filesystem for reliable locking",
	}
	OutputVolume = Volume{
		Field:  "output.dir",
		Reason: "the output root lock does not exclude other hosts sharing the mount",
	}
)

var networkFilesystems = map[string]struct{}{
	"afpfs":  {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
}

// NetworkFSError reports a volume placed on a network filesystem.
type NetworkFSError struct {
	Volume Volume
	Path   string
	FSType string
}

func (e *NetworkFSError) Error() string {
	return fmt.Sprintf("%s %q is on network filesystem %q; %s", e.Volume.Field, e.Path, e.FSType, e.Volume.Reason)
}

func (e *NetworkFSError) Unwrap() error { return ErrNetworkFilesystem }

// CheckVolume inspects the nearest existing ancestor of path, so a path that
// is created later is judged by the mount it will land on.
func CheckVolume(v Volume, path string) error {
	return checkVolume(v, path, detectFilesystemType)
}

func checkVolume(v Volume, path string, detect func(string) (string, error)) error {
	if path == "" {
		return fmt.Errorf("%s is empty", v.Field)
	}

	inspectPath, err := nearestExistingPath(path)
	if err != nil {
		return fmt.Errorf("resolve %s %q: %w", v.Field, path, err)
	}

	fsType, err := detect(inspectPath)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", inspectPath, err)
	}

	if isNetworkFilesystem(fsType) {
		return &NetworkFSError{Volume: v, Path: path, FSType: fsType}
	}
	return nil
}

func nearestExistingPath(path string) (string, error) {
	candidate, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	for {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", path)
		}
		candidate = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	_, found := networkFilesystems[strings.TrimSpace(strings.ToLower(fsType))]
	return found
}
