package workspace

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// FileDigest computes the BLAKE3 hash of a file, hex encoded.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyDigest checks a file against an expected BLAKE3 hash.
func VerifyDigest(path, expected string) error {
	actual, err := FileDigest(path)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}

	if actual != expected {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(path), expected, actual)
	}

	return nil
}
