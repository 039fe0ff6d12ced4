package workspace

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLogFormat(t *testing.T) {
	l := &RunLog{
		Elapsed:  1500*time.Millisecond + 300*time.Microsecond,
		Datasets: []string{"SEA_f_1_s_1000", "STAGGER_f_2_2_p_100_w_20_s_400"},
	}
	var buf bytes.Buffer
	_, err := l.WriteTo(&buf)
	require.NoError(t, err)

	assert.Equal(t, "generation time: 1.5s\ndatasets:\nSEA_f_1_s_1000\nSTAGGER_f_2_2_p_100_w_20_s_400\n", buf.String())
}

func TestRunLogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := &RunLog{
		Elapsed:  2 * time.Minute,
		Datasets: []string{"SEA_f_1_s_1000", "Agrawal_f_1_s_10"},
		Failures: []Failure{{Dataset: "Agrawal_f_1_s_10", Error: "external tool failed:\nmissing marker"}},
		Checksums: []Checksum{
			{File: "SEA_f_1_s_1000.arff", Digest: "abc123"},
		},
	}
	require.NoError(t, WriteRunLog(dir, in))

	out, err := ReadRunLog(dir)
	require.NoError(t, err)
	assert.Equal(t, in.Elapsed, out.Elapsed)
	assert.Equal(t, in.Datasets, out.Datasets)
	assert.Equal(t, in.Checksums, out.Checksums)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, "external tool failed: missing marker", out.Failures[0].Error)
}

func TestParseRunLogErrors(t *testing.T) {
	for name, content := range map[string]string{
		"empty":        "",
		"no time":      "datasets:\nSEA_f_1_s_10\n",
		"bad duration": "generation time: soon\n",
		"orphan line":  "generation time: 1s\nSEA_f_1_s_10\n",
		"bad checksum": "generation time: 1s\nchecksums:\nabc\n",
	} {
		_, err := ParseRunLog(strings.NewReader(content))
		assert.Error(t, err, name)
	}
}

func TestFileDigestAndVerify(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "SEA_f_1_s_10.arff")
	require.NoError(t, os.WriteFile(path, []byte("@relation x\n@data\n"), 0o644))

	digest, err := FileDigest(path)
	require.NoError(t, err)
	assert.Len(t, digest, 64)
	require.NoError(t, VerifyDigest(path, digest))

	l := &RunLog{Checksums: []Checksum{{File: "SEA_f_1_s_10.arff", Digest: digest}}}
	assert.Empty(t, l.Verify(dir))

	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o644))
	errs := l.Verify(dir)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "hash mismatch")

	_, err = FileDigest(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
