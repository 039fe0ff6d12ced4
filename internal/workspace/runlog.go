package workspace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RunLogName is the file written into every run directory.
const RunLogName = "log.txt"

const (
	timeLinePrefix   = "generation time: "
	datasetsHeader   = "datasets:"
	failuresHeader   = "failures:"
	checksumsHeader  = "checksums:"
	failureSeparator = ": "
	checksumSep      = "  "
)

// Failure records a dataset that could not be produced.
type Failure struct {
	Dataset string
	Error   string
}

// Checksum pairs a generated file name with its BLAKE3 digest.
type Checksum struct {
	File   string
	Digest string
}

// RunLog is the human readable summary of one generation run.
//
//	generation time: 1m3.512s
//	datasets:
//	SEA_f_1_s_1000
//	failures:
//	Agrawal_f_1_s_10: external tool failed (missing_marker)
//	checksums:
//	9f2c...  SEA_f_1_s_1000.arff
//
// The failures and checksums sections are omitted when empty.
type RunLog struct {
	Elapsed   time.Duration
	Datasets  []string
	Failures  []Failure
	Checksums []Checksum
}

// WriteTo serializes the log.
func (l *RunLog) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s\n", timeLinePrefix, l.Elapsed.Round(time.Millisecond))
	b.WriteString(datasetsHeader + "\n")
	for _, d := range l.Datasets {
		b.WriteString(d + "\n")
	}
	if len(l.Failures) > 0 {
		b.WriteString(failuresHeader + "\n")
		for _, f := range l.Failures {
			// Keep each failure on one line.
			msg := strings.Join(strings.Fields(f.Error), " ")
			b.WriteString(f.Dataset + failureSeparator + msg + "\n")
		}
	}
	if len(l.Checksums) > 0 {
		b.WriteString(checksumsHeader + "\n")
		for _, c := range l.Checksums {
			b.WriteString(c.Digest + checksumSep + c.File + "\n")
		}
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// WriteRunLog writes log.txt into dir.
func WriteRunLog(dir string, l *RunLog) error {
	path := filepath.Join(dir, RunLogName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create run log: %w", err)
	}
	if _, err := l.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write run log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close run log: %w", err)
	}
	return nil
}

// ReadRunLog parses log.txt from dir.
func ReadRunLog(dir string) (*RunLog, error) {
	f, err := os.Open(filepath.Join(dir, RunLogName))
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()
	return ParseRunLog(f)
}

// ParseRunLog parses the format produced by RunLog.WriteTo.
func ParseRunLog(r io.Reader) (*RunLog, error) {
	l := &RunLog{}
	section := ""
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), " \r")
		switch {
		case lineNo == 1:
			if !strings.HasPrefix(line, timeLinePrefix) {
				return nil, fmt.Errorf("run log line 1: missing %q", strings.TrimSpace(timeLinePrefix))
			}
			d, err := time.ParseDuration(strings.TrimPrefix(line, timeLinePrefix))
			if err != nil {
				return nil, fmt.Errorf("run log line 1: %w", err)
			}
			l.Elapsed = d
		case line == datasetsHeader, line == failuresHeader, line == checksumsHeader:
			section = line
		case line == "":
		case section == datasetsHeader:
			l.Datasets = append(l.Datasets, line)
		case section == failuresHeader:
			name, msg, ok := strings.Cut(line, failureSeparator)
			if !ok {
				return nil, fmt.Errorf("run log line %d: malformed failure", lineNo)
			}
			l.Failures = append(l.Failures, Failure{Dataset: name, Error: msg})
		case section == checksumsHeader:
			digest, file, ok := strings.Cut(line, checksumSep)
			if !ok {
				return nil, fmt.Errorf("run log line %d: malformed checksum", lineNo)
			}
			l.Checksums = append(l.Checksums, Checksum{File: file, Digest: digest})
		default:
			return nil, fmt.Errorf("run log line %d: unexpected content", lineNo)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read run log: %w", err)
	}
	if lineNo == 0 {
		return nil, fmt.Errorf("run log is empty")
	}
	return l, nil
}

// Verify recomputes every checksum in l against the files in dir and returns
// the mismatches.
func (l *RunLog) Verify(dir string) []error {
	var errs []error
	for _, c := range l.Checksums {
		if err := VerifyDigest(filepath.Join(dir, c.File), c.Digest); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
