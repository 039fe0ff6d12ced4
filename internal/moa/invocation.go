package moa

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mattjoyce/moagen/internal/dataset"
)

const (
	// TaskName is the MOA task used to write a stream to disk.
	TaskName = "WriteStreamToARFFFile"
	// MainClass is the MOA command-line entry point.
	MainClass = "moa.DoTask"
	// FileExtension is appended to the canonical definition to name output files.
	FileExtension = ".arff"

	moaJar   = "moa.jar"
	agentJar = "sizeofag-1.1.0.jar"
)

// Tool locates the Java executable and the MOA installation.
type Tool struct {
	JavaPath string
	// MOAPath is the MOA root directory, the one containing lib/.
	MOAPath string
}

// ClassPath returns the moa.jar path.
func (t Tool) ClassPath() string {
	return filepath.Join(t.MOAPath, "lib", moaJar)
}

// AgentPath returns the sizeofag java agent path.
func (t Tool) AgentPath() string {
	return filepath.Join(t.MOAPath, "lib", agentJar)
}

func (t Tool) baseArgs() []string {
	return []string{"-cp", t.ClassPath(), "-javaagent:" + t.AgentPath(), MainClass}
}

// Invocation is a fully rendered external tool call.
type Invocation struct {
	Executable string
	Args       []string
	// Task is the MOA task string passed as the last argument. Empty for probes.
	Task string
	// OutputPath is where the task writes its ARFF file. Empty for probes.
	OutputPath string
}

// String renders the invocation the way it is typed at a prompt: arguments
// separated by spaces and the task wrapped in double quotes, byte for byte.
// Backslashes in Windows paths are kept as they are. The runner never parses
// this form; it passes Args to the process directly.
func (inv Invocation) String() string {
	parts := make([]string, 0, len(inv.Args)+1)
	parts = append(parts, inv.Executable)
	for _, a := range inv.Args {
		if a == inv.Task && inv.Task != "" {
			parts = append(parts, `"`+a+`"`)
			continue
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// ErrUnsafeOutputDir marks an output directory that cannot travel inside the
// MOA task string.
var ErrUnsafeOutputDir = errors.New("output directory unusable in a MOA task")

// CheckOutputDir rejects directories MOA's option parser would split apart.
// The task carries -f unquoted, so whitespace ends the path and parentheses
// or quotes change the nesting.
func CheckOutputDir(dir string) error {
	i := strings.IndexFunc(dir, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(`()"`, r)
	})
	if i >= 0 {
		r, _ := utf8.DecodeRuneInString(dir[i:])
		return fmt.Errorf("%w: %q contains %q", ErrUnsafeOutputDir, dir, r)
	}
	return nil
}

// OutputFileName returns the file name a spec is generated into.
func OutputFileName(s dataset.Spec) string {
	return s.String() + FileExtension
}

// TaskString renders the complete MOA task for s writing to outFile.
func TaskString(s dataset.Spec, outFile string) string {
	return fmt.Sprintf("%s -s (%s) -f %s -m %d", TaskName, Render(Build(s)), outFile, s.Samples())
}

// NewInvocation builds the command that generates s into outDir.
func NewInvocation(tool Tool, s dataset.Spec, outDir string) Invocation {
	out := filepath.Join(outDir, OutputFileName(s))
	task := TaskString(s, out)
	return Invocation{
		Executable: tool.JavaPath,
		Args:       append(tool.baseArgs(), task),
		Task:       task,
		OutputPath: out,
	}
}

// ProbeInvocation builds a bare moa.DoTask call used to check that Java and
// MOA are reachable.
func ProbeInvocation(tool Tool) Invocation {
	return Invocation{
		Executable: tool.JavaPath,
		Args:       tool.baseArgs(),
	}
}
