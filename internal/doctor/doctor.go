// Package doctor checks a moagen configuration against the machine it runs
// on: Java, the MOA installation, the output directory and the ledger path.
package doctor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"

	"github.com/mattjoyce/moagen/internal/auth"
	"github.com/mattjoyce/moagen/internal/config"
	"github.com/mattjoyce/moagen/internal/moa"
	"github.com/mattjoyce/moagen/internal/runner"
	"github.com/mattjoyce/moagen/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Prober launches MOA without a task. *runner.Runner satisfies it.
type Prober interface {
	Probe(ctx context.Context, tool moa.Tool) (*runner.Result, error)
}

// Doctor validates configuration against the local environment.
type Doctor struct {
	cfg    *config.Config
	prober Prober

	lookPath func(string) (string, error)
	fsCheck  func(storage.Volume, string) error
}

// New creates a Doctor. A nil prober skips the live tool check.
func New(cfg *config.Config, prober Prober) *Doctor {
	return &Doctor{
		cfg:      cfg,
		prober:   prober,
		lookPath: exec.LookPath,
		fsCheck:  storage.CheckVolume,
	}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate(ctx context.Context) *Result {
	r := &Result{Valid: true}

	javaOK := d.validateJava(r)
	jarsOK := d.validateMOA(r)
	d.validateOutput(r)
	d.validateLedger(r)
	d.validateAPIConfig(r)
	d.warnMissingEnvVars(r)
	if javaOK && jarsOK {
		d.probeTool(ctx, r)
	}

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateJava checks that the Java executable resolves.
func (d *Doctor) validateJava(r *Result) bool {
	if d.cfg.Tool.JavaPath == "" {
		d.addError(r, "tool", "tool.java_path", "java_path is required")
		return false
	}
	if _, err := d.lookPath(d.cfg.Tool.JavaPath); err != nil {
		d.addError(r, "tool", "tool.java_path", fmt.Sprintf("java executable %q not found: %v", d.cfg.Tool.JavaPath, err))
		return false
	}
	return true
}

// validateMOA checks the MOA root and both jars under lib/.
func (d *Doctor) validateMOA(r *Result) bool {
	root := d.cfg.Tool.MOAPath
	info, err := os.Stat(root)
	if err != nil {
		d.addError(r, "tool", "tool.moa_path", fmt.Sprintf("MOA directory %q: %v", root, err))
		return false
	}
	if !info.IsDir() {
		d.addError(r, "tool", "tool.moa_path", fmt.Sprintf("%q is not a directory", root))
		return false
	}

	tool := d.cfg.MOATool()
	ok := true
	for _, jar := range []string{tool.ClassPath(), tool.AgentPath()} {
		if _, err := os.Stat(jar); err != nil {
			d.addError(r, "tool", "tool.moa_path", fmt.Sprintf("missing %s", jar))
			ok = false
		}
	}
	return ok
}

// validateOutput checks that datasets can be written under output.dir.
func (d *Doctor) validateOutput(r *Result) {
	dir := d.cfg.Output.Dir
	if err := d.fsCheck(storage.OutputVolume, dir); err != nil {
		d.addWarning(r, "output", "output.dir", err.Error())
	}
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		d.addWarning(r, "output", "output.dir", fmt.Sprintf("%q does not exist yet and will be created", dir))
		return
	}
	if err != nil {
		d.addError(r, "output", "output.dir", err.Error())
		return
	}
	if !info.IsDir() {
		d.addError(r, "output", "output.dir", fmt.Sprintf("%q is not a directory", dir))
		return
	}
	f, err := os.CreateTemp(dir, ".moagen-doctor-*")
	if err != nil {
		d.addError(r, "output", "output.dir", fmt.Sprintf("%q is not writable: %v", dir, err))
		return
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
}

// validateLedger checks the ledger database location.
func (d *Doctor) validateLedger(r *Result) {
	if d.cfg.Ledger.Path == "" {
		d.addWarning(r, "ledger", "ledger.path", "no ledger configured; run history is not recorded")
		return
	}
	if err := d.fsCheck(storage.LedgerVolume, d.cfg.Ledger.Path); err != nil {
		d.addError(r, "ledger", "ledger.path", err.Error())
	}
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	listen := d.cfg.API.Listen
	if listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required")
		return
	}
	host, _, err := net.SplitHostPort(listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", listen, err))
		return
	}
	authOn := auth.Enabled(d.cfg.API.Auth.APIKey, d.cfg.AuthTokens())
	if !authOn && !isLoopback(host) {
		d.addError(r, "api", "api.auth", fmt.Sprintf("API listens on %q without authentication", listen))
	}
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "api", "api.auth.api_key",
			"api_key grants full access; prefer tokens with scopes")
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// warnMissingEnvVars flags credentials that interpolated to nothing.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	for i, token := range d.cfg.API.Auth.Tokens {
		if strings.TrimSpace(token.Token) == "" {
			d.addWarning(r, "env_vars", fmt.Sprintf("api.auth.tokens[%d].token", i),
				"token value is empty (possibly unresolved environment variable)")
		}
	}
}

// probeTool launches MOA once and expects its banner.
func (d *Doctor) probeTool(ctx context.Context, r *Result) {
	if d.prober == nil {
		return
	}
	if _, err := d.prober.Probe(ctx, d.cfg.MOATool()); err != nil {
		d.addError(r, "tool", "", fmt.Sprintf("MOA probe failed: %v", err))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
