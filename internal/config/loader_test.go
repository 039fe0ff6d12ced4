package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "moagen.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal valid config",
			yaml: `
tool:
  moa_path: /opt/moa
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Tool.MOAPath != "/opt/moa" {
					t.Error("tool.moa_path not parsed")
				}
				// Check defaults applied
				if cfg.Tool.JavaPath != "java" {
					t.Errorf("java_path default = %q", cfg.Tool.JavaPath)
				}
				if cfg.Tool.Timeout != 30*time.Minute {
					t.Errorf("timeout default = %v", cfg.Tool.Timeout)
				}
				if cfg.Output.Dir != "results" || cfg.Output.Workers != 1 {
					t.Errorf("output defaults = %+v", cfg.Output)
				}
				if !cfg.EarlyExit() {
					t.Error("early exit should default to on")
				}
				if cfg.LogLevel != "info" {
					t.Errorf("log_level default = %q", cfg.LogLevel)
				}
			},
		},
		{
			name: "full config",
			yaml: `
tool:
  java_path: /usr/lib/jvm/bin/java
  moa_path: /opt/moa-2023
  success_marker: "MOA"
  timeout: 90s
output:
  dir: /data/out
  workers: 4
drift:
  early_exit: false
  seed: 42
ledger:
  path: /var/lib/moagen.db
api:
  listen: 0.0.0.0:9000
log_level: debug
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Tool.Timeout != 90*time.Second {
					t.Errorf("timeout = %v", cfg.Tool.Timeout)
				}
				if cfg.Output.Workers != 4 {
					t.Errorf("workers = %d", cfg.Output.Workers)
				}
				if cfg.EarlyExit() {
					t.Error("early exit should be off")
				}
				if cfg.Drift.Seed != 42 {
					t.Errorf("seed = %d", cfg.Drift.Seed)
				}
				tool := cfg.MOATool()
				if tool.JavaPath != "/usr/lib/jvm/bin/java" || tool.MOAPath != "/opt/moa-2023" {
					t.Errorf("MOATool() = %+v", tool)
				}
			},
		},
		{
			name: "env interpolation",
			yaml: `
tool:
  moa_path: ${MOAGEN_TEST_MOA}
api:
  auth:
    api_key: ${MOAGEN_TEST_KEY}
`,
			env: map[string]string{"MOAGEN_TEST_MOA": "/srv/moa", "MOAGEN_TEST_KEY": "s3cret"},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Tool.MOAPath != "/srv/moa" {
					t.Errorf("moa_path = %q", cfg.Tool.MOAPath)
				}
				if cfg.API.Auth.APIKey != "s3cret" {
					t.Errorf("api_key = %q", cfg.API.Auth.APIKey)
				}
			},
		},
		{
			name: "unset env var",
			yaml: `
tool:
  moa_path: ${MOAGEN_TEST_UNSET_VAR}
`,
			wantErr: "MOAGEN_TEST_UNSET_VAR",
		},
		{
			name:    "missing moa path",
			yaml:    "output:\n  dir: x\n",
			wantErr: "tool.moa_path is required",
		},
		{
			name:    "template placeholder",
			yaml:    Template,
			wantErr: "placeholder",
		},
		{
			name:    "bad log level",
			yaml:    "tool:\n  moa_path: /opt/moa\nlog_level: loud\n",
			wantErr: "log_level",
		},
		{
			name:    "bad workers",
			yaml:    "tool:\n  moa_path: /opt/moa\noutput:\n  workers: -2\n",
			wantErr: "output.workers",
		},
		{
			name:    "output dir with a space",
			yaml:    "tool:\n  moa_path: /opt/moa\noutput:\n  dir: my results\n",
			wantErr: "output.dir",
		},
		{
			name:    "unknown field",
			yaml:    "tool:\n  moa_path: /opt/moa\n  moa_home: /opt\n",
			wantErr: "moa_home",
		},
		{
			name: "token without scopes",
			yaml: `
tool:
  moa_path: /opt/moa
api:
  auth:
    tokens:
      - token: abc
`,
			wantErr: "scopes",
		},
		{
			name: "unknown scope",
			yaml: `
tool:
  moa_path: /opt/moa
api:
  auth:
    tokens:
      - token: abc
        scopes: [jobs:rw]
`,
			wantErr: "unknown scope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeConfig(t, tt.yaml)

			cfg, err := Load(path)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Load() expected error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want it to contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.SourcePath != path {
				t.Errorf("SourcePath = %q, want %q", cfg.SourcePath, path)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	path := writeConfig(t, "tool:\n  moa_path: /opt/moa\n")
	cfg, err := Load(filepath.Dir(path))
	if err != nil {
		t.Fatalf("Load(dir) error = %v", err)
	}
	if cfg.SourcePath != path {
		t.Errorf("SourcePath = %q, want %q", cfg.SourcePath, path)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("Load(missing) error = %v", err)
	}
}

func TestLoadOrInitWritesTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "moagen.yaml")

	_, err := LoadOrInit(path)
	if !errors.Is(err, ErrTemplateCreated) {
		t.Fatalf("LoadOrInit() error = %v, want ErrTemplateCreated", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("template not written: %v", err)
	}
	if string(data) != Template {
		t.Fatalf("template content mismatch")
	}

	// The unedited template must not be usable.
	if _, err := LoadOrInit(path); err == nil || errors.Is(err, ErrTemplateCreated) {
		t.Fatalf("LoadOrInit(template) error = %v, want validation error", err)
	}

	edited := strings.Replace(string(data), placeholderMOAPath, "/opt/moa", 1)
	if err := os.WriteFile(path, []byte(edited), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	cfg, err := LoadOrInit(path)
	if err != nil {
		t.Fatalf("LoadOrInit(edited) error = %v", err)
	}
	if cfg.Tool.MOAPath != "/opt/moa" {
		t.Errorf("moa_path = %q", cfg.Tool.MOAPath)
	}
}

func TestWriteTemplateKeepsExisting(t *testing.T) {
	path := writeConfig(t, "tool:\n  moa_path: /opt/moa\n")
	if err := WriteTemplate(path); err == nil {
		t.Fatalf("WriteTemplate() over existing file expected error")
	}
}

func TestDiscover(t *testing.T) {
	t.Setenv("MOAGEN_CONFIG", "/etc/custom.yaml")
	if got := Discover(); got != "/etc/custom.yaml" {
		t.Errorf("Discover() = %q", got)
	}

	t.Setenv("MOAGEN_CONFIG", "")
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	if got := Discover(); got != DefaultFileName {
		t.Errorf("Discover() fallback = %q", got)
	}
}

func TestLoadReadsEnvFileNextToConfig(t *testing.T) {
	const key = "MOAGEN_TEST_DOTENV_KEY"
	t.Cleanup(func() { os.Unsetenv(key) })

	path := writeConfig(t, `
tool:
  moa_path: /opt/moa
api:
  auth:
    api_key: ${MOAGEN_TEST_DOTENV_KEY}
`)
	envPath := filepath.Join(filepath.Dir(path), EnvFileName)
	if err := os.WriteFile(envPath, []byte(key+"=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.Auth.APIKey != "from-dotenv" {
		t.Fatalf("api_key = %q, want value from .env", cfg.API.Auth.APIKey)
	}
}

func TestLoadEnvironmentOverridesEnvFile(t *testing.T) {
	const key = "MOAGEN_TEST_DOTENV_OVERRIDE"
	t.Setenv(key, "from-environment")

	path := writeConfig(t, `
tool:
  moa_path: /opt/moa
api:
  auth:
    api_key: ${MOAGEN_TEST_DOTENV_OVERRIDE}
`)
	envPath := filepath.Join(filepath.Dir(path), EnvFileName)
	if err := os.WriteFile(envPath, []byte(key+"=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.Auth.APIKey != "from-environment" {
		t.Fatalf("api_key = %q, want the environment value", cfg.API.Auth.APIKey)
	}
}
