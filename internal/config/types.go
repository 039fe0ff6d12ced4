package config

import (
	"time"

	"github.com/mattjoyce/moagen/internal/auth"
	"github.com/mattjoyce/moagen/internal/moa"
)

// Config represents the complete moagen configuration.
type Config struct {
	Tool     ToolConfig   `yaml:"tool"`
	Output   OutputConfig `yaml:"output"`
	Drift    DriftConfig  `yaml:"drift"`
	Ledger   LedgerConfig `yaml:"ledger"`
	API      APIConfig    `yaml:"api,omitempty"`
	LogLevel string       `yaml:"log_level"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
}

// ToolConfig locates Java and MOA and bounds a single invocation.
type ToolConfig struct {
	JavaPath string `yaml:"java_path"`
	// MOAPath is the MOA root directory, the one containing lib/moa.jar.
	MOAPath       string        `yaml:"moa_path"`
	SuccessMarker string        `yaml:"success_marker"`
	Timeout       time.Duration `yaml:"timeout"`
}

// OutputConfig defines where datasets are written.
type OutputConfig struct {
	Dir     string `yaml:"dir"`
	Workers int    `yaml:"workers"`
}

// DriftConfig tunes the switching drift simulation.
type DriftConfig struct {
	EarlyExit *bool `yaml:"early_exit,omitempty"`
	// Seed fixes the random source; 0 picks a fresh seed per dataset.
	Seed uint64 `yaml:"seed"`
}

// LedgerConfig defines run history storage.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Listen string        `yaml:"listen"`
	Auth   APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings. With no key and no
// tokens configured the API is open, which is only accepted on loopback.
type APIAuthConfig struct {
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	earlyExit := true
	return &Config{
		Tool: ToolConfig{
			JavaPath:      "java",
			SuccessMarker: "{M}assive {O}nline {A}nalysis",
			Timeout:       30 * time.Minute,
		},
		Output: OutputConfig{
			Dir:     "results",
			Workers: 1,
		},
		Drift: DriftConfig{
			EarlyExit: &earlyExit,
		},
		Ledger: LedgerConfig{
			Path: "./data/moagen.db",
		},
		API: APIConfig{
			Listen: "127.0.0.1:8484",
		},
		LogLevel: "info",
	}
}

// MOATool returns the tool locations for command synthesis.
func (c *Config) MOATool() moa.Tool {
	return moa.Tool{JavaPath: c.Tool.JavaPath, MOAPath: c.Tool.MOAPath}
}

// EarlyExit reports whether the drift simulation may stop scanning early.
func (c *Config) EarlyExit() bool {
	return c.Drift.EarlyExit == nil || *c.Drift.EarlyExit
}

// AuthTokens converts the configured API tokens for the auth package.
func (c *Config) AuthTokens() []auth.TokenConfig {
	out := make([]auth.TokenConfig, 0, len(c.API.Auth.Tokens))
	for _, t := range c.API.Auth.Tokens {
		out = append(out, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	return out
}
