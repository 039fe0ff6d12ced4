package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/moagen/internal/auth"
	"github.com/mattjoyce/moagen/internal/moa"
)

// DefaultFileName is looked up in the working directory.
const DefaultFileName = "moagen.yaml"

// EnvFileName is read from the config directory before interpolation.
const EnvFileName = ".env"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, parses and validates configuration from a file.
func Load(configPath string) (*Config, error) {
	// Resolve to absolute path for consistent reporting
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run: moagen config init --config %s", absPath, configPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, DefaultFileName)
	}

	if err := loadEnvFile(filepath.Join(filepath.Dir(absPath), EnvFileName)); err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath

	cfg = applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Discover finds the config file by checking standard locations.
// Priority order: $MOAGEN_CONFIG, ./moagen.yaml, ~/.config/moagen/moagen.yaml.
// When nothing exists the working directory default is returned so a
// template can be written there.
func Discover() string {
	if path := os.Getenv("MOAGEN_CONFIG"); path != "" {
		return path
	}

	if _, err := os.Stat(DefaultFileName); err == nil {
		return DefaultFileName
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "moagen", DefaultFileName)
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig
		}
	}

	return DefaultFileName
}

// loadEnvFile exports the variables of an optional dotenv file. Variables
// already set in the environment win.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// loadConfigFile loads and parses a single config file.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// Apply environment variable interpolation
	interpolated := interpolateEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolated)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &cfg, nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Tool.JavaPath == "" {
		cfg.Tool.JavaPath = defaults.Tool.JavaPath
	}
	if cfg.Tool.SuccessMarker == "" {
		cfg.Tool.SuccessMarker = defaults.Tool.SuccessMarker
	}
	if cfg.Tool.Timeout == 0 {
		cfg.Tool.Timeout = defaults.Tool.Timeout
	}

	if cfg.Output.Dir == "" {
		cfg.Output.Dir = defaults.Output.Dir
	}
	if cfg.Output.Workers == 0 {
		cfg.Output.Workers = defaults.Output.Workers
	}

	if cfg.Drift.EarlyExit == nil {
		cfg.Drift.EarlyExit = defaults.Drift.EarlyExit
	}

	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = defaults.Ledger.Path
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}

		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	if cfg.Tool.MOAPath == "" {
		return fmt.Errorf("tool.moa_path is required")
	}
	if isPlaceholder(cfg.Tool.MOAPath) {
		return fmt.Errorf("tool.moa_path still holds the template placeholder %q", cfg.Tool.MOAPath)
	}
	for field, value := range map[string]string{
		"tool.java_path": cfg.Tool.JavaPath,
		"tool.moa_path":  cfg.Tool.MOAPath,
		"output.dir":     cfg.Output.Dir,
		"ledger.path":    cfg.Ledger.Path,
	} {
		if err := checkUnresolved(field, value); err != nil {
			return err
		}
	}
	if err := moa.CheckOutputDir(cfg.Output.Dir); err != nil {
		return fmt.Errorf("output.dir: %w", err)
	}
	if cfg.Tool.Timeout < 0 {
		return fmt.Errorf("tool.timeout must be positive")
	}
	if cfg.Output.Workers < 1 {
		return fmt.Errorf("output.workers must be at least 1 (got %d)", cfg.Output.Workers)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error (got %q)", cfg.LogLevel)
	}

	if err := checkUnresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
		return err
	}
	for i, tok := range cfg.API.Auth.Tokens {
		if tok.Token == "" {
			return fmt.Errorf("api.auth.tokens[%d].token is required", i)
		}
		if err := checkUnresolved(fmt.Sprintf("api.auth.tokens[%d].token", i), tok.Token); err != nil {
			return err
		}
		if len(tok.Scopes) == 0 {
			return fmt.Errorf("api.auth.tokens[%d].scopes must be non-empty", i)
		}
		if err := auth.ValidateScopes(tok.Scopes); err != nil {
			return fmt.Errorf("api.auth.tokens[%d].scopes: %w", i, err)
		}
	}

	return nil
}

func checkUnresolved(field, value string) error {
	matches := envVarPattern.FindStringSubmatch(value)
	if len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}
