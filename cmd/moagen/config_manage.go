package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/moagen/internal/config"
	"github.com/mattjoyce/moagen/internal/doctor"
	"github.com/mattjoyce/moagen/internal/runner"
)

const redacted = "********"

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}

	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "init":
		if hasHelpFlag(actionArgs) {
			printConfigInitHelp()
			return 0
		}
		return runConfigInit(actionArgs)
	case "check":
		if hasHelpFlag(actionArgs) {
			printDoctorHelp()
			return 0
		}
		return runDoctor(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runConfigInit(args []string) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultFileName, "Path of the configuration file to create")
	force := fs.Bool("force", false, "Overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if _, err := os.Stat(*configPath); err == nil {
		if !*force {
			fmt.Fprintf(os.Stderr, "Config already exists: %s (use --force to overwrite)\n", *configPath)
			return 1
		}
		if err := os.Remove(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to remove existing config: %v\n", err)
			return 1
		}
	}

	if err := config.WriteTemplate(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		return 1
	}
	abs, _ := filepath.Abs(*configPath)
	fmt.Printf("Wrote %s\n", abs)
	fmt.Println("Set tool.moa_path to your MOA installation, then run: moagen doctor")
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	showSecrets := fs.Bool("show-secrets", false, "Print API credentials unmasked")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	if !*showSecrets {
		if cfg.API.Auth.APIKey != "" {
			cfg.API.Auth.APIKey = redacted
		}
		for i := range cfg.API.Auth.Tokens {
			cfg.API.Auth.Tokens[i].Token = redacted
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	fmt.Printf("# %s\n%s", cfg.SourcePath, data)
	return 0
}

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	result, code, err := validateConfigAtPath(*configPath)
	if err != nil {
		if errors.Is(err, config.ErrTemplateCreated) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		}
		return 1
	}

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(out)
		return code
	}

	fmt.Print(doctor.FormatHuman(result))
	return code
}

// validateConfigAtPath returns exit code 0 when everything passed, 2 for
// warnings only and 1 for errors.
func validateConfigAtPath(configPath string) (*doctor.Result, int, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, 1, err
	}
	prober := runner.New(cfg.Tool.Timeout, cfg.Tool.SuccessMarker)
	result := doctor.New(cfg, prober).Validate(context.Background())
	if !result.Valid {
		return result, 1, nil
	}
	if len(result.Warnings) > 0 {
		return result, 2, nil
	}
	return result, 0, nil
}
