package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattjoyce/moagen/internal/api"
	"github.com/mattjoyce/moagen/internal/config"
	"github.com/mattjoyce/moagen/internal/events"
	"github.com/mattjoyce/moagen/internal/generate"
	"github.com/mattjoyce/moagen/internal/ledger"
	"github.com/mattjoyce/moagen/internal/lock"
	"github.com/mattjoyce/moagen/internal/log"
	"github.com/mattjoyce/moagen/internal/runner"
	"github.com/mattjoyce/moagen/internal/storage"
	"github.com/mattjoyce/moagen/internal/tui/watch"
	"github.com/mattjoyce/moagen/internal/workspace"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// stdin feeds confirmation prompts and the interactive builder.
var stdin io.Reader = os.Stdin

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	// --- DATASETS ---
	case "generate":
		if hasHelpFlag(args) {
			printGenerateHelp(os.Stdout)
			return 0
		}
		return runGenerate(args)
	case "validate":
		if hasHelpFlag(args) {
			printValidateHelp()
			return 0
		}
		return runValidate(args)
	case "list":
		return runList(args)
	case "command":
		if hasHelpFlag(args) {
			printCommandHelp()
			return 0
		}
		return runCommand(args)
	case "simulate":
		if hasHelpFlag(args) {
			printSimulateHelp()
			return 0
		}
		return runSimulate(args)

	// --- HISTORY ---
	case "runs":
		if hasHelpFlag(args) {
			printRunsHelp()
			return 0
		}
		return runRuns(args)
	case "verify":
		if hasHelpFlag(args) {
			printVerifyHelp()
			return 0
		}
		return runVerify(args)
	case "clean":
		if hasHelpFlag(args) {
			printCleanHelp()
			return 0
		}
		return runClean(args)

	// --- SERVICE ---
	case "serve":
		if hasHelpFlag(args) {
			printServeHelp()
			return 0
		}
		return runServe(args)
	case "watch":
		if hasHelpFlag(args) {
			printWatchHelp()
			return 0
		}
		return runWatch(args)

	// --- CONFIG ---
	case "config":
		return runConfigNoun(args)
	case "doctor":
		if hasHelpFlag(args) {
			printDoctorHelp()
			return 0
		}
		return runDoctor(args)

	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: moagen version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("moagen %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalizedBuildTime, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalizedBuildTime
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}

	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

// parseInterspersed parses flags that may follow positional arguments and
// returns the positionals in order.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

// loadConfig resolves configPath (discovering it when empty) and loads it.
// A missing file is replaced by the template and reported as an error.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		configPath = config.Discover()
	}
	return config.LoadOrInit(configPath)
}

// newOrchestrator wires the tool runner and the output root. Ledger and hub
// are attached by the caller.
func newOrchestrator(cfg *config.Config, submittedBy string) (*generate.Orchestrator, error) {
	ws, err := workspace.NewFSManager(cfg.Output.Dir)
	if err != nil {
		return nil, fmt.Errorf("output root: %w", err)
	}
	return &generate.Orchestrator{
		Runner:    runner.New(cfg.Tool.Timeout, cfg.Tool.SuccessMarker),
		Workspace: ws,
		Tool:      cfg.MOATool(),
		Workers:   cfg.Output.Workers,
		Drift: generate.DriftOptions{
			Seed:      cfg.Drift.Seed,
			EarlyExit: cfg.EarlyExit(),
		},
		SubmittedBy: submittedBy,
		Logger:      log.WithComponent("generate"),
	}, nil
}

func lockErrorMessage(root string, err error) string {
	var locked *lock.LockedError
	if errors.As(err, &locked) {
		return fmt.Sprintf("another moagen process is generating into %s (%v)", root, locked)
	}
	return fmt.Sprintf("failed to lock output root %s: %v", root, err)
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	listen := fs.String("listen", "", "Override api.listen")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *listen != "" {
		cfg.API.Listen = *listen
	}

	log.Setup(cfg.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("moagen starting", "version", version, "config", cfg.SourcePath)

	// The server generates into the output root for its whole lifetime.
	pidLock, err := lock.AcquireOutputLock(cfg.Output.Dir)
	if err != nil {
		logger.Error(lockErrorMessage(cfg.Output.Dir, err))
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	db, err := storage.OpenSQLite(context.Background(), cfg.Ledger.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.Ledger.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.Ledger.Path)

	runs := ledger.New(db)
	hub := events.NewHub(256)

	orch, err := newOrchestrator(cfg, "api")
	if err != nil {
		logger.Error("failed to initialize generator", "error", err)
		return 1
	}
	orch.Ledger = runs
	orch.Hub = hub

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	apiConfig := api.Config{
		Listen:    cfg.API.Listen,
		APIKey:    cfg.API.Auth.APIKey,
		Tokens:    cfg.AuthTokens(),
		Tool:      cfg.MOATool(),
		OutputDir: cfg.Output.Dir,
	}
	apiServer := api.New(apiConfig, runs, orch, hub, log.WithComponent("api"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start(ctx)
	}()

	logger.Info("moagen serving (press Ctrl+C to stop)", "listen", cfg.API.Listen)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		// Start returns once in-flight runs have drained.
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("shutdown failed", "error", err)
			return 1
		}
	case err := <-errCh:
		logger.Error("api server failed", "error", err)
		return 1
	}

	logger.Info("moagen stopped")
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	apiURL := fs.String("api-url", "http://127.0.0.1:8484", "moagen API URL")
	apiKey := fs.String("api-key", os.Getenv("MOAGEN_API_KEY"), "API Bearer Token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	m := watch.New(strings.TrimRight(*apiURL, "/"), *apiKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}
