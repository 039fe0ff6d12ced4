package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/moagen/internal/dataset"
	"github.com/mattjoyce/moagen/internal/generate"
	"github.com/mattjoyce/moagen/internal/ledger"
	"github.com/mattjoyce/moagen/internal/loader"
	"github.com/mattjoyce/moagen/internal/lock"
	"github.com/mattjoyce/moagen/internal/log"
	"github.com/mattjoyce/moagen/internal/moa"
	"github.com/mattjoyce/moagen/internal/storage"
	"github.com/mattjoyce/moagen/internal/tui"
)

func runGenerate(args []string) int {
	var (
		configPath, defsPath, outDir string
		interactive, dryRun, yes     bool
		noEarlyExit                  bool
		workers                      int
		seed                         uint64
	)
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file")
	fs.StringVar(&defsPath, "datasets", "", "Definition file (.txt lines or .yaml/.json records)")
	fs.StringVar(&defsPath, "d", "", "Shorthand for --datasets")
	fs.BoolVar(&interactive, "interactive", false, "Edit the dataset list before generating")
	fs.BoolVar(&interactive, "i", false, "Shorthand for --interactive")
	fs.StringVar(&outDir, "out", "", "Override output.dir")
	fs.IntVar(&workers, "workers", 0, "Override output.workers")
	fs.Uint64Var(&seed, "seed", 0, "Override drift.seed")
	fs.BoolVar(&noEarlyExit, "no-early-exit", false, "Scan every row of every drift segment")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate and print commands without generating")
	fs.BoolVar(&yes, "yes", false, "Generate the valid datasets without asking when some are invalid")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return 1
	}
	if defsPath == "" && !interactive {
		printGenerateHelp(os.Stderr)
		return 1
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if outDir != "" {
		if err := moa.CheckOutputDir(outDir); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --out: %v\n", err)
			return 1
		}
		cfg.Output.Dir = outDir
	}
	if workers > 0 {
		cfg.Output.Workers = workers
	}
	if seed != 0 {
		cfg.Drift.Seed = seed
	}
	if noEarlyExit {
		off := false
		cfg.Drift.EarlyExit = &off
	}

	var specs []dataset.Spec
	if defsPath != "" {
		res, err := loader.Load(defsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load definitions: %v\n", err)
			return 1
		}
		printLoadResult(os.Stdout, res)
		specs = res.Specs

		if !interactive {
			if len(specs) == 0 {
				fmt.Println("No datasets to generate")
				return 1
			}
			if len(res.Errors) > 0 && !yes &&
				!confirm(stdin, os.Stdout, fmt.Sprintf("Generate the remaining %d datasets?", len(specs))) {
				return 1
			}
		}
	}

	if interactive {
		result, err := tui.Run(specs, stdin, os.Stdout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		if result.Action != tui.ActionGenerate {
			return 0
		}
		specs = result.Specs
		if len(specs) == 0 {
			fmt.Println("No datasets to generate")
			return 0
		}
	}

	if dryRun {
		for _, s := range specs {
			fmt.Println(moa.NewInvocation(cfg.MOATool(), s, cfg.Output.Dir).String())
		}
		return 0
	}

	log.Setup(cfg.LogLevel)
	logger := log.WithComponent("main")

	pidLock, err := lock.AcquireOutputLock(cfg.Output.Dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, lockErrorMessage(cfg.Output.Dir, err))
		return 1
	}
	defer pidLock.Release()

	db, err := storage.OpenSQLite(context.Background(), cfg.Ledger.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.Ledger.Path, "error", err)
		return 1
	}
	defer db.Close()

	orch, err := newOrchestrator(cfg, "cli")
	if err != nil {
		logger.Error("failed to initialize generator", "error", err)
		return 1
	}
	orch.Ledger = ledger.New(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal, stopping generation", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	report, err := orch.Run(ctx, specs)
	if report != nil {
		printReport(os.Stdout, report)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Generation failed: %v\n", err)
		return 1
	}
	if ctx.Err() != nil || len(report.Failed()) > 0 {
		return 1
	}
	return 0
}

func printLoadResult(w io.Writer, res *loader.Result) {
	if len(res.Specs) > 0 {
		fmt.Fprintln(w, "Datasets to generate:")
		for i, s := range res.Specs {
			fmt.Fprintf(w, "\t%d. %s\n", i, s)
		}
	}
	if len(res.Errors) > 0 {
		fmt.Fprintln(w, "Errors in the definition file:")
		for _, e := range res.Errors {
			fmt.Fprintf(w, "\t%v\n", e)
		}
	}
}

func printReport(w io.Writer, report *generate.Report) {
	fmt.Fprintf(w, "Run %s -> %s\n", report.RunID, report.Run.Dir)
	for _, o := range report.Outcomes {
		if !o.Succeeded() {
			fmt.Fprintf(w, "  FAILED  %s: %v\n", o.Spec, o.Err)
			continue
		}
		fmt.Fprintf(w, "  ok      %s", o.Spec)
		if o.Drift != nil {
			fmt.Fprintf(w, " (%d labels switched)", o.Drift.Relabeled())
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%d/%d datasets generated in %s\n",
		report.Succeeded(), len(report.Outcomes), report.Elapsed.Round(time.Millisecond))
}

// confirm asks a yes/no question; anything but y or yes is a no.
func confirm(r io.Reader, w io.Writer, question string) bool {
	fmt.Fprintf(w, "%s (y/N) ", question)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
