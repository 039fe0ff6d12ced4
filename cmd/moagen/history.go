package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/mattjoyce/moagen/internal/ledger"
	"github.com/mattjoyce/moagen/internal/lock"
	"github.com/mattjoyce/moagen/internal/storage"
	"github.com/mattjoyce/moagen/internal/workspace"
)

type runDetail struct {
	Run      *ledger.Run      `json:"run"`
	Datasets []ledger.Dataset `json:"datasets"`
}

func runRuns(args []string) int {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	limit := fs.Int("limit", 20, "Maximum number of runs to list (0 for all)")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positional) > 1 {
		fmt.Fprintln(os.Stderr, "Usage: moagen runs [run-id] [--limit N] [--json]")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.Ledger.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()
	l := ledger.New(db)

	if len(positional) == 1 {
		return showRun(ctx, l, positional[0], *jsonOut)
	}

	runs, err := l.ListRuns(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list runs: %v\n", err)
		return 1
	}

	if *jsonOut {
		if runs == nil {
			runs = []ledger.Run{}
		}
		return printJSON(runs)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return 0
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRUN DIR\tSTATUS\tBY\tOK/TOTAL\tELAPSED\tCREATED")
	for _, r := range runs {
		elapsed := "-"
		if r.Elapsed != nil {
			elapsed = r.Elapsed.Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			r.ID, r.RunDir, r.Status, r.SubmittedBy, r.Succeeded, r.Total, elapsed,
			r.CreatedAt.Local().Format(time.DateTime))
	}
	_ = tw.Flush()
	return 0
}

func showRun(ctx context.Context, l *ledger.Ledger, runID string, jsonOut bool) int {
	run, err := l.GetRun(ctx, runID)
	if errors.Is(err, ledger.ErrRunNotFound) {
		fmt.Fprintf(os.Stderr, "Run not found: %s\n", runID)
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load run: %v\n", err)
		return 1
	}
	datasets, err := l.ListDatasets(ctx, runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load datasets: %v\n", err)
		return 1
	}

	if jsonOut {
		return printJSON(runDetail{Run: run, Datasets: datasets})
	}

	fmt.Printf("Run:      %s\n", run.ID)
	fmt.Printf("Dir:      %s\n", filepath.Join(run.OutputRoot, run.RunDir))
	fmt.Printf("Status:   %s (%d/%d succeeded)\n", run.Status, run.Succeeded, run.Total)
	if run.LastError != nil {
		fmt.Printf("Error:    %s\n", *run.LastError)
	}
	fmt.Println("Datasets:")
	for _, d := range datasets {
		fmt.Printf("  %d. %s [%s]", d.Position, d.Definition, d.Status)
		if d.Relabeled > 0 {
			fmt.Printf(" %d labels switched", d.Relabeled)
		}
		fmt.Println()
		if d.Digest != nil {
			fmt.Printf("     blake3 %s\n", *d.Digest)
		}
		if d.LastError != nil {
			fmt.Printf("     error: %s\n", *d.LastError)
		}
	}
	return 0
}

func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: moagen verify <run-dir>")
		return 1
	}
	dir := fs.Arg(0)

	runLog, err := workspace.ReadRunLog(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read run log: %v\n", err)
		return 1
	}

	errs := runLog.Verify(dir)
	for _, err := range errs {
		fmt.Printf("MISMATCH %v\n", err)
	}
	fmt.Printf("%d/%d files verified\n", len(runLog.Checksums)-len(errs), len(runLog.Checksums))
	if len(errs) > 0 {
		return 1
	}
	return 0
}

func runClean(args []string) int {
	fs := flag.NewFlagSet("clean", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	outDir := fs.String("out", "", "Override output.dir")
	olderThan := fs.Duration("older-than", 0, "Delete run directories older than this (e.g. 720h)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *olderThan <= 0 {
		fmt.Fprintln(os.Stderr, "Usage: moagen clean --older-than DURATION [--out DIR]")
		return 1
	}

	root := *outDir
	if root == "" {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
		root = cfg.Output.Dir
	}

	pidLock, err := lock.AcquireOutputLock(root)
	if err != nil {
		fmt.Fprintln(os.Stderr, lockErrorMessage(root, err))
		return 1
	}
	defer pidLock.Release()

	ws, err := workspace.NewFSManager(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open output root: %v\n", err)
		return 1
	}
	report, err := ws.Cleanup(context.Background(), *olderThan)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cleanup failed after %d directories: %v\n", report.DeletedDirs, err)
		return 1
	}
	fmt.Printf("Deleted %d run directories from %s\n", report.DeletedDirs, root)
	return 0
}

func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}
