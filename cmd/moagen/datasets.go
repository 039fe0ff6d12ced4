package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/mattjoyce/moagen/internal/dataset"
	"github.com/mattjoyce/moagen/internal/drift"
	"github.com/mattjoyce/moagen/internal/loader"
	"github.com/mattjoyce/moagen/internal/moa"
)

type validateOutput struct {
	Datasets []string          `json:"datasets"`
	Errors   []validateLineErr `json:"errors,omitempty"`
}

type validateLineErr struct {
	Line  int    `json:"line"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error"`
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positional) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: moagen validate <definitions-file> [--json]")
		return 1
	}

	res, err := loader.Load(positional[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load definitions: %v\n", err)
		return 1
	}

	code := 0
	if len(res.Errors) > 0 {
		code = 1
	}

	if *jsonOut {
		out := validateOutput{Datasets: make([]string, 0, len(res.Specs))}
		for _, s := range res.Specs {
			out.Datasets = append(out.Datasets, s.String())
		}
		for _, e := range res.Errors {
			out.Errors = append(out.Errors, validateLineErr{Line: e.Line, Text: e.Text, Error: e.Err.Error()})
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return code
	}

	printLoadResult(os.Stdout, res)
	fmt.Printf("%d valid, %d invalid\n", len(res.Specs), len(res.Errors))
	return code
}

func runList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	gens := dataset.Generators()
	if *jsonOut {
		data, err := json.MarshalIndent(gens, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GENERATOR\tFUNCTIONS\tMOA CLASS")
	for _, g := range gens {
		fmt.Fprintf(tw, "%s\t%d..%d\t%s\n", g.Name, g.MinFunction, g.MaxFunction, g.Class)
	}
	_ = tw.Flush()
	return 0
}

func runCommand(args []string) int {
	fs := flag.NewFlagSet("command", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	outDir := fs.String("out", "", "Output directory written into the command")
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positional) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: moagen command <definition>... [--out DIR] [--config PATH]")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	dir := cfg.Output.Dir
	if *outDir != "" {
		dir = *outDir
	}
	if err := moa.CheckOutputDir(dir); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --out: %v\n", err)
		return 1
	}

	code := 0
	for _, def := range positional {
		spec, err := dataset.Parse(def)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			code = 1
			continue
		}
		fmt.Println(moa.NewInvocation(cfg.MOATool(), spec, dir).String())
	}
	return code
}

func runSimulate(args []string) int {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	seed := fs.Uint64("seed", 0, "Random seed (0 draws a fresh one)")
	noEarlyExit := fs.Bool("no-early-exit", false, "Scan every row of every drift segment")
	jsonOut := fs.Bool("json", false, "Output the simulation report as JSON")
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positional) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: moagen simulate <file.arff> <definition> [--seed N] [--no-early-exit] [--json]")
		return 1
	}
	path, def := positional[0], positional[1]

	spec, err := dataset.Parse(def)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if !spec.HasSwitchingDrift() {
		fmt.Fprintf(os.Stderr, "%s has no switching drift, nothing to simulate\n", spec)
		return 1
	}

	sim := drift.New(*seed)
	sim.DisableEarlyExit = *noEarlyExit
	report, err := sim.ApplyFile(path, spec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Simulation failed: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("%s: %d rows, classes %v\n", path, report.Rows, report.Classes)
	for _, seg := range report.Segments {
		if seg.Skipped {
			fmt.Printf("  drift %d at %d (width %d): skipped, %s\n", seg.Drift, seg.Point, seg.Width, seg.Reason)
			continue
		}
		fmt.Printf("  drift %d at %d (width %d): %d rows scanned, %d relabeled, mapping %v\n",
			seg.Drift, seg.Point, seg.Width, seg.Scanned, seg.Relabeled, seg.Mapping)
	}
	fmt.Printf("%d labels switched\n", report.Relabeled())
	return 0
}
