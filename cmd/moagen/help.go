package main

import (
	"fmt"
	"io"
	"os"
)

func printUsage() {
	fmt.Print(`moagen - bulk MOA dataset generator with concept and switching drift

Usage:
  moagen <command> [flags]

Dataset Commands:
  generate          Generate datasets from a definition file or the interactive builder
  validate <file>   Check a definition file and report invalid lines
  list              Show supported generators and classification functions
  command <def>     Print the MOA invocation for a definition without running it
  simulate <arff>   Apply switching drift to an existing ARFF file

History Commands:
  runs [id]         Show generation history from the ledger
  verify <dir>      Recompute the checksums recorded in a run log
  clean             Delete old run directories

Service Commands:
  serve             Start the HTTP API
  watch             Real-time run monitoring TUI (needs a running API)

Config Commands:
  config init       Write a configuration template
  config show       Print the effective configuration
  config check      Alias for doctor
  doctor            Check java, MOA and the configuration

General:
  --version         Show version information
  version           Show version information
  help              Show this help message

Definitions look like SEA_f_1_2_p_5000_w_100_s_10000: generator, classification
functions, drift points and widths, number of samples. Repeating a function
across a drift (SEA_f_1_1_...) switches class labels instead.

Use 'moagen <command> --help' for command-specific flags.
`)
}

func printGenerateHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: moagen generate (-d FILE | -i) [flags]")
	fmt.Fprintln(w, "Generate every dataset into a new timestamped run directory.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -d, --datasets FILE   Definition file: one definition per line, or .yaml/.json records")
	fmt.Fprintln(w, "  -i, --interactive     Edit the dataset list before generating")
	fmt.Fprintln(w, "  --config PATH         Configuration file (default: discovered)")
	fmt.Fprintln(w, "  --out DIR             Override output.dir")
	fmt.Fprintln(w, "  --workers N           Override output.workers")
	fmt.Fprintln(w, "  --seed N              Override drift.seed")
	fmt.Fprintln(w, "  --no-early-exit       Scan every row of every drift segment")
	fmt.Fprintln(w, "  --dry-run             Validate and print the commands only")
	fmt.Fprintln(w, "  --yes                 Skip the prompt when some definitions are invalid")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Exit codes:")
	fmt.Fprintln(w, "  0  All datasets generated")
	fmt.Fprintln(w, "  1  A dataset failed, the run was interrupted, or nothing was generated")
}

func printValidateHelp() {
	fmt.Println("Usage: moagen validate <definitions-file> [--json]")
	fmt.Println("Parse every definition and report the invalid ones by line.")
	fmt.Println("Exits 1 when any definition is invalid.")
}

func printCommandHelp() {
	fmt.Println("Usage: moagen command <definition>... [--out DIR] [--config PATH]")
	fmt.Println("Print the java command that would generate each dataset.")
}

func printSimulateHelp() {
	fmt.Println("Usage: moagen simulate <file.arff> <definition> [--seed N] [--no-early-exit] [--json]")
	fmt.Println("Rewrite the class labels of an ARFF file in place for every switching drift")
	fmt.Println("of the definition. The file must have been generated from that definition.")
}

func printRunsHelp() {
	fmt.Println("Usage: moagen runs [run-id] [--limit N] [--json] [--config PATH]")
	fmt.Println("List recent runs, or show one run with its datasets.")
}

func printVerifyHelp() {
	fmt.Println("Usage: moagen verify <run-dir>")
	fmt.Println("Recompute the BLAKE3 digests listed in <run-dir>/log.txt.")
	fmt.Println("Exits 1 when any file is missing or changed.")
}

func printCleanHelp() {
	fmt.Println("Usage: moagen clean --older-than DURATION [--out DIR] [--config PATH]")
	fmt.Println("Delete run directories older than DURATION below the output root.")
}

func printServeHelp() {
	fmt.Println("Usage: moagen serve [--config PATH] [--listen ADDR]")
	fmt.Println("Start the HTTP API in the foreground.")
}

func printWatchHelp() {
	fmt.Println("Usage: moagen watch [flags]")
	fmt.Println()
	fmt.Println("Real-time run monitoring TUI.")
	fmt.Println("Shows API health, active runs and the event stream.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    moagen API URL (default: http://127.0.0.1:8484)")
	fmt.Println("  --api-key KEY    API Bearer Token (default: $MOAGEN_API_KEY)")
}

func printDoctorHelp() {
	fmt.Println("Usage: moagen doctor [--config PATH] [--json]")
	fmt.Println("Check java, the MOA jars, the output root, the ledger and API exposure,")
	fmt.Println("then probe MOA with a tiny task.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  All checks passed")
	fmt.Println("  1  One or more checks failed")
	fmt.Println("  2  Passed with warnings")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: moagen config <action> [flags]")
	fmt.Fprintln(w, "Actions: init, show, check")
}

func printConfigInitHelp() {
	fmt.Println("Usage: moagen config init [--config PATH] [--force]")
	fmt.Println("Write a configuration template.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: moagen config show [--config PATH] [--show-secrets]")
	fmt.Println("Print the configuration with defaults applied.")
}
