// Command mailanon pseudonymizes mail metadata exports.
//
//	mailanon resolve [flags] <raw.jsonl>...
//	mailanon anonymize [flags] <file.csv|dir>...
//
// resolve turns raw records with directory references into anonymization
// input; anonymize replaces every address with a stable integer identifier.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	dErrors "mailanon/pkg/domain-errors"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

const (
	cmdResolve   = "resolve"
	cmdAnonymize = "anonymize"
	cmdVersion   = "version"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return exitUsage
	}

	var err error
	switch args[0] {
	case cmdResolve:
		err = runResolve(ctx, args[1:], stdout, stderr)
	case cmdAnonymize:
		err = runAnonymize(ctx, args[1:], stdout, stderr)
	case cmdVersion:
		fmt.Fprintln(stdout, "mailanon", Version)
		return exitOK
	case "-h", "-help", "--help", "help":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		printUsage(stderr)
		return exitUsage
	}
	return exitCode(err, stderr)
}

func exitCode(err error, stderr io.Writer) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case dErrors.HasCode(err, dErrors.CodeBadRequest):
		fmt.Fprintln(stderr, "mailanon:", err)
		return exitUsage
	default:
		fmt.Fprintln(stderr, "mailanon:", err)
		return exitError
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `mailanon pseudonymizes mail metadata exports.

Usage:
  mailanon resolve [flags] <raw.jsonl>...
      Resolve directory references through the cache file and an optional
      directory provider, writing anonymization input CSV.

  mailanon anonymize [flags] <file.csv|dir>...
      Replace every address with a stable integer identifier and write the
      mapping table next to the anonymized files.

  mailanon version

Run "mailanon <command> -h" for the flags of a command.
Configuration precedence: flags, MAILANON_* environment, -config file, defaults.
`)
}
