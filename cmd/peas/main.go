// -----------------------------------------------------------------------
// Last Modified: Thursday, 30th July 2026
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

// Command peas is the recipe ingestion pipeline's entry point: serve runs
// the worker fleet, ingest submits one HTML export and waits for it to
// clear the pipeline, version prints build info.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "ingest":
		runIngest(os.Args[2:])
	case "version", "-v", "--version":
		runVersion()
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "peas: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `peas is the recipe ingestion pipeline's CLI.

Usage:
  peas serve [flags]    start the worker fleet and block until terminated
  peas ingest [flags]   submit one HTML note and wait for it to complete
  peas version          print version information

Run "peas <command> -h" for flags of a specific command.`)
}
