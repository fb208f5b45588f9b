// Package main is the entry point for the dirsync CLI.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/roach88/dirsync/internal/cli"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// DIRSYNC_* overrides may live in a local .env file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "dirsync: .env: %v\n", err)
		os.Exit(cli.ExitCommandError)
	}

	root := cli.NewRootCommand()
	root.Version = fmt.Sprintf("%s (commit: %s)", version, commit)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dirsync: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
