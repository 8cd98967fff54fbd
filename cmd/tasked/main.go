// Package main is the entrypoint for the tasked CLI.
// The CLI provides commands for accounts, tasks, bootstrap and diagnostics.
package main

import (
	"os"

	"github.com/tasked-labs/tasked/internal/cli"
)

var (
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	cli.SetVersionInfo(version, commit, date)
	os.Exit(cli.New().Execute())
}
