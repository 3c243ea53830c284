package main

import (
	"os"

	"sayit/api/cmd/sayit/cmd"
)

// Set at build time with -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cmd.SetVersion(version, commit)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
