package main

import (
	"os"

	"stevedore/cmd"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.BuildVersion = version
	cmd.BuildCommit = commit
	cmd.BuildDate = date

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
