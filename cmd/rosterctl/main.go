package main

import (
	"os"

	"basegraph.app/roster/cmd/rosterctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
