// Command psychoportal-cli is a thin cobra-based HTTP client against a
// running psychoportald daemon: a root command with a --server persistent
// flag and a handful of subcommands over psychoportald's REST surface
// (internal/api).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
