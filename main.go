// Package main is the entry point for the star-meter telemetry
// collector.
package main

import (
	"fmt"
	"os"

	"github.com/KarmaPanda/StarResonanceDamageCounter/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
