// Command edgevec-bench runs the literal scenarios and invariant checks
// of the engine's testable-properties section and reports pass/fail —
// the project's test-tooling ambient concern, not a production CLI.
package main

import (
	"fmt"
	"os"

	"github.com/edgevec/edgevec/cmd/edgevec-bench/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
