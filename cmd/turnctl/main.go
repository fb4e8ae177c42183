// Command turnctl is a thin manual-exercise harness for the Turn
// Scheduler: it wires one model provider, a tool registry, and a
// scheduler together behind a line-oriented REPL. It has no opinion on
// concrete tools, auth, or UI rendering — those are this repo's
// explicitly out-of-scope surfaces.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
