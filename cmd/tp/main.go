// Command tp is the offline-first task tracker CLI.
//
// Mutations apply to the local cache immediately and are pushed to the
// remote gateway directly when it is reachable, or queued for replay when
// it is not. Run "tp daemon" to keep a long-lived replay loop with all
// wake triggers; short-lived invocations still replay due work on their
// own.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
