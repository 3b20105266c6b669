// Command payablectl evaluates invoice snapshots offline: visibility,
// payment method selection, approval slots, rollup and the next status.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
