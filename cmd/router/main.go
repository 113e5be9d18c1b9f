// Command router runs the PSP intelligent router decision engine.
//
// Grounded on inference-sim's cmd/root.go cobra tree, generalized from a
// single run subcommand to serve/simulate, and on the teacher's
// cmd/server/main.go structured-logging setup.
package main

import (
	"os"

	"github.com/nimbus-psp/psp-router/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
