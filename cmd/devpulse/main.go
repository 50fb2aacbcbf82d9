// devpulse: progress inference for planned development work.
//
// Usage:
//
//	devpulse monitor            # Run the progress monitor
//	devpulse hook --stdin       # One-shot update from an editor hook
//	devpulse status [REQ-xxx]   # Show recorded progress
//	devpulse serve              # Start the MCP server (stdio transport)
package main

import (
	"fmt"
	"os"

	"github.com/HendryAvila/devpulse/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
