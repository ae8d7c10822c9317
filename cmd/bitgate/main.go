// Bitgate exposes campus conversational assistants behind an
// OpenAI-compatible chat completions API.
//
// Every request runs as one disposable upstream conversation: the gateway
// opens a session, replays prior turns, streams the answer back (splitting
// reasoning from content) and deletes the session again.
//
// Usage:
//
//	# Start the gateway, reading credentials from the environment or .env
//	bitgate serve
//
//	# Start with a configuration file
//	bitgate serve --config /etc/bitgate/config.yaml
//
//	# List configured models
//	bitgate models
//
//	# Print cumulative usage from the ledger
//	bitgate stats --format json
package main

import (
	"fmt"
	"os"

	"teclab/bitgate/pkg/cli"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
