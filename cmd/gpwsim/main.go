// Command gpwsim simulates a GPW equities portfolio over historical daily
// closes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gpwsim/internal/cli"
	"gpwsim/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Replaced by the configured logger once config.toml is read.
	logger := logging.NewLogger()

	if err := cli.Execute(ctx, nil, logger); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
