// Command warden is the CLI entry point: it resolves one pull request,
// runs the configured review skills against it, and exits with a status
// code a CI step can branch on.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const (
	exitSuccess  = 0
	exitFatal    = 1
	exitFindings = 2
	exitAborted  = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)

	os.Exit(exitCodeFor(ctx, err))
}

func exitCodeFor(ctx context.Context, err error) int {
	if err == nil {
		return exitSuccess
	}
	fmt.Fprintln(os.Stderr, "warden:", err)

	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
		return exitAborted
	}

	var thresholdErr *thresholdError
	if errors.As(err, &thresholdErr) {
		return exitFindings
	}

	return exitFatal
}
