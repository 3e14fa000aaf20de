package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"olcsync/internal/services"
)

// Exit codes: 1 for run failures, 2 when nothing could start because of
// configuration or credentials.
const (
	exitFailure = 1
	exitSetup   = 2
)

func exitCode(err error) int {
	if services.IsFatal(err) {
		return exitSetup
	}
	return exitFailure
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode(err))
	}
}
