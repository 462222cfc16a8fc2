package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"example.com/octofit/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(os.Stdout).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, cli.ErrIntegrityFaults) {
			fmt.Fprintln(os.Stderr, "octofit:", err)
		}
		stop()
		os.Exit(1)
	}
}
