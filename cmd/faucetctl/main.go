package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"faucet/internal/app/bootstrap"
	"faucet/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := cli.NewRootCommand(func(ctx context.Context) (cli.Backend, error) {
		return bootstrap.BuildAdmin(ctx)
	})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
