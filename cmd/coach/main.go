// Package main is the entry point for the coach binary.
package main

import (
	"context"
	"os"

	"github.com/neoclaw-ai/repcoach/internal/cli"
	"github.com/neoclaw-ai/repcoach/internal/logging"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		logging.Logger().Error("fatal error", "err", err)
		os.Exit(1)
	}
}
