// Main package for the solr-ingest command line tool.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/limingnihao/solr-ingest/cmd/solr-ingest/commands"
	"github.com/limingnihao/solr-ingest/internal/constants"
)

func main() {
	slog.SetLogLoggerLevel(constants.DefaultLogLevel)

	a, err := commands.New()
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	// Stop between two records on interruption.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	rc := run(ctx, a)
	stop()

	os.Exit(rc)
}

type app interface {
	Run(context.Context) error
	UsageError() bool
}

func run(ctx context.Context, a app) int {
	if err := a.Run(ctx); err != nil {
		slog.Error(err.Error())

		if a.UsageError() {
			return 2
		}
		return 1
	}

	return 0
}
