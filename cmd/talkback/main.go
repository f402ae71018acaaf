package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"talkback/internal/bootstrap"
	"talkback/internal/config"
	"talkback/internal/observability"
	"talkback/internal/ports"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newCLIApp(openServices, os.Stdin)
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openServices assembles the runtime graph from the configuration named by
// --config. Logs go to stderr so stdout stays machine readable.
func openServices(c *cli.Context, events ports.EventSink) (*bootstrap.Services, error) {
	cfg, err := config.LoadFrom(c.String("config"))
	if err != nil {
		return nil, err
	}
	logger := observability.New(observability.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, c.App.ErrWriter)
	return bootstrap.Build(c.Context, bootstrap.Options{
		Config: &cfg,
		Events: events,
		Logger: logger,
	})
}
