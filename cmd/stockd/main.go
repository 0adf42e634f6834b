// Command stockd runs the stock reservation API and its background workers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "stockd: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "stockd",
		Usage: "inventory holds, orders and payment settlement",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API with the expiry sweeper and, when Kafka is configured, the reclaim consumer",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "skip-migrations", Usage: "do not apply pending migrations at startup"},
				},
				Action: serveAction,
			},
			{
				Name:   "reclaimer",
				Usage:  "consume scheduled hold reclaims from Kafka",
				Action: reclaimerAction,
			},
			{
				Name:  "sweep",
				Usage: "release every expired, unordered hold once and exit",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "maximum holds to release (defaults to SWEEP_BATCH)"},
				},
				Action: sweepAction,
			},
			{
				Name:   "migrate",
				Usage:  "apply pending database migrations",
				Action: migrateAction,
			},
		},
	}
}
