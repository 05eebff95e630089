package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/The127/ioc"
	"github.com/avast/retry-go"
	"github.com/spf13/cobra"
	"github.com/the127/resumable/internal/config"
	"github.com/the127/resumable/internal/logging"
	"github.com/the127/resumable/internal/server"
	"github.com/the127/resumable/internal/services/clock"
	"github.com/the127/resumable/internal/setup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the storage emulator",
	Long: `Run a local storage service that speaks the subset of the JSON API used
for resumable, parallel and ranged transfers. Faults can be injected with the
x-goog-emulator-instructions header.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dc := ioc.NewDependencyCollection()

		setup.Clock(dc, clock.NewClockService())
		database := setup.Database(dc, config.C.Database)

		err := retry.Do(
			func() error {
				return database.Migrate()
			},
			retry.Attempts(5),
			retry.Delay(time.Second*5),
			retry.DelayType(retry.FixedDelay),
			retry.OnRetry(func(n uint, err error) {
				logging.Logger.Warnf("failed to migrate database: %s, retrying in 5 seconds", err)
			}),
		)
		if err != nil {
			logging.Logger.Panicf("failed to migrate database: %s", err)
		}

		setup.Kv(dc, config.C.Kv)
		setup.Blob(dc, config.C.Blob)
		setup.Services(dc, config.C.Session)
		setup.Mediator(dc)

		dp := dc.BuildProvider()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return server.Serve(ctx, dp, config.C.Server)
	},
}
