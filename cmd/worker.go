package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/venuehub/services/events/config"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker that retries failed calendar syncs for published events`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Create an error group to manage goroutines
	g, ctx := errgroup.WithContext(ctx)

	eventService, _, tracer, err := initEventService(cfg)
	if err != nil {
		return err
	}
	defer tracer.Close()

	// Start the calendar sync retry cron job
	g.Go(func() error {
		log.Info().
			Dur("interval", cfg.Worker.SyncRetryInterval).
			Int("batch", cfg.Worker.SyncRetryBatch).
			Msg("Starting calendar sync retry job")

		// Create a scheduler
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Worker.SyncRetryInterval),
			gocron.NewTask(func() {
				if err := eventService.RetrySyncPending(ctx, cfg.Worker.SyncRetryBatch); err != nil {
					log.Error().Err(err).Msg("Failed to retry pending calendar syncs")
				}
			}),
		)
		if err != nil {
			return err
		}

		// Start the scheduler
		scheduler.Start()

		// Wait for context cancellation
		<-ctx.Done()

		// Shutdown the scheduler
		return scheduler.Shutdown()
	})

	// Wait for any goroutine to exit
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
