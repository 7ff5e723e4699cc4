package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/venuehub/services/events/config"
	"example.com/venuehub/services/events/internal/api"
	"example.com/venuehub/services/events/internal/cache"
	"example.com/venuehub/services/events/internal/calendar"
	"example.com/venuehub/services/events/internal/database"
	"example.com/venuehub/services/events/internal/metrics"
	"example.com/venuehub/services/events/internal/notify"
	"example.com/venuehub/services/events/internal/permissions"
	"example.com/venuehub/services/events/internal/search"
	"example.com/venuehub/services/events/internal/services"
	"example.com/venuehub/services/events/internal/tracing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server for the event lifecycle operations`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
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

	eventService, metricsCollector, tracer, err := initEventService(cfg)
	if err != nil {
		return err
	}
	defer tracer.Close()

	// Initialize and start the server
	server := api.NewServer(cfg, eventService, metricsCollector, tracer)

	// Start the server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	// Shutdown the server
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}

// initEventService wires the full dependency graph shared by the api and
// worker commands.
func initEventService(cfg config.Config) (*services.EventService, *metrics.Metrics, tracing.Tracer, error) {
	// Initialize database connections
	db, readOnlyDB, err := database.Connect(cfg.DB)
	if err != nil {
		return nil, nil, nil, err
	}

	// Initialize cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = tracing.Noop()
	}

	// Initialize Elasticsearch client
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without audit indexing")
	}

	// Initialize the external calendar client
	calendarClient := calendar.NewClient(cfg.Calendar)

	// Initialize the change notification dispatcher
	notifier, err := notify.NewDispatcher(cfg.ServiceBus)
	if err != nil {
		return nil, nil, nil, err
	}

	// Initialize workflow permissions
	oracle := permissions.NewRoleTable(cfg.Workflow.Roles)

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()
	metricsCollector.SetHealth("database", true)
	metricsCollector.SetHealth("redis", redisCache.Enabled())
	metricsCollector.SetHealth("elasticsearch", elasticClient.Enabled())

	eventService := services.NewEventService(
		db, readOnlyDB,
		redisCache, elasticClient, calendarClient, notifier, oracle,
		metricsCollector, tracer,
		cfg.Workflow, cfg.Redis.TTL,
	)

	return eventService, metricsCollector, tracer, nil
}
