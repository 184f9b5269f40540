package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"restaurant-pos/internal/api"
	"restaurant-pos/internal/catalog"
	"restaurant-pos/internal/config"
	"restaurant-pos/internal/customer"
	"restaurant-pos/internal/database"
	"restaurant-pos/internal/events"
	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/messaging"
	"restaurant-pos/internal/services/check"
	"restaurant-pos/internal/services/kitchen"
	"restaurant-pos/internal/services/notification"
	"restaurant-pos/internal/services/payment"
	"restaurant-pos/internal/services/shift"
	"restaurant-pos/internal/services/table"
	"restaurant-pos/internal/storage"
	"restaurant-pos/internal/storage/memory"
	"restaurant-pos/internal/storage/sqlstore"
)

func main() {
	var (
		mode          = flag.String("mode", "", "Service mode (pos-api, kitchen-display, migrate)")
		port          = flag.Int("port", 3000, "HTTP port")
		maxConcurrent = flag.Int("max-concurrent", 50, "Maximum concurrent requests")
		configPath    = flag.String("config", "config.yaml", "Path to the configuration file")
		envFile       = flag.String("env-file", ".env", "Path to an optional .env file")
		prefetch      = flag.Int("prefetch", 1, "RabbitMQ prefetch count")
	)
	flag.Parse()

	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading environment: %v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "max-concurrent":
			cfg.Server.MaxConcurrent = *maxConcurrent
		}
	})

	log := logger.New(*mode)
	defer log.Sync()
	requestID := logger.GenerateRequestID()

	log.Info("service_started", fmt.Sprintf("Starting %s", *mode), requestID, map[string]interface{}{
		"mode":           *mode,
		"port":           cfg.Server.Port,
		"max_concurrent": cfg.Server.MaxConcurrent,
		"storage":        cfg.Storage.Driver,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "pos-api":
		err = runPOSAPI(ctx, cfg, log)
	case "kitchen-display":
		err = runKitchenDisplay(ctx, cfg, log, *prefetch)
	case "migrate":
		err = runMigrate(ctx, cfg, log)
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}
	if err != nil {
		log.Error("service_failed", fmt.Sprintf("%s failed", *mode), requestID, err, nil)
		log.Sync()
		os.Exit(1)
	}

	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

// openStore builds the storage engine named by the configuration and brings
// its schema up to date.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverPostgres:
		db, err := database.New(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := db.RunMigrations(ctx, cfg.Storage.MigrationsPath); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return db, nil
	case config.DriverSQLite, config.DriverMySQL:
		return sqlstore.Open(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}
}

func runMigrate(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if cfg.Storage.Driver == config.DriverMemory {
		log.Info("migration_skipped", "Memory storage has no schema", "startup", nil)
		return nil
	}
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	log.Info("migration_completed", "Schema is up to date", "startup", map[string]interface{}{
		"storage": cfg.Storage.Driver,
	})
	return store.Close()
}

func loadCatalog(cfg *config.Config, log *logger.Logger) (*catalog.Static, error) {
	if cfg.POS.CatalogFile == "" {
		log.Info("catalog_empty", "No catalog file configured", "startup", nil)
		return catalog.NewStatic(), nil
	}
	menu, err := catalog.LoadFile(cfg.POS.CatalogFile)
	if err != nil {
		return nil, err
	}
	log.Info("catalog_loaded", fmt.Sprintf("Loaded catalog %s", cfg.POS.CatalogFile), "startup", nil)
	return menu, nil
}

func runPOSAPI(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	requestID := logger.GenerateRequestID()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	menu, err := loadCatalog(cfg, log)
	if err != nil {
		return err
	}

	ledger := customer.NewMemoryLedger()
	for _, c := range cfg.Customers {
		ledger.Open(c.ID, c.CreditLimit, c.Balance)
	}

	var publisher events.Publisher = events.NewHub()
	if cfg.RabbitMQ.Enabled {
		conn, err := messaging.New(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize messaging: %w", err)
		}
		defer conn.Close()
		log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)
		publisher = events.Multi{publisher, messaging.NewPublisher(conn, log)}
	}

	shifts := shift.NewService(store, log)
	tables := table.NewService(store, log)
	payments := payment.NewService(store, ledger, shifts, tables, publisher, log, cfg.POS.TaxRate)
	checks := check.NewService(store, menu, shifts, tables, payments, publisher, log, cfg.POS.TaxRate)
	scheduler := kitchen.NewScheduler(store, publisher, log)

	created, err := tables.Seed(ctx, cfg.Tables)
	if err != nil {
		return err
	}
	log.Info("tables_seeded", fmt.Sprintf("Seeded %d tables", created), requestID, map[string]interface{}{
		"configured": len(cfg.Tables),
	})

	handler := api.NewHandler(api.Services{
		Store:   store,
		Shifts:  shifts,
		Tables:  tables,
		Checks:  checks,
		Kitchen: scheduler,
	}, log, cfg.Auth.Secret, cfg.Server.MaxConcurrent)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scheduler.Run(gctx, cfg.POS.KitchenPollInterval)
		return nil
	})
	g.Go(func() error {
		log.Info("service_started", fmt.Sprintf("POS API started on port %d", cfg.Server.Port), requestID, map[string]interface{}{
			"port":           cfg.Server.Port,
			"max_concurrent": cfg.Server.MaxConcurrent,
			"auth":           cfg.Auth.Secret != "",
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("graceful_shutdown", "Shutting down HTTP server", requestID, nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runKitchenDisplay(ctx context.Context, cfg *config.Config, log *logger.Logger, prefetch int) error {
	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}

	alerts := messaging.NewConsumer(conn, log, messaging.QueueKitchenDisplay, "kitchen-display-alerts", prefetch)
	checkEvents := messaging.NewConsumer(conn, log, messaging.QueueCheckEvents, "kitchen-display-events", prefetch)

	return notification.NewSubscriber(alerts, checkEvents, os.Stdout, log).Start(ctx)
}
