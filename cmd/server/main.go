package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	httpapi "pickup-backend/internal/api/http"
	"pickup-backend/internal/config"
	"pickup-backend/internal/discovery"
	"pickup-backend/internal/jobs"
	"pickup-backend/internal/logger"
	"pickup-backend/internal/notifier"
	"pickup-backend/internal/policy"
	"pickup-backend/internal/repository"
	"pickup-backend/internal/repository/memory"
	"pickup-backend/internal/repository/postgres"
	"pickup-backend/internal/scheduler"
	"pickup-backend/internal/security"
	"pickup-backend/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	withScheduler := flag.Bool("scheduler", false, "Run the lifecycle jobs in-process (always on for the memory driver)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting pickup backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, health, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize storage", "driver", cfg.Database.Driver, "error", err)
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	rules := policy.NewLockPolicy(cfg.Coordinator.ModifyLockWindow(), cfg.Coordinator.DeleteLockWindow())
	gate := service.NewActivityGate(cfg.Coordinator.AcquireTimeout())
	hub := notifier.NewHub(cfg.Notifier.SubscriberQueueSize)
	opts := service.Options{
		MaxCommitAttempts:      cfg.Coordinator.MaxCommitAttempts,
		DefaultDurationMinutes: int32(cfg.Coordinator.DefaultDurationMinutes),
		ArchiveGrace:           cfg.Coordinator.ArchiveGrace(),
	}

	coord := service.NewCoordinator(store, gate, hub, rules, opts)
	activities := service.NewActivityService(store, store, gate, hub, rules, opts)
	disc := service.NewDiscoveryService(store, discovery.NewScorer(radiusTable(cfg.Discovery)), nil)

	tokenManager := security.NewTokenManager(cfg.JWT.Secret, cfg.AccessTokenTTL())
	limiter := httpapi.NewRateLimiter(cfg.RateLimit.ParticipationPerMinute, cfg.RateLimit.Burst)
	handler := httpapi.NewHandler(coord, activities, disc, health)
	router := httpapi.NewRouter(handler, httpapi.NewAuthenticator(tokenManager), limiter)

	srv := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// A memory store is not shared with a separate cronjob process.
	if *withScheduler || cfg.Database.Driver == config.DriverMemory {
		cron, err := scheduler.NewScheduler(jobs.NewJobRunner(activities, cfg))
		if err != nil {
			log.Fatalf("Failed to initialize scheduler: %v", err)
		}
		cron.Start()
		defer cron.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		limiter.Run(gctx, 10*time.Minute)
		return nil
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP server...")
		// Watchers get a going-away frame before connections drain.
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped. Goodbye!")
}

// openStore returns the configured backend and, for postgres, its health check.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, httpapi.Pinger, error) {
	if cfg.Database.Driver == config.DriverMemory {
		logger.Warn("Using in-memory store; state is lost on restart")
		return memory.NewStore(), nil, nil
	}

	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port,
		"database", cfg.Database.Database, "user", cfg.Database.User)
	db, err := postgres.Open(ctx, cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("Database schema applied")
	}
	logger.Info("Database connection established")
	store := postgres.NewStore(db)
	return store, store, nil
}

func radiusTable(c config.DiscoveryConfig) discovery.RadiusTable {
	t := discovery.RadiusTable{
		DefaultKm:  c.DefaultRadiusKm,
		MaxKm:      c.MaxRadiusKm,
		MinResults: c.MinResults,
		Sports:     make(map[string]discovery.SportRadius, len(c.Sports)),
	}
	for sport, r := range c.Sports {
		t.Sports[sport] = discovery.SportRadius{RadiusKm: r.RadiusKm, ExpandedKm: r.ExpandedKm}
	}
	return t
}
