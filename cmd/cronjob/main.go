package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"pickup-backend/internal/config"
	"pickup-backend/internal/jobs"
	"pickup-backend/internal/logger"
	"pickup-backend/internal/notifier"
	"pickup-backend/internal/policy"
	"pickup-backend/internal/repository/postgres"
	"pickup-backend/internal/scheduler"
	"pickup-backend/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'advance-lifecycle', 'archive-finished', 'all')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		log.Fatalf("Cronjob runner requires the postgres driver, got %q", cfg.Database.Driver)
	}

	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting pickup cronjob runner...", "log_level", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port)
	db, err := postgres.Open(ctx, cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	store := postgres.NewStore(db)

	// No subscribers here. Status changes show up in the server's next snapshot.
	hub := notifier.NewHub(cfg.Notifier.SubscriberQueueSize)
	defer hub.Close()

	activities := service.NewActivityService(
		store,
		store,
		service.NewActivityGate(cfg.Coordinator.AcquireTimeout()),
		hub,
		policy.NewLockPolicy(cfg.Coordinator.ModifyLockWindow(), cfg.Coordinator.DeleteLockWindow()),
		service.Options{
			MaxCommitAttempts: cfg.Coordinator.MaxCommitAttempts,
			ArchiveGrace:      cfg.Coordinator.ArchiveGrace(),
		},
	)

	jobRunner := jobs.NewJobRunner(activities, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		if err := runJobOnce(jobRunner, *runOnce); err != nil {
			logger.Error("Job execution failed", "job", *runOnce, "error", err)
			os.Exit(1)
		}
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	cronScheduler, err := scheduler.NewScheduler(jobRunner)
	if err != nil {
		log.Fatalf("Failed to initialize scheduler: %v", err)
	}

	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	<-ctx.Done()

	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) error {
	switch jobName {
	case "advance-lifecycle":
		return jobRunner.AdvanceLifecycle()
	case "archive-finished":
		return jobRunner.ArchiveFinished()
	case "all":
		return jobRunner.RunAll()
	default:
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - advance-lifecycle\n")
		fmt.Printf("  - archive-finished\n")
		fmt.Printf("  - all\n")
		return fmt.Errorf("unknown job name %q", jobName)
	}
}
