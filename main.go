package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"rankflow/archive"
	"rankflow/collector"
	"rankflow/config"
	"rankflow/logger"
	"rankflow/provider"
	_ "rankflow/provider/coupang"
	"rankflow/store"
	"rankflow/sweeper"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	mode := flag.String("mode", "daemon", "Run mode: collect, sweep or daemon")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Rankflow.Name,
		"version": cfg.Rankflow.Version,
		"env":     config.AppEnvironment(),
		"mode":    *mode,
	}).Info("starting rankflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace)
	}
	logger.StartReport(ctx, log, cfg.Metrics.GetReportInterval())

	st, err := openStore(cfg, log)
	if err != nil {
		log.WithError(err).Error("failed to open ranking store")
		os.Exit(1)
	}
	defer st.Close()

	providers, err := provider.All(cfg)
	if err != nil {
		log.WithError(err).Error("failed to build providers")
		os.Exit(1)
	}
	log.WithFields(logger.Fields{"providers": len(providers)}).Info("providers ready")

	var archiver sweeper.Archiver
	if cfg.Storage.S3.Enabled {
		s3arch, err := archive.NewS3Archiver(cfg)
		if err != nil {
			log.WithError(err).Error("failed to create S3 archiver")
			os.Exit(1)
		}
		archiver = s3arch
	} else {
		log.WithComponent("main").Info("S3 archival disabled; sweeps will delete without archiving")
	}

	coll := collector.New(cfg, providers, st)
	sw := sweeper.New(st, cfg.Sweeper.GetHorizon(), archiver)

	switch *mode {
	case "collect":
		if _, err := coll.RunCycle(ctx); err != nil {
			log.WithError(err).Error("collection cycle failed")
			os.Exit(1)
		}
	case "sweep":
		if _, err := sw.Run(ctx); err != nil {
			log.WithError(err).Error("retention sweep failed")
			os.Exit(1)
		}
	case "daemon":
		runDaemon(ctx, cancel, log, cfg, coll, sw)
	default:
		log.WithFields(logger.Fields{"mode": *mode}).Error("unknown run mode")
		os.Exit(1)
	}

	log.Info("rankflow stopped")
}

// openStore connects to Postgres and applies migrations. With no DSN
// configured it falls back to the in-memory store, which is only useful for
// local development.
func openStore(cfg *config.Config, log *logger.Log) (store.Store, error) {
	dsn := cfg.Storage.Postgres.DSN
	if dsn == "" {
		log.WithComponent("main").Warn("no postgres dsn configured, using in-memory store")
		return store.NewMemoryStore(), nil
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if err := store.RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return store.NewPostgresStore(db), nil
}

func runDaemon(ctx context.Context, cancel context.CancelFunc, log *logger.Log, cfg *config.Config, coll *collector.Collector, sw *sweeper.Sweeper) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		coll.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sw.Start(ctx, cfg.Sweeper.GetInterval())
	}()

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}
}
