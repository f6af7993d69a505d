package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/cadehq/cadence/internal/adapters/duckdb"
	"github.com/cadehq/cadence/internal/adapters/icsmirror"
	appconfig "github.com/cadehq/cadence/internal/config"
	"github.com/cadehq/cadence/internal/core/services"
	"github.com/cadehq/cadence/pkg/api"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting cadence engine")

	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if err := run(logger, *configPath); err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	conf, err := appconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dbPath := conf.DBPath
	if env := os.Getenv("CADENCE_DB_PATH"); env != "" {
		dbPath = env
	}

	repo, err := duckdb.NewRepository(dbPath)
	if err != nil {
		return fmt.Errorf("failed to init repository: %w", err)
	}
	defer repo.Close()

	prefs := appconfig.NewPreferences(conf)
	eventBus := services.NewEventBus(logger)
	materializer := services.NewMaterializer(logger, repo, prefs, eventBus)
	regenerator := services.NewRegenerationCoordinator(logger, repo, prefs, materializer, eventBus, conf.HorizonDays)
	lifecycle := services.NewLifecycleController(logger, repo, materializer, eventBus)
	scheduler := services.NewWindowScheduler(logger, repo, prefs, materializer, eventBus, conf.AdvanceCron, conf.HorizonDays, conf.RetentionDays)

	apiServer := api.NewServer(logger, repo, prefs, materializer, regenerator, lifecycle, eventBus)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	httpServer := &http.Server{
		Addr:    conf.Listen,
		Handler: c.Handler(apiServer.Handler()),
	}

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Window scheduler loop
	g.Go(func() error {
		return scheduler.Run(gCtx)
	})

	// 2. External calendar mirror (best effort)
	if conf.Mirror.Enabled {
		mirror := icsmirror.New(logger, repo, eventBus, conf.Mirror.Path)
		g.Go(func() error {
			return mirror.Run(gCtx)
		})
	}

	// 3. API server
	g.Go(func() error {
		logger.Info("starting api server", "addr", conf.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	// 4. Graceful shutdown for the API server
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
