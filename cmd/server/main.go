package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prudhvinik1/edgeledger/internal/config"
	"github.com/prudhvinik1/edgeledger/internal/connectivity"
	"github.com/prudhvinik1/edgeledger/internal/database"
	"github.com/prudhvinik1/edgeledger/internal/handlers"
	"github.com/prudhvinik1/edgeledger/internal/models"
	"github.com/prudhvinik1/edgeledger/internal/repositories"
	"github.com/prudhvinik1/edgeledger/internal/services"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := config.NewLogger(cfg.LogLevel)

	// Money fields go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	schema, err := models.LoadSchemaFile(cfg.MirrorSchemaFile)
	if err != nil {
		log.WithError(err).Fatal("Failed to load mirror schema")
	}

	// Local mirror
	db, err := database.NewSQLite(ctx, cfg.MirrorPath, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open local mirror")
	}
	defer db.Close()

	store, err := repositories.NewSQLiteLocalStore(ctx, db, schema)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize local mirror")
	}

	// Remote backend
	var remote repositories.RemoteGateway
	switch cfg.RemoteDriver {
	case config.RemoteDriverMemory:
		remote = repositories.NewMemoryRemoteGateway()
	default:
		postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to create postgres pool")
		}
		defer postgresPool.Close()
		remote = repositories.NewPostgresRemoteGateway(postgresPool, schema)
	}

	// Connectivity
	monitor := connectivity.NewMonitor(
		connectivity.InitialState(ctx, remote, cfg.SyncRemoteTimeout),
		cfg.BannerDuration,
		log,
	)
	prober := connectivity.NewProber(remote, monitor, cfg.ConnectivityProbeInterval, cfg.SyncRemoteTimeout, log)

	// Services
	failures := services.NewFailureLog(services.DefaultFailureLogSize, log)
	engine := services.NewSyncEngine(store, remote, failures, cfg.SyncRemoteTimeout, monitor.IsOnline, log)
	records := services.NewRecordService(store, remote, cfg.VATRate, log)
	records.OnWrite(engine.Kick)
	engine.Kick()
	reports := services.NewReportService(store, remote, services.ReportOptions{
		PreferRemote: cfg.ReportsPreferRemote,
		VATRate:      cfg.VATRate,
		Location:     cfg.ReportLocation,
		Online:       monitor.IsOnline,
	}, log)

	var presence *services.PresenceService
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.WithError(err).Warn("Presence disabled: redis unavailable")
		} else {
			defer redisClient.Close()
			presence = services.NewPresenceService(
				repositories.NewRedisPresenceRepository(redisClient),
				records.PendingCount,
				cfg.NodeID,
				log,
			)
			monitor.OnChange(func(_, to connectivity.State) {
				presence.PublishQuietly(context.Background(), to)
			})
			engine.OnDrained(func(services.DrainResult) {
				presence.PublishQuietly(context.Background(), monitor.State())
			})
			presence.PublishQuietly(ctx, monitor.State())
		}
	}

	// Initialize HTTP Server
	router := handlers.NewRouter(
		handlers.NewStatusHandler(monitor, records, presence, cfg.NodeID, log),
		handlers.NewRecordHandler(records, log),
		handlers.NewSyncHandler(engine, records, failures, log),
		handlers.NewReportHandler(reports, log),
	)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return prober.Run(gctx) })
	g.Go(func() error { return engine.Run(gctx, monitor.Reconnected(), cfg.SyncInterval) })
	if presence != nil {
		g.Go(func() error { return presence.Run(gctx, services.PresenceRefreshInterval, monitor.State) })
	}
	g.Go(func() error {
		log.WithField("port", cfg.ServerPort).Info("Starting server")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if presence != nil {
			if err := presence.Withdraw(shutdownCtx); err != nil {
				log.WithError(err).Warn("Failed to withdraw presence")
			}
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("Server error")
	}
	log.Info("Server stopped gracefully")
}
