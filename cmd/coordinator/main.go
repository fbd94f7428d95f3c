// Command coordinator runs GridDFS's coordinator: the metadata authority
// and the publisher side of block placement. It owns the bbolt metadata
// store, consumes storage confirmations and heartbeats off the bus, and
// serves the client-facing HTTP API.
//
// Configuration:
//   - GRIDDFS_CONFIG: path to a YAML config file (optional)
//   - GRIDDFS_NATS_URL, GRIDDFS_METADATA_PATH, GRIDDFS_COORDINATOR_LISTEN_ADDR, ...
//     (see pkg/config for the full list; environment overrides the file)
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/griddfs/griddfs/internal/coordinator"
	"github.com/griddfs/griddfs/internal/metastore"
	"github.com/griddfs/griddfs/internal/transport/natsbus"
	"github.com/griddfs/griddfs/pkg/config"
	"github.com/griddfs/griddfs/pkg/logx"
	"github.com/griddfs/griddfs/pkg/metrics"
)

func main() {
	cfg, err := config.Load(os.Getenv("GRIDDFS_CONFIG"))
	if err != nil {
		logx.Logger.Fatal().Err(err).Msg("load config")
	}
	logx.Init(logx.Config{Level: logx.Level(config.Getenv("GRIDDFS_LOG_LEVEL", "info"))})
	log := logx.WithComponent("coordinator")

	store, err := metastore.Open(cfg.MetadataPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.MetadataPath).Msg("open metadata store")
	}
	defer store.Close()

	bus, err := natsbus.Connect(cfg.NATSURL)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.NATSURL).Msg("connect to bus")
	}
	defer bus.Close()

	srv := coordinator.New(store, bus, coordinator.Config{
		BlockSize:         cfg.BlockSize,
		MaxUploadSize:     cfg.MaxUploadSize,
		HeartbeatInterval: cfg.HeartbeatInterval,
		SessionDeadline:   cfg.SessionDeadline,
	}, log)

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	go srv.RunSessionSweepLoop(sweepCtx, cfg.SessionDeadline)
	defer cancelSweep()

	confirmations := coordinator.NewConfirmationConsumer(srv, log)
	stopConfirmations, err := confirmations.Start(bus)
	if err != nil {
		log.Fatal().Err(err).Msg("start confirmation consumer")
	}
	defer stopConfirmations()

	heartbeats := coordinator.NewHeartbeatConsumer(srv, log)
	stopHeartbeats, err := heartbeats.Start(bus)
	if err != nil {
		log.Fatal().Err(err).Msg("start heartbeat consumer")
	}
	defer stopHeartbeats()

	registry := prometheus.NewRegistry()
	metrics.RegisterCoordinator(registry)

	mux := coordinator.NewRouter(srv, log)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{
		Addr:              cfg.CoordinatorListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.CoordinatorListenAddr).Msg("coordinator listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	log.Info().Msg("coordinator stopped")
}
