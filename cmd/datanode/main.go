// Command datanode runs one GridDFS storage node: it holds blocks on disk,
// independently decides whether to accept each block offered to it, and
// emits periodic heartbeats to the coordinator.
//
// Configuration:
//   - NODE_ID: unique node identifier (required)
//   - NODE_ADDR: address advertised in heartbeats (required)
//   - GRIDDFS_CONFIG: path to a YAML config file (optional)
//   - GRIDDFS_STORAGE_ROOT, GRIDDFS_STORAGE_CAPACITY, GRIDDFS_NATS_URL, ...
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

	"github.com/griddfs/griddfs/internal/blockstore"
	"github.com/griddfs/griddfs/internal/datanode"
	"github.com/griddfs/griddfs/internal/placement"
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

	nodeID := config.MustGetenv("NODE_ID", func(format string, args ...any) { logx.Logger.Fatal().Msgf(format, args...) })
	address := config.MustGetenv("NODE_ADDR", func(format string, args ...any) { logx.Logger.Fatal().Msgf(format, args...) })
	log := logx.WithNode(nodeID)

	store, err := blockstore.NewFileStore(cfg.StorageRoot)
	if err != nil {
		log.Fatal().Err(err).Str("root", cfg.StorageRoot).Msg("open block store")
	}

	policy := placement.NewDefaultPolicy(cfg.StorageAcceptProbability, cfg.StorageMinFreeRatio)
	node := datanode.New(nodeID, address, store, policy, cfg.StorageCapacity, log)

	if err := node.Recover(); err != nil {
		log.Fatal().Err(err).Msg("recover block store")
	}
	used, capacity := node.Usage()
	log.Info().Int64("used", used).Int64("capacity", capacity).Msg("recovered local blocks")

	bus, err := natsbus.Connect(cfg.NATSURL)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.NATSURL).Msg("connect to bus")
	}
	defer bus.Close()

	workers := datanode.NewWorkers(node, bus, log)

	stopStore, err := workers.StartStoreConsumer()
	if err != nil {
		log.Fatal().Err(err).Msg("start store consumer")
	}
	defer stopStore()

	stopRequest, err := workers.StartRequestConsumer()
	if err != nil {
		log.Fatal().Err(err).Msg("start request consumer")
	}
	defer stopRequest()

	stopDelete, err := workers.StartDeleteConsumer()
	if err != nil {
		log.Fatal().Err(err).Msg("start delete consumer")
	}
	defer stopDelete()

	ctx, cancelHeartbeat := context.WithCancel(context.Background())
	go workers.RunHeartbeatLoop(ctx, cfg.HeartbeatInterval)

	registry := prometheus.NewRegistry()
	metrics.RegisterDataNode(registry)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsMux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	metricsAddr := config.Getenv("NODE_METRICS_ADDR", ":9100")
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", metricsAddr).Msg("data node metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics http listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	cancelHeartbeat()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info().Msg("data node stopped")
}
