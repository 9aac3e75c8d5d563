// -----------------------------------------------------------------------
// Command crawlcored starts the crawl execution core's control-plane
// server: it wires a process-wide executor.Runtime over the
// badger-backed iteration and checkpoint stores, the event bus, and the
// metrics collector, then serves internal/server's HTTP and WebSocket
// surface until interrupted.
// -----------------------------------------------------------------------

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/crawlcore/internal/checkpoint"
	"github.com/ternarybob/crawlcore/internal/common"
	"github.com/ternarybob/crawlcore/internal/contentproc"
	"github.com/ternarybob/crawlcore/internal/eventbus"
	"github.com/ternarybob/crawlcore/internal/executor"
	"github.com/ternarybob/crawlcore/internal/fetch"
	"github.com/ternarybob/crawlcore/internal/iteration"
	"github.com/ternarybob/crawlcore/internal/metrics"
	"github.com/ternarybob/crawlcore/internal/planner"
	"github.com/ternarybob/crawlcore/internal/server"
	"github.com/ternarybob/crawlcore/internal/storage/badger"
)

var (
	configFile = flag.String("config", "", "path to a crawlcore.toml configuration file")
	listenAddr = flag.String("addr", "", "control-plane listen address (overrides config)")
)

func main() {
	flag.Parse()

	config, err := common.LoadRuntimeConfig(*configFile)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	if *listenAddr != "" {
		config.Server.ListenAddr = *listenAddr
	}

	logger := common.SetupLogger(config)
	logger.Info().Str("listen_addr", config.Server.ListenAddr).Msg("starting crawlcore control plane")

	db, err := badger.NewBadgerDB(logger, &badger.Config{
		Path:           config.Storage.BadgerPath,
		ResetOnStartup: config.Storage.ResetOnStartup,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open badger store")
	}
	defer db.Close()

	iterStorage := badger.NewIterationStorage(db, logger)
	iterStore := iteration.New(iterStorage)

	cpStorage := badger.NewCheckpointStorage(db, logger)
	cpStore, err := checkpoint.New(cpStorage, config.Storage.CheckpointDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open checkpoint store")
	}

	bus := eventbus.New(logger)
	metricsCollector := metrics.New()

	rt := executor.Runtime{
		Bus:         bus,
		Metrics:     metricsCollector,
		Iterations:  iterStore,
		Checkpoints: cpStore,
		Fetcher:     fetch.NewHTTPFetcher(),
		Processor:   contentproc.NewLinkDiscoverer(),
		Planner:     planner.New(),
		Clock:       common.RealClock{},
		Logger:      logger,
	}
	manager := executor.NewManager(rt)

	ws := server.NewWebSocketHandler(bus, logger)
	handler := server.New(manager, iterStore, cpStore, bus, ws, logger)

	mux := http.NewServeMux()
	handler.Routes(mux)

	httpServer := &http.Server{
		Addr:    config.Server.ListenAddr,
		Handler: mux,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("control-plane server failed")
		}
	}()

	logger.Info().Str("addr", config.Server.ListenAddr).Msg("control plane ready")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
	}
	common.Stop()
	fmt.Println("crawlcored stopped")
}
