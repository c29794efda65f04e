package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/chatd/internal/ingress"
	"github.com/adred-codev/chatd/internal/monitoring"
	"github.com/adred-codev/chatd/internal/relay"
	"github.com/adred-codev/chatd/internal/server"
)

func main() {
	var (
		debug = flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	)
	flag.Parse()

	// Load configuration from .env file and environment variables
	cfg, err := LoadConfig(nil) // Pass nil for now, structured logger created after
	if err != nil {
		os.Stderr.WriteString("Failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Override debug mode if flag set
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := monitoring.NewLogger(monitoring.LoggerConfig{
		Level:  monitoring.LogLevel(cfg.LogLevel),
		Format: monitoring.LogFormat(cfg.LogFormat),
		Out:    os.Stdout,
	})

	// automaxprocs sets GOMAXPROCS from container CPU limits at init
	logger.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("Runtime configured")
	cfg.LogConfig(logger)

	// Federation relay: NATS when a URL is configured, otherwise standalone.
	var rel relay.Relay
	if cfg.RelayURL != "" {
		natsRelay, err := relay.DialNATS(relay.NATSConfig{
			URL:    cfg.RelayURL,
			Logger: logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to relay")
		}
		defer natsRelay.Close()
		rel = natsRelay
	} else {
		logger.Info().Msg("No relay configured, running standalone")
	}

	srv, err := server.New(server.Config{
		ServerID:      cfg.ServerID,
		Secret:        []byte(cfg.RelaySecret),
		JournalPath:   cfg.JournalPath,
		RelayRefresh:  cfg.RelayRefresh,
		RelayPageSize: cfg.RelayPageSize,
	}, rel, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create server")
	}
	srv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter := ingress.NewRateLimiter(ingress.RateLimiterConfig{
		IPBurst:     cfg.ConnBurstPerIP,
		IPRate:      cfg.ConnRatePerIP,
		GlobalBurst: cfg.ConnBurstGlobal,
		GlobalRate:  cfg.ConnRateGlobal,
		Logger:      logger,
	})
	defer limiter.Stop()

	tcpListener := ingress.NewTCPListener(cfg.Addr, srv.HandleConnection, limiter, logger)
	go func() {
		if err := tcpListener.Run(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Protocol listener failed")
		}
	}()

	if cfg.WSAddr != "" {
		wsListener := ingress.NewWSListener(cfg.WSAddr, srv.HandleConnection, limiter, logger)
		go func() {
			if err := wsListener.Run(ctx); err != nil {
				logger.Fatal().Err(err).Msg("WebSocket listener failed")
			}
		}()
	}

	// Ops endpoints: Prometheus metrics and liveness.
	opsMux := http.NewServeMux()
	opsMux.HandleFunc("/metrics", monitoring.HandleMetrics)
	opsMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	opsServer := &http.Server{Addr: cfg.OpsAddr, Handler: opsMux}
	go func() {
		logger.Info().Str("addr", cfg.OpsAddr).Msg("Ops endpoints listening")
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Ops listener failed")
		}
	}()

	sysmon, err := monitoring.NewSystemMonitor(cfg.MetricsInterval, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Process monitor unavailable")
	} else {
		go sysmon.Run(ctx)
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping ops listener")
	}

	srv.Shutdown()
}
