// cmd/agent/main.go
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nodeagent/internal/common/config"
	"nodeagent/internal/connection"
	"nodeagent/internal/dispatch"
	"nodeagent/internal/executor"
	"nodeagent/internal/logging"
	"nodeagent/internal/metrics"
	"nodeagent/internal/reporter"
)

func main() {
	configPath := flag.String("config", "", "path to agent.toml (default: AGENT_CONFIG or /app/agent.toml)")
	flag.Parse()

	// Initialize configuration first so logging can go where the
	// operator pointed it.
	cfg, err := config.LoadAgentConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize persistent file logging
	logger, err := logging.Setup(cfg.LogDir)
	if err != nil {
		log.Printf("Warning: Failed to setup file logging: %v", err)
	} else {
		defer logger.Close()
	}

	log.Printf("Starting agent %s (server: %s, scripts: %s)", cfg.AgentID, cfg.ServerURL, cfg.ScriptsDir)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Optional Prometheus listener
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			log.Printf("Metrics listener on %s", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("Metrics listener failed: %v", err)
			}
		}()
	}

	// Wire the pipeline: connection -> dispatcher -> executor, with all
	// replies flowing back through the reporter onto the same socket.
	mgr := connection.NewManager(connection.Config{
		ServerURL:   cfg.ServerURL,
		AgentID:     cfg.AgentID,
		AccessCode:  cfg.AccessCode,
		Fingerprint: cfg.Fingerprint,
	})
	rep := reporter.New(cfg.AgentID, mgr)
	exe := executor.New(cfg.ScriptsDir, cfg.AgentID, rep)
	mgr.SetDispatcher(dispatch.New(rep, exe))

	runErr := make(chan error, 1)
	go func() {
		runErr <- mgr.Run(ctx)
	}()

	select {
	case sig := <-shutdown:
		log.Printf("Received signal %v, shutting down", sig)
		cancel()
		mgr.Close()
		<-runErr
	case err := <-runErr:
		// The run loop only returns on its own for a fatal close or a
		// config-level problem; either way there is nothing to retry.
		if err != nil {
			log.Printf("Connection loop stopped: %v", err)
		}
	}

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsSrv.Shutdown(shutdownCtx)
	}

	log.Printf("Agent stopped")
}
