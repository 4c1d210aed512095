package main

import (
	"Go2FlowEval/internal/api"
	"Go2FlowEval/internal/config"
	"Go2FlowEval/internal/pkg/logger"
	"Go2FlowEval/internal/query"
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configFile := flag.String("config", "", "path to the YAML config (default $"+config.EnvConfigPath+")")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	slogger := logger.New(cfg.Logging.Level, cfg.Logging.JSON)
	logger.SetDefault(slogger)

	// Initialize querier for the configured source
	querier, err := newQuerier(cfg)
	if err != nil {
		log.Fatalf("Failed to create querier: %v", err)
	}
	defer querier.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handler := api.NewHandler(querier, reg, cfg.Output.UnsetLabel, slogger)
	server := &http.Server{
		Addr:              cfg.API.ListenAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var grpcServer *api.GRPCServer
	if cfg.API.GRPCAddr != "" {
		grpcServer, err = api.NewGRPCServer(cfg.API.GRPCAddr)
		if err != nil {
			log.Fatalf("Failed to create gRPC server: %v", err)
		}
		go func() {
			log.Printf("gRPC health server starting on %s", grpcServer.Address())
			if err := grpcServer.Start(); err != nil {
				log.Printf("gRPC server stopped: %v", err)
			}
		}()
	}

	go func() {
		log.Printf("API server starting on %s (source: %s)", server.Addr, cfg.API.Source)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("API server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(ctx)
	}
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("API server exited.")
}

func newQuerier(cfg *config.Config) (query.Querier, error) {
	switch cfg.API.Source {
	case "clickhouse":
		chCfg := cfg.API.ClickHouse
		// Fall back to the first enabled ClickHouse writer.
		if chCfg.Host == "" {
			for _, def := range cfg.Output.Writers {
				if def.Enabled && def.Type == "clickhouse" {
					chCfg = def.ClickHouse
					break
				}
			}
		}
		if chCfg.Host == "" {
			return nil, errors.New("api.source is clickhouse but no ClickHouse connection is configured")
		}
		return query.NewClickHouseQuerier(chCfg)
	default:
		return query.NewGobQuerier(cfg.API.SnapshotRoot), nil
	}
}
