package main

import (
	"Go2FlowEval/internal/config"
	"Go2FlowEval/internal/engine/manager"
	"Go2FlowEval/internal/factory"
	"Go2FlowEval/internal/ingest/predcsv"
	"Go2FlowEval/internal/ingest/xmlflows"
	"Go2FlowEval/internal/metrics"
	"Go2FlowEval/internal/pkg/logger"
	"Go2FlowEval/internal/writer/csvout"
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "Go2FlowEval/internal/writer/amqppub"  // Registers the amqp writer
	_ "Go2FlowEval/internal/writer/chwriter" // Registers the clickhouse writer
	_ "Go2FlowEval/internal/writer/gobsnap"  // Registers the gob writer
	_ "Go2FlowEval/internal/writer/natspub"  // Registers the nats writer

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("flow-eval", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to the YAML config (default $"+config.EnvConfigPath+")")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: flow-eval [-config file] <flowFile> <predictionFile> <outputFile>\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() != 3 {
		fs.Usage()
		return 1
	}
	flowPath, predPath, outPath := fs.Arg(0), fs.Arg(1), fs.Arg(2)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	log := logger.NewWithWriter(stderr, cfg.Logging.Level, cfg.Logging.JSON)
	logger.SetDefault(log)

	loc, err := time.LoadLocation(cfg.Ingest.TimeZone)
	if err != nil {
		log.Error("invalid ingest.time_zone", slog.String("zone", cfg.Ingest.TimeZone), slog.Any("error", err))
		return 1
	}

	flowFile, err := os.Open(flowPath)
	if err != nil {
		log.Error("failed to open flow file", slog.Any("error", err))
		return 1
	}
	defer flowFile.Close()

	predFile, err := os.Open(predPath)
	if err != nil {
		log.Error("failed to open prediction file", slog.Any("error", err))
		return 1
	}
	defer predFile.Close()

	reg := prometheus.NewRegistry()
	collectors := metrics.New(cfg.Metrics.Namespace)
	if err := collectors.Register(reg); err != nil {
		log.Error("failed to register metrics", slog.Any("error", err))
		return 1
	}

	writers, err := factory.Create(cfg, log)
	if err != nil {
		log.Error("failed to create writers", slog.Any("error", err))
		return 1
	}

	mgr, err := manager.NewManager(cfg, csvout.New(outPath, cfg.Output.UnsetLabel), writers, collectors, log)
	if err != nil {
		log.Error("failed to create manager", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			log.Warn("failed to close writers", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flows := xmlflows.NewReader(bufio.NewReader(flowFile), xmlflows.Options{
		TimeLayout: cfg.Ingest.TimeLayout,
		Location:   loc,
	})
	rows := predcsv.NewReader(bufio.NewReader(predFile), predictionOptions(cfg))

	snap, err := mgr.Run(ctx, flows, rows)
	if err != nil {
		log.Error("evaluation failed", slog.Any("error", err))
		return 1
	}

	s := snap.Summary
	log.Info("evaluation complete",
		slog.String("run_id", snap.RunID),
		slog.Int("flows", s.Flows),
		slog.Int("tp", s.TruePositive),
		slog.Int("fp", s.FalsePositive),
		slog.Int("tn", s.TrueNegative),
		slog.Int("fn", s.FalseNegative),
		slog.Int("unset", s.UnsetAttack+s.UnsetNormal),
		slog.Float64("accuracy", s.Accuracy),
		slog.Float64("precision", s.Precision),
		slog.Float64("recall", s.Recall),
		slog.Float64("f1", s.F1))

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile, reg); err != nil {
			log.Error("failed to write metrics textfile", slog.Any("error", err))
			return 1
		}
	}
	return 0
}

func predictionOptions(cfg *config.Config) predcsv.Options {
	p := cfg.Predictions
	return predcsv.Options{
		ExpectedColumns: p.ExpectedColumns,
		Columns: predcsv.Columns{
			AddressA:  p.Columns.AddressA,
			AddressB:  p.Columns.AddressB,
			Protocol:  p.Columns.Protocol,
			PortA:     p.Columns.PortA,
			PortB:     p.Columns.PortB,
			Timestamp: p.Columns.Timestamp,
			Label:     p.Columns.Label,
		},
		Comma:      []rune(p.Comma)[0],
		SkipHeader: p.SkipHeader,
	}
}
