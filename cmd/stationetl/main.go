// Command stationetl runs one ingestion pass over the configured climate
// archives: it resolves the regional station lists, fetches and stages the
// raw archive files, and turns them into canonical per-station-year CSV
// partitions. Optional sinks (Kafka, Postgres) and an object-store mirror
// are enabled through the environment; the dataset, step, and force flags
// scope a single run.
//
// Usage:
//
//	stationetl -dataset gsod -step all
//	stationetl -dataset all -step download
//	stationetl -dataset ghcnd -step process -force
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/wxarchive/station-etl/internal/adapter/archive"
	httpadapter "github.com/wxarchive/station-etl/internal/adapter/http"
	kafkaadapter "github.com/wxarchive/station-etl/internal/adapter/kafka"
	"github.com/wxarchive/station-etl/internal/adapter/objectstore"
	"github.com/wxarchive/station-etl/internal/adapter/postgres"
	"github.com/wxarchive/station-etl/internal/config"
	"github.com/wxarchive/station-etl/internal/domain"
	"github.com/wxarchive/station-etl/internal/faillog"
	"github.com/wxarchive/station-etl/internal/observability"
	"github.com/wxarchive/station-etl/internal/output"
	"github.com/wxarchive/station-etl/internal/pipeline"
	"github.com/wxarchive/station-etl/internal/registry"
	"github.com/wxarchive/station-etl/internal/stations"
)

func main() {
	datasetFlag := flag.String("dataset", "all", "dataset to ingest: ghcnd, gsod, isd_lite, normals_daily, a comma list, or all")
	stepFlag := flag.String("step", "all", "how far to take each unit: download, process, or all")
	force := flag.Bool("force", false, "refetch staged payloads and rewrite existing partitions")
	flag.Parse()

	os.Exit(run(*datasetFlag, *stepFlag, *force))
}

func run(datasetFlag, stepFlag string, force bool) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		logger.Error("failed to load registry", "error", err)
		return 1
	}

	step, err := pipeline.ParseStep(stepFlag)
	if err != nil {
		logger.Error("invalid -step", "error", err)
		return 2
	}
	datasets, err := selectDatasets(reg, datasetFlag)
	if err != nil {
		logger.Error("invalid -dataset", "error", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := archive.NewClient(reg, cfg.FetchTimeout, cfg.FetchAttempts, cfg.FetchBackoff, cfg.UserAgent, metrics, logger)

	// Origin for raw payloads, optionally fronted by the mirror.
	var origin archive.Fetcher = client
	if cfg.MirrorEnabled() {
		mcfg := objectstore.Config{
			Endpoint:  cfg.MirrorEndpoint,
			Bucket:    cfg.MirrorBucket,
			AccessKey: cfg.MirrorAccessKey,
			SecretKey: cfg.MirrorSecretKey,
			UseSSL:    cfg.MirrorUseSSL,
		}
		mc, err := objectstore.NewMinIOClient(mcfg)
		if err != nil {
			logger.Error("failed to build mirror client", "error", err)
			return 1
		}
		if err := objectstore.CheckBucket(ctx, mc, mcfg); err != nil {
			logger.Error("mirror bucket check failed", "error", err)
			return 1
		}
		origin = archive.NewFallback(objectstore.NewMirror(mc, mcfg.Bucket, reg, logger), client, logger)
		logger.Info("object-store mirror enabled", "endpoint", cfg.MirrorEndpoint, "bucket", cfg.MirrorBucket)
	}

	fetcher := archive.NewCachingFetcher(origin, archive.NewStore(cfg.RawDir()), reg, force, metrics, logger)
	stationSvc := stations.NewService(cfg.StationsDir(), reg, client, logger)
	if force {
		// A forced run distrusts everything persisted, station lists
		// included.
		for _, inventory := range inventoriesFor(reg, datasets) {
			if _, err := stationSvc.Refresh(ctx, inventory); err != nil {
				logger.Error("station inventory refresh failed", "inventory", inventory, "error", err)
				return 1
			}
		}
	}
	writer := output.NewWriter(cfg.ProcessedDir(), reg)
	failures := faillog.New(cfg.FailureLogPath(), metrics)

	coord, err := pipeline.New(reg, stationSvc, fetcher, writer, failures, logger, metrics, cfg.Workers, force)
	if err != nil {
		logger.Error("failed to build coordinator", "error", err)
		return 1
	}

	if cfg.KafkaEnabled() {
		kw := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, metrics, logger)
		defer func() {
			if err := kw.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		coord.AddSink("kafka", kw)
		logger.Info("kafka publisher enabled", "topic", cfg.KafkaTopic)
	}
	if cfg.PostgresEnabled() {
		sink, err := postgres.NewSink(ctx, cfg.PostgresDSN, cfg.PostgresTable, cfg.PostgresBatch, metrics, logger)
		if err != nil {
			logger.Error("failed to open postgres sink", "error", err)
			return 1
		}
		defer sink.Close()
		coord.AddSink("postgres", sink)
		logger.Info("postgres sink enabled", "table", cfg.PostgresTable)
	}

	// Metrics and status endpoints; off unless METRICS_ADDR is set, since a
	// scheduled run has nothing to scrape between invocations.
	var srv *httpadapter.Server
	if cfg.MetricsAddr != "" {
		srv = httpadapter.NewServer(cfg.MetricsAddr, runReporter{coord}, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	summary, runErr := coord.Run(ctx, datasets, step)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("run aborted", "error", runErr)
		return 1
	}
	if summary.Failed > 0 {
		logger.Warn("run completed with failures",
			"failed", summary.Failed,
			"failure_log", failures.Path(),
		)
	}
	return 0
}

// runReporter adapts the coordinator's progress to the status endpoint.
type runReporter struct {
	coord *pipeline.Coordinator
}

func (r runReporter) RunStatus() httpadapter.RunStatus {
	p := r.coord.Progress()
	return httpadapter.RunStatus{
		RunID:     p.RunID,
		Active:    p.Active,
		Step:      p.Step,
		Units:     p.Units,
		Completed: p.Completed,
		Failed:    p.Failed,
	}
}

// inventoriesFor returns the distinct station inventories the selected
// datasets draw from, in flag order.
func inventoriesFor(reg *registry.Registry, datasets []domain.Dataset) []string {
	seen := make(map[string]bool, len(datasets))
	var inventories []string
	for _, name := range datasets {
		spec, err := reg.Dataset(name)
		if err != nil || seen[spec.Inventory] {
			continue
		}
		seen[spec.Inventory] = true
		inventories = append(inventories, spec.Inventory)
	}
	return inventories
}

// selectDatasets resolves the -dataset flag: "all", one name, or a comma
// list.
func selectDatasets(reg *registry.Registry, flagValue string) ([]domain.Dataset, error) {
	if flagValue == "" || flagValue == "all" {
		return reg.DatasetNames(), nil
	}
	var datasets []domain.Dataset
	for _, part := range strings.Split(flagValue, ",") {
		name, err := domain.ParseDataset(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		if _, err := reg.Dataset(name); err != nil {
			return nil, err
		}
		datasets = append(datasets, name)
	}
	return datasets, nil
}
