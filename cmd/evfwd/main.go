package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"evfwd/internal/config"
	"evfwd/internal/deadletter"
	"evfwd/internal/log"
	"evfwd/internal/metrics"
	"evfwd/internal/pipeline"
	"evfwd/internal/report"
	"evfwd/internal/stream"
	"evfwd/internal/upload"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	mode := flag.String("mode", "", "run mode: live|smoke-test (overrides config)")
	flag.Parse()

	loadDotEnv()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.GetLogger().Fatal("load config", log.Error(err))
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if err := cfg.Validate(); err != nil {
		log.GetLogger().Fatal("invalid config", log.Error(err))
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.GetLogger().Fatal("init logger", log.Error(err))
	}

	code, err := run(cfg)
	if err != nil {
		log.GetLogger().Fatal("evfwd failed", log.Error(err))
	}
	os.Exit(code)
}

// loadDotEnv loads config/*.env without overriding the real environment.
func loadDotEnv() {
	files, _ := filepath.Glob(filepath.Join("config", "*.env"))
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			log.GetLogger().Warn("load env file", log.String("file", f), log.Error(err))
		}
	}
}

func run(cfg config.Config) (int, error) {
	logger := log.GetLogger()
	logger.Info("starting evfwd",
		log.String("mode", cfg.Mode),
		log.String("environment", cfg.Environment),
		log.String("topic", cfg.Stream.Topic),
		log.Int("workers", cfg.Pipeline.Workers),
		log.Int("bulk_size", cfg.Pipeline.BulkSize))

	mreg := metrics.NewRegistry()
	sinks, closeSinks, err := buildReporters(cfg)
	if err != nil {
		return 1, err
	}
	defer closeSinks()

	api := upload.NewHTTPClient(cfg.Ingestion.BaseURL, cfg.Ingestion.APIKey, cfg.Ingestion.APISecret, cfg.Ingestion.Timeout.Std())
	proc := pipeline.NewProcessor(pipeline.ProcessorConfig{
		Dispatcher:  upload.NewDispatcher(api),
		Reporter:    sinks,
		Environment: cfg.Env(),
		Metrics:     mreg,
		Logger:      logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Mode == config.ModeSmokeTest {
		ok, err := pipeline.SmokeTest(ctx, proc, os.Stdout)
		if err != nil {
			return 1, fmt.Errorf("smoke test: %w", err)
		}
		if !ok {
			return 1, nil
		}
		return 0, nil
	}

	srv := serveMetrics(cfg.Metrics.Addr, mreg)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	src, err := openSource(cfg)
	if err != nil {
		return 1, err
	}
	defer src.Close()

	runner := pipeline.NewRunner(proc, pipeline.RunnerConfig{
		Workers:  cfg.Pipeline.Workers,
		BulkSize: cfg.Pipeline.BulkSize,
		BulkWait: cfg.Pipeline.BulkWait.Std(),
	})
	if err := runner.Run(ctx, src); err != nil {
		return 1, fmt.Errorf("run: %w", err)
	}
	logger.Info("evfwd stopped")
	return 0, nil
}

func openSource(cfg config.Config) (stream.Source, error) {
	kc := stream.KafkaConfig{
		Brokers:  cfg.Stream.Brokers,
		Topic:    cfg.Stream.Topic,
		GroupID:  cfg.Stream.GroupID,
		ClientID: cfg.Stream.ClientID,
	}
	if cfg.Stream.Client == config.ClientConfluent {
		src, err := stream.NewConfluentSource(kc)
		if err != nil {
			return nil, fmt.Errorf("open confluent source: %w", err)
		}
		return src, nil
	}
	return stream.NewKafkaSource(kc), nil
}

// buildReporters always logs outcomes and adds the optional sinks that are
// configured. The returned func releases them.
func buildReporters(cfg config.Config) (report.Reporter, func(), error) {
	rs := []report.Reporter{report.NewLogReporter(log.GetLogger())}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Results.FileDir != "" {
		fw, err := report.NewFileWriter(cfg.Results.FileDir, "outcomes.jsonl")
		if err != nil {
			return nil, func() {}, fmt.Errorf("init result file: %w", err)
		}
		rs = append(rs, fw)
	}
	if cfg.Results.KafkaTopic != "" && len(cfg.Stream.Brokers) > 0 {
		kw := report.NewKafkaWriter(strings.Join(cfg.Stream.Brokers, ","), cfg.Results.KafkaTopic)
		closers = append(closers, func() { _ = kw.Close() })
		rs = append(rs, kw)
	}
	if cfg.Results.PostgresDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pw, err := report.ConnectPostgres(ctx, cfg.Results.PostgresDSN)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("init result table: %w", err)
		}
		closers = append(closers, pw.Close)
		rs = append(rs, pw)
	}
	if cfg.DeadLetter.Dir != "" {
		ds, err := deadletter.NewPebbleStore(cfg.DeadLetter.Dir)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("init dead-letter store: %w", err)
		}
		closers = append(closers, func() { _ = ds.Close() })
		rs = append(rs, report.NewDeadLetterWriter(ds))
	}
	return report.NewMulti(rs...), closeAll, nil
}

func serveMetrics(addr string, mreg *metrics.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mreg.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.GetLogger().Error("metrics server", log.Error(err))
		}
	}()
	return srv
}
