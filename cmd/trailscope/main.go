package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"trailscope/config"
	"trailscope/internal/analysis"
	"trailscope/internal/anomaly"
	"trailscope/internal/categories"
	"trailscope/internal/input/archive"
	inputredis "trailscope/internal/input/redis"
	"trailscope/internal/logger"
	"trailscope/internal/metrics"
	"trailscope/internal/output/spooljson"
	"trailscope/internal/output/summaryhttp"
	"trailscope/internal/output/summaryjson"
	"trailscope/internal/phases"
	"trailscope/internal/pipeline"
	"trailscope/internal/sessions"
	"trailscope/internal/velocity"
	"trailscope/pkg/models"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("trailscope.yml"); err == nil {
		return "trailscope.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "trailscope.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "trailscope.yml"
}

func applyDefaults(cfg *config.Config) {
	if cfg.Trailscope.Input.Redis.Addr == "" {
		cfg.Trailscope.Input.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Trailscope.Input.Redis.Key == "" {
		cfg.Trailscope.Input.Redis.Key = "audit_records"
	}
	if cfg.Trailscope.Input.Redis.BlockTimeout == 0 {
		cfg.Trailscope.Input.Redis.BlockTimeout = 5 * time.Second
	}

	if cfg.Trailscope.Pipeline.Workers <= 0 {
		cfg.Trailscope.Pipeline.Workers = 8
	}
	if cfg.Trailscope.Pipeline.BatchSize <= 0 {
		cfg.Trailscope.Pipeline.BatchSize = 1000
	}
	if cfg.Trailscope.Pipeline.FlushInterval <= 0 {
		cfg.Trailscope.Pipeline.FlushInterval = 2 * time.Second
	}

	if cfg.Trailscope.Spool.Dir == "" {
		cfg.Trailscope.Spool.Dir = "spool"
	}
	if cfg.Trailscope.Spool.MaxEvents <= 0 {
		cfg.Trailscope.Spool.MaxEvents = 100000
	}

	if cfg.Trailscope.Metrics.Enabled && cfg.Trailscope.Metrics.Addr == "" {
		cfg.Trailscope.Metrics.Addr = "127.0.0.1:9173"
	}

	if cfg.Trailscope.Output.File.Path == "" {
		cfg.Trailscope.Output.File.Path = "output/summary.json"
	}

	if cfg.Trailscope.Logging.Level == "" {
		cfg.Trailscope.Logging.Level = "info"
	}
}

func analysisConfig(cfg *config.Config) analysis.Config {
	a := cfg.Trailscope.Analysis
	return analysis.Config{
		Velocity: velocity.Config{
			SubSecondMax: a.Velocity.SubSecondMax,
			SecondsMax:   a.Velocity.SecondsMax,
		},
		Anomaly: anomaly.Config{
			BaselineDays: a.Anomaly.BaselineDays,
			Multiplier:   a.Anomaly.Multiplier,
		},
		Phases: phases.Config{
			ReconMaxEvents:      a.Phases.ReconMaxEvents,
			ReconMinHumanShare:  a.Phases.ReconMinHumanShare,
			MassMinEvents:       a.Phases.MassMinEvents,
			MassMinMachineShare: a.Phases.MassMinMachineShare,
			EscalationMinShare:  a.Phases.EscalationMinShare,
		},
		Sessions: sessions.Config{
			Gap:         a.Sessions.Gap,
			MinEvents:   a.Sessions.MinEvents,
			MaxSessions: a.Sessions.MaxSessions,
			MaxActions:  a.Sessions.MaxActions,
		},
		Categories:        categories.New(a.Categories.Version, a.Categories.Table),
		TopActions:        a.TopActions,
		TopAddresses:      a.TopAddresses,
		TopErrorCodes:     a.TopErrorCodes,
		HourlyMinEvents:   a.Hourly.MinEvents,
		MinSampleAdvisory: a.MinSampleAdvisory,
	}
}

func runIngest(args []string) {
	configArg := ""
	if len(args) > 0 {
		configArg = args[0]
	}

	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.Trailscope.Logging.Enabled, cfg.Trailscope.Logging.Level, cfg.Trailscope.Logging.File, cfg.Trailscope.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("Trailscope ingest starting")
	logger.Infof("Config loaded from: %s", configPath)

	consumer, err := inputredis.NewConsumer(inputredis.Config{
		Addr:         cfg.Trailscope.Input.Redis.Addr,
		Password:     cfg.Trailscope.Input.Redis.Password,
		DB:           cfg.Trailscope.Input.Redis.DB,
		Key:          cfg.Trailscope.Input.Redis.Key,
		BlockTimeout: cfg.Trailscope.Input.Redis.BlockTimeout,
	})
	if err != nil {
		logger.Errorf("Failed to create Redis consumer: %v", err)
		log.Fatalf("Failed to create Redis consumer: %v", err)
	}

	writer, err := spooljson.NewWriter(cfg.Trailscope.Spool.Dir, cfg.Trailscope.Spool.MaxEvents, metrics.SegmentsRotated.Inc)
	if err != nil {
		logger.Errorf("Failed to create spool writer: %v", err)
		log.Fatalf("Failed to create spool writer: %v", err)
	}

	if cfg.Trailscope.Metrics.Enabled {
		metrics.Serve(cfg.Trailscope.Metrics.Addr)
	}

	pipe := pipeline.NewRedisIngestPipeline(
		consumer,
		writer,
		cfg.Trailscope.Pipeline.Workers,
		cfg.Trailscope.Pipeline.BatchSize,
		cfg.Trailscope.Pipeline.FlushInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := pipe.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("Pipeline error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	cancel()
	time.Sleep(1 * time.Second)

	if err := pipe.Close(); err != nil {
		logger.Errorf("Error closing pipeline: %v", err)
	}

	logger.Infof("Trailscope ingest stopped")
}

func runAnalyze(args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	configArg := fs.String("config", "", "Config file path")
	inputArg := fs.String("input", "", "Comma-separated archive files or directories (overrides config)")
	outputArg := fs.String("output", "", "Summary output path, or - for stdout (overrides config)")
	shardsArg := fs.Int("shards", 1, "Reduce archive files in N independent shards before merging")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	configPath := findConfigFile(*configArg)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		// Analysis can run purely from flags.
		cfg = &config.Config{}
		if *inputArg == "" {
			log.Fatalf("Failed to load config and no -input given: %v", err)
		}
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.Trailscope.Logging.Enabled, cfg.Trailscope.Logging.Level, cfg.Trailscope.Logging.File, cfg.Trailscope.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	paths := cfg.Trailscope.Input.Archive.Paths
	if strings.TrimSpace(*inputArg) != "" {
		paths = splitPaths(*inputArg)
	}
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "no archive inputs: set input.archive.paths or pass -input")
		return 2
	}

	outputPath := cfg.Trailscope.Output.File.Path
	if *outputArg != "" {
		outputPath = *outputArg
	}

	start := time.Now()
	summary, err := runAnalysis(paths, *shardsArg, analysisConfig(cfg))
	if err != nil {
		var empty *models.EmptyDatasetError
		if errors.As(err, &empty) {
			fmt.Fprintf(os.Stderr, "no analyzable events: %v\n", empty)
			return 1
		}
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		return 1
	}

	if err := summaryjson.Write(outputPath, summary); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write summary: %v\n", err)
		return 1
	}

	if cfg.Trailscope.Output.HTTP.URL != "" {
		w, err := summaryhttp.NewWriter(summaryhttp.Config{
			URL:     cfg.Trailscope.Output.HTTP.URL,
			Timeout: cfg.Trailscope.Output.HTTP.Timeout,
			Headers: cfg.Trailscope.Output.HTTP.Headers,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create summary HTTP writer: %v\n", err)
			return 1
		}
		if err := w.WriteSummary(summary); err != nil {
			fmt.Fprintf(os.Stderr, "failed to push summary: %v\n", err)
			return 1
		}
		logger.Infof("Summary pushed to %s", cfg.Trailscope.Output.HTTP.URL)
	}

	fmt.Printf("analyzed events=%d skipped=%d identities=%d windows=%d phases=%d elapsed=%s output=%s\n",
		summary.Statistics.TotalEvents,
		summary.Statistics.SkippedEvents,
		summary.Statistics.UniqueIdentities,
		len(summary.AnomalyWindows),
		len(summary.Phases),
		time.Since(start).Round(time.Millisecond),
		outputPath,
	)
	return 0
}

// runAnalysis reduces the archives sequentially, or in round-robin file
// shards merged afterwards. Both produce the same summary bytes.
func runAnalysis(paths []string, shards int, cfg analysis.Config) (*models.AnalysisSummary, error) {
	if shards <= 1 {
		reader, err := archive.NewReader(paths)
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		return analysis.Run(reader, cfg)
	}

	files, err := archive.Resolve(paths)
	if err != nil {
		return nil, err
	}
	if shards > len(files) {
		shards = len(files)
	}
	sources := make([]analysis.RecordSource, 0, shards)
	for i := 0; i < shards; i++ {
		var shard []string
		for j := i; j < len(files); j += shards {
			shard = append(shard, files[j])
		}
		reader, err := archive.NewReader(shard)
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		sources = append(sources, reader)
	}
	return analysis.RunShards(sources, cfg)
}

func splitPaths(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.TrimSpace(p)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "ingest":
			runIngest(os.Args[2:])
			return
		case "analyze":
			os.Exit(runAnalyze(os.Args[2:]))
		default:
			// Backward-compatible mode: first arg is config path.
			runIngest(os.Args[1:])
			return
		}
	}

	runIngest(nil)
}
