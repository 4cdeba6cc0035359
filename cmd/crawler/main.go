// Command crawler assembles the news pipeline from configuration and runs
// it against the seed URLs, once or on a cron schedule. Only configuration
// and startup failures exit nonzero; a completed run with partial drops is
// still a clean exit.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"newspipe/internal/config"
	"newspipe/internal/dedup"
	"newspipe/internal/extract"
	"newspipe/internal/fetch"
	"newspipe/internal/logger"
	"newspipe/internal/pipeline"
	"newspipe/internal/sentiment"
	"newspipe/internal/sink"
	"newspipe/internal/telemetry"
	"newspipe/pkg/models"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("crawler failed to start", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	// The headless browser only starts when some schema actually needs it.
	var renderer *fetch.Renderer
	for i := range cfg.Schemas {
		if cfg.Schemas[i].Render {
			renderer = fetch.NewRenderer(ctx, cfg.Crawl.UserAgent)
			defer renderer.Close()
			break
		}
	}

	fetcher := fetch.New(fetch.Options{
		Timeout:       cfg.Crawl.RequestTimeout(),
		MaxRetries:    cfg.Crawl.MaxRetries,
		UserAgent:     cfg.Crawl.UserAgent,
		MaxBodyBytes:  cfg.Crawl.MaxBodyBytes(),
		HostInterval:  cfg.Crawl.PerHostInterval(),
		RespectRobots: cfg.Crawl.RespectRobots,
		Renderer:      renderer,
	})

	store, err := openStore(ctx, cfg.Dedup)
	if err != nil {
		return err
	}
	defer closeQuietly("dedup index", store.Close)

	out, err := openSinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQuietly("sinks", out.Close)

	scorer := newScorer(cfg.Sentiment)

	seeds := make([]models.FetchRequest, 0, len(cfg.Crawl.SeedURLs))
	for _, u := range cfg.Crawl.SeedURLs {
		seeds = append(seeds, models.FetchRequest{URL: u})
	}

	newCoordinator := func() *pipeline.Coordinator {
		return pipeline.New(pipeline.Options{
			Workers:    cfg.Crawl.Concurrency,
			MaxRetries: cfg.Crawl.MaxRetries,
			Keywords:   cfg.Crawl.Keywords,
			Schemas:    cfg,
		}, fetcher, extract.New(), store, out, scorer)
	}

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	if cfg.Crawl.Schedule == "" {
		c := newCoordinator()
		go func() {
			<-signals
			slog.Info("shutdown requested, draining")
			c.Drain()
			<-signals
			slog.Warn("second signal, abandoning in-flight requests")
			cancel()
		}()
		logReport(c.Run(ctx, seeds...), cfg.Sentiment.Enabled)
		return nil
	}

	var (
		mu      sync.Mutex
		active  *pipeline.Coordinator
		running bool
	)
	runJob := func() {
		mu.Lock()
		if running {
			mu.Unlock()
			slog.Info("previous run still active, skipping this fire")
			return
		}
		running = true
		c := newCoordinator()
		active = c
		mu.Unlock()

		logReport(c.Run(ctx, seeds...), cfg.Sentiment.Enabled)

		mu.Lock()
		running = false
		active = nil
		mu.Unlock()
	}

	sched := cron.New()
	if _, err := sched.AddFunc(cfg.Crawl.Schedule, runJob); err != nil {
		return fmt.Errorf("config: schedule %q: %w", cfg.Crawl.Schedule, err)
	}

	// First crawl right away; the schedule takes over afterwards.
	var initial sync.WaitGroup
	initial.Add(1)
	go func() {
		defer initial.Done()
		runJob()
	}()
	sched.Start()
	slog.Info("running on schedule", "cron", cfg.Crawl.Schedule)

	<-signals
	slog.Info("shutdown requested, draining")
	cronJobs := sched.Stop()
	mu.Lock()
	if active != nil {
		active.Drain()
	}
	mu.Unlock()

	idle := make(chan struct{})
	go func() {
		initial.Wait()
		<-cronJobs.Done()
		close(idle)
	}()

	select {
	case <-idle:
	case <-signals:
		slog.Warn("second signal, abandoning in-flight requests")
		cancel()
		<-idle
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Dedup) (dedup.Store, error) {
	if cfg.RedisAddr != "" {
		store := dedup.NewRedisStore(cfg.RedisAddr, 0)
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis at %s: %w", cfg.RedisAddr, err)
		}
		slog.Info("dedup index in redis", "addr", cfg.RedisAddr)
		return store, nil
	}
	return dedup.Open(cfg.IndexPath), nil
}

func openSinks(ctx context.Context, cfg *config.Config) (sink.Multi, error) {
	var out sink.Multi
	o := cfg.Output
	scored := cfg.Sentiment.Enabled

	if o.JSONLPath != "" {
		s, err := sink.NewJSONL(o.JSONLPath, scored)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if o.CSVPath != "" {
		s, err := sink.NewCSV(o.CSVPath, scored)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if o.PostgresURL != "" {
		s, err := sink.NewPostgres(ctx, o.PostgresURL, o.BatchSize, o.FlushInterval())
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if o.SQLitePath != "" {
		s, err := sink.NewSQLite(ctx, o.SQLitePath, o.BatchSize, o.FlushInterval())
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		slog.Warn("no outputs configured, records will only be counted")
	}
	return out, nil
}

func newScorer(cfg config.Sentiment) sentiment.Scorer {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Provider == "ollama" {
		return sentiment.NewOllamaScorer(cfg.OllamaHost, cfg.OllamaModel)
	}
	return sentiment.NewLexiconScorer()
}

func closeQuietly(name string, close func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := close(ctx); err != nil {
		slog.Warn("close failed", "component", name, "error", err)
	}
}

func logReport(r *models.RunReport, scored bool) {
	args := []any{
		"fetched", r.Fetched,
		"extracted", r.Extracted,
		"deduped", r.Deduped,
		"keywordFiltered", r.KeywordFiltered,
		"droppedExtractionErrors", r.DroppedExtractionErrors,
		"robotsDenied", r.RobotsDenied,
		"failedTerminal", r.FailedTerminal,
		"emitted", r.Emitted,
	}
	if scored {
		args = append(args,
			"sentimentPositive", r.SentimentPositive,
			"sentimentNegative", r.SentimentNegative,
			"sentimentNeutral", r.SentimentNeutral,
		)
	}
	slog.Info("run complete", args...)

	for host, n := range r.PerHostRequests {
		slog.Debug("host requests", "host", host, "requests", n)
	}
}
