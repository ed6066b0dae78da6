package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jordanhale/snapcrawl/internal/api"
	"github.com/jordanhale/snapcrawl/internal/buffer"
	"github.com/jordanhale/snapcrawl/internal/checkpoint"
	gcsstore "github.com/jordanhale/snapcrawl/internal/checkpoint/gcs"
	memorystore "github.com/jordanhale/snapcrawl/internal/checkpoint/memory"
	postgresstore "github.com/jordanhale/snapcrawl/internal/checkpoint/postgres"
	redisstore "github.com/jordanhale/snapcrawl/internal/checkpoint/redis"
	"github.com/jordanhale/snapcrawl/internal/clock/system"
	"github.com/jordanhale/snapcrawl/internal/config"
	"github.com/jordanhale/snapcrawl/internal/crawler"
	"github.com/jordanhale/snapcrawl/internal/fetch/attachment"
	"github.com/jordanhale/snapcrawl/internal/fetch/headless"
	"github.com/jordanhale/snapcrawl/internal/frontier"
	"github.com/jordanhale/snapcrawl/internal/logging"
	pubsubpublisher "github.com/jordanhale/snapcrawl/internal/publisher/pubsub"
	"github.com/jordanhale/snapcrawl/internal/scheduler"
	"github.com/jordanhale/snapcrawl/internal/session"
)

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Starts a checkpointed crawl",
		Long: `Seeds the frontier from the configuration, runs the worker pool until
quiescence, and flushes buffered page records to the configured checkpoint
store in numbered batches. If the store already holds progress counters the
crawl resumes from the recorded position.`,

		RunE: runCrawlCommand,
	}
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildCheckpointStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init checkpoint store: %w", err)
	}
	defer closeStore()

	publisher, closePublisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}
	defer closePublisher()

	front := frontier.New()
	buf := buffer.New()
	controller := checkpoint.NewController(
		store,
		buf,
		checkpoint.Config{
			FlushThreshold: cfg.Crawler.StorePagesInterval,
			Topic:          cfg.PubSub.TopicName,
		},
		publisher,
		logger.Named("checkpoint"),
	)

	pages, err := headless.New(headless.Config{
		MaxParallel:        cfg.Headless.MaxParallel,
		NavigationTimeout:  time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		LinkSelector:       cfg.Headless.LinkSelector,
		TitleSelector:      cfg.Headless.TitleSelector,
		AttachmentSelector: cfg.Headless.AttachmentSelector,
		AttachmentAttr:     cfg.Headless.AttachmentAttr,
	})
	if err != nil {
		return fmt.Errorf("init page fetcher: %w", err)
	}
	attachments := attachment.New(attachment.Config{Timeout: cfg.FetchTimeout()})
	profiles := session.NewPicker(cfg.Crawler.ProxyURLs, cfg.Crawler.UserAgents)

	sched := scheduler.New(
		scheduler.Config{
			Concurrency:  cfg.Crawler.Concurrency,
			FetchTimeout: cfg.FetchTimeout(),
			RequestDelay: cfg.RequestDelay(),
			BypassCache:  cfg.Headless.BypassCache,
		},
		front,
		pages,
		attachments,
		profiles,
		buf,
		controller,
		system.New(),
		logger.Named("scheduler"),
	)

	if cfg.Server.Port > 0 {
		shutdown := startOpsServer(cfg.Server.Port, controller, front, logger)
		defer shutdown()
	}

	outcome, err := sched.Run(ctx, cfg.Crawler.SeedURLs)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("crawl interrupted",
				zap.Int("pages_processed", outcome.PagesProcessed),
				zap.Int("batches_written", outcome.BatchesWritten),
			)
			return nil
		}
		return fmt.Errorf("run crawl: %w", err)
	}

	logger.Info("crawl complete",
		zap.Int("pages_processed", outcome.PagesProcessed),
		zap.Int("pages_failed", outcome.PagesFailed),
		zap.Int("batches_written", outcome.BatchesWritten),
		zap.Int("frontier_size", outcome.FrontierSize),
		zap.Duration("elapsed", outcome.Elapsed),
	)
	return nil
}

// buildCheckpointStore wires the backend selected by checkpoint.backend and
// returns a cleanup func for whatever connections it opened.
func buildCheckpointStore(ctx context.Context, cfg config.Config) (checkpoint.Store, func(), error) {
	noop := func() {}
	switch cfg.Checkpoint.Backend {
	case config.BackendMemory:
		return memorystore.NewStore(cfg.Checkpoint.MaxValueBytes), noop, nil
	case config.BackendRedis:
		store, err := redisstore.NewStore(ctx, cfg.Checkpoint.RedisAddr, cfg.Checkpoint.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.BackendPostgres:
		store, pool, err := postgresstore.NewStore(ctx, cfg.Checkpoint.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, pool.Close, nil
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		store, err := gcsstore.New(client, gcsstore.Config{
			Bucket: cfg.Checkpoint.GCSBucket,
			Prefix: cfg.Checkpoint.GCSPrefix,
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Checkpoint.Backend)
	}
}

// buildPublisher returns a Pub/Sub publisher when a project and topic are
// configured, otherwise nil so the controller skips batch events.
func buildPublisher(ctx context.Context, cfg config.Config) (crawler.Publisher, func(), error) {
	noop := func() {}
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		return nil, noop, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	pub := pubsubpublisher.New(client.Publisher(cfg.PubSub.TopicName))
	return pub, func() { _ = client.Close() }, nil
}

// startOpsServer serves health, metrics and crawl-state endpoints in the
// background and returns a graceful-shutdown func.
func startOpsServer(port int, controller *checkpoint.Controller, front *frontier.Frontier, logger *zap.Logger) func() {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           api.NewServer(controller, front, logger.Named("api")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("ops server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server error", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("ops server shutdown error", zap.Error(err))
		}
	}
}
