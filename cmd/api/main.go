package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"video-transcript-go/internal/config"
	"video-transcript-go/internal/downloader"
	"video-transcript-go/internal/executor"
	"video-transcript-go/internal/inbox"
	"video-transcript-go/internal/jobs"
	"video-transcript-go/internal/llm"
	"video-transcript-go/internal/logger"
	"video-transcript-go/internal/pipeline"
	"video-transcript-go/internal/transcription"
	"video-transcript-go/internal/worker"
)

func main() {
	cfg, err := config.Load(envOr("CONFIG_FILE", "config.yaml"))
	if err != nil {
		logger.New().WithError(err).Fatal("failed to load config")
	}

	log := logger.NewWithLevel(cfg.Logging.Level)
	log.WithField("service", "video-transcript-go").Info("starting service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, dir := range []string{cfg.Paths.Downloads, cfg.Paths.Thumbnails} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.WithError(err).WithField("dir", dir).Fatal("failed to create directory")
		}
	}

	backend, err := newBackend(ctx, cfg.LLM)
	if err != nil {
		log.WithError(err).Fatal("failed to create llm backend")
	}
	log.WithField("backend", cfg.LLM.Backend).WithField("model", cfg.LLM.Model).Info("llm backend configured")
	llm.WaitUntilHealthy(ctx, backend, cfg.LLM.StartupWait, log)

	store, closeStore, err := newStore(ctx, cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open job store")
	}
	defer closeStore()

	gateway := llm.NewGateway(backend, llm.Options{
		ChunkSize:         cfg.LLM.ChunkSize,
		StructuredTimeout: cfg.LLM.StructuredTimeout,
		ReformatTimeout:   cfg.LLM.ReformatTimeout,
	}, log)

	dl := downloader.New(downloader.Config{
		BinaryPath:      cfg.Downloader.BinaryPath,
		Dir:             cfg.Paths.Downloads,
		InfoTimeout:     cfg.Downloader.InfoTimeout,
		DownloadTimeout: cfg.Downloader.DownloadTimeout,
	}, executor.New(), log)

	tr := transcription.New(transcription.Config{
		URL:      cfg.Transcriber.URL,
		Language: cfg.Transcriber.Language,
		Timeout:  cfg.Transcriber.Timeout,
	}, log)

	pool := worker.NewPool(ctx, cfg.Performance.MaxConcurrentJobs, log)
	orch := pipeline.New(store, dl, tr, gateway, pool, pipeline.Options{ThumbnailDir: cfg.Paths.Thumbnails}, log)

	if cfg.Paths.Inbox != "" {
		w, err := inbox.New(cfg.Paths.Inbox, orch, log)
		if err != nil {
			log.WithError(err).Fatal("failed to start inbox watcher")
		}
		defer w.Stop()
		go func() {
			if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("inbox watcher stopped")
			}
		}()
	}

	srv := &server{
		store:        store,
		orch:         orch,
		llm:          gateway,
		thumbnailDir: cfg.Paths.Thumbnails,
		log:          log,
	}

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	httpSrv := newHTTPServer(addr, srv.routes(), cfg.LLM.StructuredTimeout)

	go func() {
		log.WithField("addr", addr).Info("listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server terminated")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	orch.Wait()
	log.Info("stopped")
}

func newBackend(ctx context.Context, c config.LLMConfig) (llm.Backend, error) {
	switch c.Backend {
	case "openai":
		return llm.NewOpenAIBackend(c.APIKey, c.BaseURL, c.Model), nil
	case "gemini":
		b, err := llm.NewGeminiBackend(ctx, c.APIKey, c.Model)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return llm.NewOllamaBackend(c.BaseURL, c.Model), nil
	}
}

// newStore picks Postgres when a database URL is configured, memory otherwise.
func newStore(ctx context.Context, c config.DatabaseConfig, log *logger.Logger) (jobs.Store, func(), error) {
	if c.URL == "" {
		log.Info("using in-memory job store")
		return jobs.NewMemoryStore(), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pg, err := jobs.OpenPostgres(connectCtx, jobs.PostgresConfig{DSN: c.URL, MaxOpenConns: 10})
	if err != nil {
		return nil, nil, err
	}
	log.Info("using postgres job store")
	return pg, func() { _ = pg.Close() }, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
