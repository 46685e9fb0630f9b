package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpAdapter "github.com/cwygoda/mediagrab/internal/adapter/http"
	"github.com/cwygoda/mediagrab/internal/adapter/extractor"
	"github.com/cwygoda/mediagrab/internal/adapter/memory"
	"github.com/cwygoda/mediagrab/internal/adapter/redis"
	"github.com/cwygoda/mediagrab/internal/adapter/sqlite"
	"github.com/cwygoda/mediagrab/internal/adapter/storage"
	"github.com/cwygoda/mediagrab/internal/config"
	"github.com/cwygoda/mediagrab/internal/domain"
	"github.com/cwygoda/mediagrab/internal/worker"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: .env: %v", err)
	}

	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	log.Printf("starting mediagrab on port %d", cfg.Port)
	if cfg.ConfigPath != "" {
		log.Printf("config: %s", cfg.ConfigPath)
	}
	log.Printf("artifact dir: %s (max age %s)", cfg.ArtifactDir, cfg.MaxArtifactAge)
	log.Printf("job registry: %s", cfg.Registry)

	store, err := storage.New(cfg.ArtifactDir, cfg.MaxArtifactAge, cfg.AudioExt, cfg.VideoExt)
	if err != nil {
		log.Fatalf("failed to initialize artifact store: %v", err)
	}

	registry, closeRegistry, err := openRegistry(cfg)
	if err != nil {
		log.Fatalf("failed to initialize job registry: %v", err)
	}
	defer closeRegistry()

	// Configured commands take precedence over the catch-all yt-dlp.
	extractors := extractor.NewRegistry()
	for _, ec := range cfg.Extractors {
		cmd, err := extractor.NewCommand(ec, store.Dir(), cfg.AudioExt, cfg.VideoExt)
		if err != nil {
			log.Fatalf("extractor %q: %v", ec.Name, err)
		}
		extractors.Register(cmd)
	}
	ytdlp, err := extractor.NewYtDlp(store.Dir(), extractor.YtDlpOptions{
		Binary:       cfg.YtDlp.Path,
		FFmpegPath:   cfg.YtDlp.FFmpegPath,
		AudioQuality: cfg.YtDlp.AudioQuality,
		AudioExt:     cfg.AudioExt,
		VideoExt:     cfg.VideoExt,
		Pattern:      cfg.YtDlp.Pattern,
	})
	if err != nil {
		log.Fatalf("yt-dlp extractor: %v", err)
	}
	extractors.Register(ytdlp)
	for _, e := range extractors.Extractors() {
		log.Printf("extractor: %s", e.Name())
	}

	runner := worker.NewRunner(registry, extractors, store, worker.Options{
		Workers:    cfg.Workers,
		JobTimeout: cfg.JobTimeout,
	})
	svc := domain.NewJobService(registry, store, runner, cfg.JobTTL)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := httpAdapter.NewServer(svc, addr)
	janitor := worker.NewJanitor(svc, cfg.SweepInterval)

	// Graceful shutdown setup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go janitor.Run(ctx)

	go func() {
		log.Printf("HTTP server listening on %s", srv.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
			sigCh <- syscall.SIGTERM
		}
	}()

	sig := <-sigCh
	log.Printf("received signal %v, shutting down", sig)

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		log.Printf("runner shutdown: %v", err)
	}

	log.Println("shutdown complete")
}

// openRegistry builds the configured job registry and its release func.
func openRegistry(cfg *config.Config) (domain.JobRegistry, func(), error) {
	switch cfg.Registry {
	case config.RegistrySQLite:
		repo, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("database: %s", cfg.DBPath)
		return repo, func() { repo.Close() }, nil
	case config.RegistryRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		reg, err := redis.New(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Printf("redis: %s (db %d, prefix %q)", cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.Prefix)
		return reg, func() { reg.Close() }, nil
	default:
		return memory.New(), func() {}, nil
	}
}
