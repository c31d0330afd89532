// Command server runs the image conversion HTTP service.
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

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	imageconvert "github.com/Skryldev/image-convert"
	"github.com/Skryldev/image-convert/config"
	"github.com/Skryldev/image-convert/hooks"
	"github.com/Skryldev/image-convert/httpapi"
	"github.com/Skryldev/image-convert/orchestrator"
	"github.com/Skryldev/image-convert/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		envFile  = pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
		addr     = pflag.String("addr", "", "listen address (overrides HTTP_ADDR)")
		backend  = pflag.String("store", "", "result store: memory, redis, local or s3 (overrides STORE_BACKEND)")
		codec    = pflag.String("codec", "", "codec backend: stdlib or vips (overrides CODEC_BACKEND)")
		logLevel = pflag.String("log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	)
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *backend != "" {
		cfg.Storage = config.StorageBackend(*backend)
	}
	if *codec != "" {
		cfg.Codec = config.CodecBackend(*codec)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger := hooks.NewSlogLogger(hooks.NewSlog(os.Stdout, cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, shutdownCodecs, err := imageconvert.BuildRegistry(cfg)
	if err != nil {
		return err
	}
	defer shutdownCodecs()

	metrics := hooks.NewInMemoryMetrics()
	conv, err := imageconvert.NewConverter(cfg, reg, logger,
		hooks.NewLoggingHook(logger),
		hooks.NewMetricsHook(metrics),
	)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	orch := orchestrator.New(conv, st, orchestrator.Options{
		Workers:   cfg.WorkerCount,
		QueueSize: cfg.QueueSize,
		ResultTTL: cfg.ResultTTL,
		Logger:    logger,
		Metrics:   metrics,
	})
	orch.Start()
	defer orch.Stop()

	handler := httpapi.NewHandler(orch, metrics, cfg.MaxUploadBytes, logger)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server.listen", "addr", cfg.HTTPAddr, "store", cfg.Storage, "codec", cfg.Codec)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.ResultTTL > 0 {
		g.Go(func() error {
			return store.RunSweeper(gctx, st, cfg.SweepInterval, logger)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server.shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
