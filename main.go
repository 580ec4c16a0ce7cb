package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"appraisald/config"
	"appraisald/internal/pipeline"
	"appraisald/internal/pricing"
	"appraisald/internal/report"
	"appraisald/internal/server"
	"appraisald/internal/storage"
	"appraisald/internal/vision"
)

const logFileName = "appraisald.log"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	config.LoadEnvFile()

	// JOURNAL_STREAM is set by systemd when running as a service.
	// Skip file logging under systemd (journald handles it, and
	// ProtectSystem=strict makes the working directory read-only).
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open log file")
		}
		defer logFile.Close()

		consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
		fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
		log.Logger = log.Output(io.MultiWriter(consoleWriter, fileWriter))

		log.Info().Str("logFile", logFileName).Msg("logging to file")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath, storage.DeriveKey(cfg.DataKey))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize appraisal store")
	}
	defer store.Close()
	log.Info().Str("dbPath", cfg.DBPath).Msg("appraisal store initialized")

	renderer, err := report.NewHTMLRenderer(cfg.OutputDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize report renderer")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gemini, err := vision.NewGeminiAnalyzer(ctx, cfg.GeminiAPIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize gemini vision analyzer")
	}
	log.Info().Msg("gemini vision analyzer initialized")

	analyzer := vision.NewCachedAnalyzer(gemini, store)
	log.Info().Msg("vision analysis caching enabled")

	var researcher pricing.Researcher
	if cfg.PriceAPIBaseURL != "" {
		researcher = pricing.NewClient(pricing.ClientOpts{
			BaseURL: cfg.PriceAPIBaseURL,
			APIKey:  cfg.PriceAPIKey,
		})
		log.Info().Str("baseURL", cfg.PriceAPIBaseURL).Msg("price research enabled")
	}

	pipe := pipeline.New(vision.NewAdapter(analyzer), gemini, researcher, renderer, store)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(pipe, store).Router(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down http server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}
