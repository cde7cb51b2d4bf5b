package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nijaru/yt-tldr/config"
	"github.com/nijaru/yt-tldr/db"
	"github.com/nijaru/yt-tldr/handlers"
	"github.com/nijaru/yt-tldr/logger"
	"github.com/nijaru/yt-tldr/ollama"
	"github.com/nijaru/yt-tldr/summarize"
	"github.com/nijaru/yt-tldr/worker"
	"github.com/nijaru/yt-tldr/youtube"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.LoadConfig()
	if path := config.GetEnv("TLDR_CONFIG", ""); path != "" {
		fileCfg, err := config.LoadConfigFile(path)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to load configuration file")
		}
		cfg = fileCfg
	}

	if err := config.ValidateConfig(cfg); err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize logger")
	}

	fetcher := youtube.NewFetcher(
		youtube.WithLanguage(cfg.TranscriptLanguage),
		youtube.WithTimeout(cfg.TranscriptTimeout),
		youtube.WithLogger(log),
	)

	chat := ollama.NewClient(cfg.OllamaBaseURL,
		ollama.WithListTimeout(cfg.ModelsTimeout),
		ollama.WithLogger(log),
	)

	svcOpts := []summarize.Option{
		summarize.WithDefaultModel(cfg.DefaultModel),
		summarize.WithInferenceTimeout(cfg.InferenceTimeout),
		summarize.WithLogger(log),
	}
	serverOpts := []handlers.ServerOption{
		handlers.WithModelLister(chat),
		handlers.WithLogger(log),
	}

	if cfg.RunLogPath != "" {
		store, err := db.InitializeDB(cfg.RunLogPath, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize run log")
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.WithError(err).Error("Failed to close run log")
			}
		}()
		svcOpts = append(svcOpts, summarize.WithRecorder(store))
		serverOpts = append(serverOpts, handlers.WithRunLister(store))
	}

	svc := summarize.NewService(fetcher, chat, svcOpts...)

	pool := worker.NewPool(svc.Run, worker.Options{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Block:     cfg.QueueBlock,
		Logger:    log,
	})

	server := handlers.NewServer(cfg, pool, serverOpts...)

	log.WithFields(logrus.Fields{
		"version": cfg.Version,
		"workers": cfg.Workers,
		"queue":   cfg.QueueSize,
		"backend": cfg.OllamaBaseURL,
		"model":   cfg.DefaultModel,
		"timeout": cfg.InferenceTimeout.String(),
		"run_log": cfg.RunLogPath != "",
	}).Info("Configuration loaded")

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-errCh:
		log.WithError(err).Error("Server failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server shutdown error")
		// Dropping connections cancels in-flight pipelines so the pool can drain.
		server.Close()
	}
	pool.Close()
	log.Info("Server stopped")
}
