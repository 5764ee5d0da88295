package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/querydeck/querydeck/internal/api"
	"github.com/querydeck/querydeck/internal/api/uistatic"
	"github.com/querydeck/querydeck/internal/assist"
	"github.com/querydeck/querydeck/internal/config"
	"github.com/querydeck/querydeck/internal/engine/duckdb"
	"github.com/querydeck/querydeck/internal/observability"
	"github.com/querydeck/querydeck/internal/source"
	s3source "github.com/querydeck/querydeck/internal/source/s3"
	"github.com/querydeck/querydeck/internal/tabs"
	tabspostgres "github.com/querydeck/querydeck/internal/tabs/postgres"
	"github.com/querydeck/querydeck/internal/workbench"
)

func main() {
	cfg, err := config.LoadFromEnv("querydeck")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	var tabStore tabs.Store
	var readiness []api.ReadinessCheck
	if cfg.TabStore.DSN != "" {
		tabDB, err := tabspostgres.Open(context.Background(), tabspostgres.DBConfig{
			DSN:             cfg.TabStore.DSN,
			MaxOpenConns:    cfg.TabStore.MaxOpenConns,
			MaxIdleConns:    cfg.TabStore.MaxIdleConns,
			ConnMaxIdleTime: cfg.TabStore.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.TabStore.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open tab store db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = tabDB.Close() }()
		store := tabspostgres.NewStore(tabDB)
		tabStore = store
		readiness = append(readiness, store.HealthCheck)
	}

	var objectSource source.Source
	if cfg.ObjectStore.Endpoint != "" {
		objectSource, err = s3source.New(s3source.Config{
			Endpoint:        cfg.ObjectStore.Endpoint,
			Region:          cfg.ObjectStore.Region,
			Bucket:          cfg.ObjectStore.Bucket,
			AccessKeyID:     cfg.ObjectStore.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
			UseSSL:          cfg.ObjectStore.UseSSL,
			Prefix:          cfg.ObjectStore.Prefix,
		})
		if err != nil {
			logger.Error("failed to initialize object store source", slog.Any("error", err))
			os.Exit(1)
		}
		readiness = append(readiness, api.CheckObjectStoreConfig(cfg))
	}

	factory := func() workbench.Session {
		return duckdb.NewSession(duckdb.Config{
			WorkDir:   cfg.Engine.WorkDir,
			BatchSize: cfg.Engine.BatchSize,
		})
	}
	service, err := workbench.NewService(workbench.Config{
		PreviewRowLimit: cfg.Engine.PreviewRowLimit,
		CSVFlushBytes:   cfg.Engine.CSVFlushBytes,
	}, factory, tabStore, logger)
	if err != nil {
		logger.Error("failed to initialize workbench", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = service.Close() }()

	if err := service.RestoreDeck(context.Background()); err != nil {
		logger.Warn("failed to restore tab deck", slog.Any("error", err))
	}

	var translator assist.Translator
	if cfg.Assist.TranslateEnabled {
		translator, err = assist.NewOpenAITranslator(assist.OpenAIConfig{
			BaseURL:     cfg.Assist.BaseURL,
			APIKey:      cfg.Assist.APIKey,
			Model:       cfg.Assist.Model,
			Temperature: cfg.Assist.Temperature,
			Timeout:     cfg.Assist.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize query translator", slog.Any("error", err))
			os.Exit(1)
		}
	}

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:            logger,
		Workbench:         service,
		ObjectSource:      objectSource,
		Translator:        translator,
		UI:                uistatic.Handler(),
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: time.Second,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting workbench server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("workbench server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down workbench server")
	if err := service.SaveDeck(shutdownCtx); err != nil {
		logger.Warn("failed to persist tab deck", slog.Any("error", err))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
