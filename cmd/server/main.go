// WorldLog - TRPG completion relay server
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

	"github.com/ashureev/worldlog/internal/api"
	"github.com/ashureev/worldlog/internal/config"
	"github.com/ashureev/worldlog/internal/history"
	"github.com/ashureev/worldlog/internal/llm"
	"github.com/ashureev/worldlog/internal/metrics"
	"github.com/ashureev/worldlog/internal/relay"
	"github.com/ashureev/worldlog/internal/rules"
	"github.com/ashureev/worldlog/internal/session"
	"github.com/ashureev/worldlog/internal/store"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "addr", cfg.Addr(), "model", cfg.OpenAI.Model)

	// Rules are read once, before serving.
	rulesStore := rules.New(cfg.RulesPath)
	if _, err := rulesStore.Load(); err != nil {
		slog.Error("Failed to load rules", "error", err)
		os.Exit(1)
	}

	historyStore := history.New(cfg.HistoryPath)
	collector := metrics.NewCollector("worldlog")

	var archive store.Archive
	if cfg.Archive.Enabled {
		sqliteStore, err := store.NewSQLite(cfg.Archive.DBPath)
		if err != nil {
			slog.Error("Failed to initialize archive", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := sqliteStore.Close(); closeErr != nil {
				slog.Error("Failed to close archive", "error", closeErr)
			}
		}()

		if err := sqliteStore.Ping(context.Background()); err != nil {
			slog.Error("Archive health check failed", "error", err)
			os.Exit(1)
		}
		archive = sqliteStore
		slog.Info("Archive connected", "path", cfg.Archive.DBPath)
	} else {
		slog.Info("Session archive disabled")
	}

	client := llm.NewOpenAI(llm.OpenAIOptions{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Temperature: cfg.OpenAI.Temperature,
	})

	svc, err := relay.NewService(relay.Options{
		Rules:             rulesStore,
		History:           historyStore,
		Gate:              session.NewGate(session.DefaultKeyword, session.DefaultInstruction),
		LLM:               client,
		Archive:           archive,
		Metrics:           collector,
		TerminationPhrase: cfg.TerminationPhrase,
	})
	if err != nil {
		slog.Error("Failed to initialize relay", "error", err)
		os.Exit(1)
	}

	router := api.NewRouter(api.RouterConfig{
		Handler:        api.NewHandler(svc, cfg.HistoryPath),
		Archive:        archive,
		Metrics:        collector,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	// Provider calls can take a long time; no WriteTimeout.
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
