// Package main provides the CodexLens webhook server.
//
// Configuration via codexlens.yaml or CODEXLENS_* environment variables:
//
//	CODEXLENS_APP_ID           - GitHub App ID (required)
//	CODEXLENS_PRIVATE_KEY_PATH - Path to the App's PEM private key (required)
//	CODEXLENS_WEBHOOK_SECRET   - Webhook signature verification secret (required)
//	CODEXLENS_STORAGE_DRIVER   - "postgres" (default) or "sqlite"
//	CODEXLENS_DATABASE_URL     - PostgreSQL connection string
//	CODEXLENS_SQLITE_PATH      - SQLite database file (default: codexlens.db)
//	CODEXLENS_PORT             - HTTP server port (default: 8080)
//
// Usage:
//
//	go run cmd/server/main.go
package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codexlens/codexlens/analysis"
	"github.com/codexlens/codexlens/config"
	"github.com/codexlens/codexlens/github"
	"github.com/codexlens/codexlens/review"
	"github.com/codexlens/codexlens/storage"
	"github.com/codexlens/codexlens/storage/postgres"
	"github.com/codexlens/codexlens/storage/sqlite"
)

var (
	logger         *slog.Logger
	cfg            *config.ServerConfig
	webhookHandler *github.WebhookHandler
	task           *review.Task
)

func main() {
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	closeStore, err := initialize()
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/github", handleWebhook)
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/", handleRoot)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func initialize() (func() error, error) {
	var err error
	cfg, err = config.LoadServerConfig()
	if err != nil {
		return nil, err
	}

	privateKey, err := cfg.PrivateKey()
	if err != nil {
		return nil, err
	}

	var store storage.Storage
	var closeStore func() error
	switch cfg.StorageDriver {
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		store, closeStore = db, db.Close
	default:
		db, err := postgres.NewFromDSN(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(context.Background()); err != nil {
			db.Close()
			return nil, err
		}
		store, closeStore = db, db.Close
	}

	tokens, err := github.NewTokenManager(cfg.AppID, privateKey, logger)
	if err != nil {
		closeStore()
		return nil, err
	}
	client := github.NewClient(tokens)

	runners := []analysis.Runner{
		analysis.NewRuffRunner(),
		analysis.NewBanditRunner(),
		analysis.NewSemgrepRunner(),
	}
	orchestrator := analysis.NewOrchestrator(runners, logger)
	orchestrator.SetConcurrency(cfg.Concurrency)

	webhookHandler = github.NewWebhookHandler(cfg.WebhookSecret)
	task = review.NewTask(client, orchestrator, review.NewAggregator(), store, config.NewLoader(client), logger)

	logger.Info("initialized",
		"app_id", cfg.AppID,
		"storage", cfg.StorageDriver,
	)

	return closeStore, nil
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{
		"name":   "CodexLens",
		"status": "running",
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("failed to read body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	eventType := r.Header.Get("X-GitHub-Event")
	if eventType == "" {
		http.Error(w, "missing X-GitHub-Event header", http.StatusBadRequest)
		return
	}

	logger.Info("received webhook", "event", eventType, "size", len(payload))

	signature := r.Header.Get("X-Hub-Signature-256")
	if err := webhookHandler.VerifySignature(payload, signature); err != nil {
		logger.Error("signature verification failed", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	if eventType == "ping" {
		logger.Info("received ping")
		jsonResponse(w, http.StatusOK, map[string]string{"message": "pong"})
		return
	}

	if eventType != "pull_request" {
		logger.Info("ignoring event", "type", eventType)
		jsonResponse(w, http.StatusOK, map[string]string{"message": "event ignored"})
		return
	}

	event, err := webhookHandler.ParsePullRequestEvent(payload)
	if err != nil {
		logger.Error("failed to parse event", "error", err)
		http.Error(w, "failed to parse event", http.StatusBadRequest)
		return
	}

	if !webhookHandler.ShouldProcess(eventType, event) {
		logger.Info("skipping event", "action", event.Action)
		jsonResponse(w, http.StatusOK, map[string]string{"message": "event skipped"})
		return
	}

	if event.Repository == nil || event.Installation == nil {
		http.Error(w, "incomplete event payload", http.StatusBadRequest)
		return
	}

	logger.Info("processing PR",
		"repo", event.Repository.FullName,
		"pr", event.Number,
		"action", event.Action,
	)

	// Respond immediately to GitHub
	jsonResponse(w, http.StatusOK, map[string]string{"message": "review started"})

	input := review.Input{
		PRGithubID:     event.PullRequest.ID,
		RepoName:       event.Repository.FullName,
		PRNumber:       event.Number,
		InstallationID: event.Installation.ID,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.TaskTimeout)
		defer cancel()

		result, err := task.Run(ctx, input)
		if err != nil {
			logger.Error("review failed", "repo", input.RepoName, "pr", input.PRNumber, "error", err)
			return
		}

		logger.Info("review finished",
			"repo", input.RepoName,
			"pr", input.PRNumber,
			"state", result.State,
			"attempts", result.Attempts,
			"files", result.FilesAnalyzed,
			"findings", result.FindingCount,
			"comments", result.CommentsPosted,
			"partial", result.PartialFailure,
		)
	}()
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
