// Kestrel - Economic pattern detection and resilience scoring for
// autonomous spending agents.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/agentic-finance/kestrel/internal/api"
	"github.com/agentic-finance/kestrel/internal/bus"
	"github.com/agentic-finance/kestrel/internal/cache"
	"github.com/agentic-finance/kestrel/internal/detect"
	"github.com/agentic-finance/kestrel/internal/domain"
	"github.com/agentic-finance/kestrel/internal/ledger"
	"github.com/agentic-finance/kestrel/internal/memory"
	"github.com/agentic-finance/kestrel/internal/policy"
	"github.com/agentic-finance/kestrel/internal/profile"
	"github.com/agentic-finance/kestrel/internal/repository"
	"github.com/agentic-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Local .env files are optional; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	agentID := os.Getenv("KESTREL_AGENT_ID")
	if agentID == "" {
		agentID = "default"
	}

	// Initialize the memory store and replay persisted history
	store := memory.New(
		ledger.New(repo),
		profile.NewBuilder(cfg.Detector),
		detect.NewRegistry(cfg.Detector),
		memory.Options{
			Repository: repo,
			Cache:      cacheImpl,
			Bus:        busImpl,
			AgentID:    agentID,
		},
	)
	if err := store.Load(ctx); err != nil {
		slog.Error("failed to load immune memory", "error", err)
		os.Exit(1)
	}
	status := store.Status()
	slog.Info("immune memory loaded",
		"transactions", status.TransactionCount,
		"patterns", status.PatternCount,
		"resilience_score", status.ResilienceScore,
		"band", status.Band,
	)

	// Initialize Policy Engine
	policies, err := policy.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize policy engine", "error", err)
		os.Exit(1)
	}
	defer policies.Close()

	// Load policies from database (no hardcoded defaults - configure via API)
	if err := loadPoliciesFromDatabase(ctx, repo, policies); err != nil {
		slog.Error("failed to load policies", "error", err)
		os.Exit(1)
	}
	slog.Info("policy engine initialized", "policies_count", policies.Count())

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, store)

		if err := asyncWorker.Start(worker.Config{AgentID: agentID}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "agent_id", agentID)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, store, policies, repo, cacheImpl, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// applyEnvOverrides lets deployments tweak individual settings without a
// config file. Only the knobs that differ per environment are exposed.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("KESTREL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KESTREL_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("KESTREL_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("KESTREL_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
}

// loadPoliciesFromDatabase loads stored policies into the engine.
// All policies must be configured via POST /policies API - no hardcoded defaults.
func loadPoliciesFromDatabase(ctx context.Context, repo domain.Repository, engine *policy.Engine) error {
	stored, err := repo.ListPolicies(ctx)
	if err != nil {
		slog.Warn("failed to list policies from database", "error", err)
		return nil // Start with empty policies - they can be added via API
	}

	if len(stored) > 0 {
		slog.Info("loading policies from database", "count", len(stored))
		return engine.LoadPolicies(stored)
	}

	slog.Info("no policies in database - configure via POST /policies API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               KESTREL                     ║")
	fmt.Println("  ║   Economic Pattern Detection Engine       ║")
	fmt.Println("  ║   Spending memory that fights back.       ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /decisions              - Record a transaction decision")
	fmt.Println("    POST /adaptations            - Report a detection outcome")
	fmt.Println("    GET  /status                 - Score, band, active signals")
	fmt.Println("    GET  /memory                 - Full memory snapshot")
	fmt.Println("    GET  /patterns               - Detected patterns")
	fmt.Println("    GET  /signals                - Active risk signals")
	fmt.Println("    POST /signals/{id}/resolve   - Resolve a risk signal")
	fmt.Println("    POST /patterns/{id}/resolve  - Resolve a pattern")
	fmt.Println("    GET  /profiles/{recipient}   - Recipient spending profile")
	fmt.Println("    GET  /policies               - List spending policies")
	fmt.Println("    POST /policies               - Create a spending policy")
	fmt.Println("    POST /policies/reload        - Hot-reload policies")
	fmt.Println("    GET  /health                 - Health check")
	fmt.Println()
}
