// CediGuard - Mobile money fraud detection that deploys in 60 seconds.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cediguard/cediguard/internal/api"
	"github.com/cediguard/cediguard/internal/bus"
	"github.com/cediguard/cediguard/internal/cache"
	"github.com/cediguard/cediguard/internal/domain"
	"github.com/cediguard/cediguard/internal/pipeline"
	"github.com/cediguard/cediguard/internal/repository"
	"github.com/cediguard/cediguard/internal/rules"
	"github.com/cediguard/cediguard/internal/velocity"
	"github.com/cediguard/cediguard/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Optional .env for local development; missing file is fine.
	_ = godotenv.Load()

	logLevel := slog.LevelInfo
	if os.Getenv("CEDIGUARD_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting cediguard",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	cfg := domain.DefaultConfig()
	if os.Getenv("CEDIGUARD_TIER") == "pro" {
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	velocitySvc := velocity.NewService(repo)

	ruleEngine, err := rules.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer ruleEngine.Close()

	tenantIDs := parseTenants(os.Getenv("CEDIGUARD_TENANTS"))

	// Rules for known tenants load up front; others hot-load via
	// POST /rules/reload.
	loadRulesFromDatabase(ctx, repo, ruleEngine, tenantIDs)
	slog.Info("rule engine initialized", "rules_count", ruleEngine.RulesCount())

	processor := pipeline.NewProcessor(pipeline.Config{
		Rules:    ruleEngine,
		Repo:     repo,
		Cache:    cacheImpl,
		Bus:      busImpl,
		Velocity: velocitySvc,
		Logger:   logger,
	})
	slog.Info("evaluation pipeline initialized")

	// Async worker consumes SMS from the bus (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("CEDIGUARD_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, processor)

		workerCfg := worker.Config{
			TenantIDs: tenantIDs,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	srv := api.NewServer(cfg.Server, cfg.RateLimit, repo, cacheImpl, busImpl, ruleEngine, processor, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("cediguard is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

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

	slog.Info("cediguard shutdown complete")
}

// applyEnvOverrides lets individual settings be tuned without rebuilding
// the tier presets.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("CEDIGUARD_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CEDIGUARD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CEDIGUARD_DB_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("CEDIGUARD_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("CEDIGUARD_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("CEDIGUARD_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("CEDIGUARD_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("CEDIGUARD_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("CEDIGUARD_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("CEDIGUARD_RATE_LIMIT_PER_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.MaxPerMin = n
			cfg.RateLimit.Enabled = n > 0
		}
	}
}

func parseTenants(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tenants := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tenants = append(tenants, t)
		}
	}
	return tenants
}

// loadRulesFromDatabase loads each tenant's custom rules into the engine.
// All rules are configured via POST /rules - no hardcoded defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine, tenantIDs []string) {
	for _, tenantID := range tenantIDs {
		dbRules, err := repo.ListCustomRules(ctx, tenantID)
		if err != nil {
			slog.Warn("failed to list rules from database", "tenant_id", tenantID, "error", err)
			continue
		}
		if len(dbRules) == 0 {
			continue
		}
		if err := engine.LoadRules(dbRules); err != nil {
			slog.Warn("failed to load rules", "tenant_id", tenantID, "error", err)
			continue
		}
		slog.Info("rules loaded from database", "tenant_id", tenantID, "count", len(dbRules))
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +===========================================+")
	fmt.Println("  |               CEDIGUARD                   |")
	fmt.Println("  |     Mobile Money Fraud Detection          |")
	fmt.Println("  |     Eyes on every cedi.                   |")
	fmt.Println("  +===========================================+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /parse                - Parse an SMS without scoring")
	fmt.Println("    POST /evaluate             - Parse and score an SMS")
	fmt.Println("    GET  /transactions/{id}    - Get transaction by ID")
	fmt.Println("    GET  /assessments/{id}     - Get assessment by ID")
	fmt.Println("    GET  /settings/{accountId} - Get account settings")
	fmt.Println("    PUT  /settings/{accountId} - Update account settings")
	fmt.Println("    GET  /accounts/{accountId}/merchants/{kind} - List merchants")
	fmt.Println("    POST /accounts/{accountId}/merchants/{kind} - Add merchant")
	fmt.Println("    POST /blacklist            - Blacklist an identifier")
	fmt.Println("    GET  /rules                - List custom rules")
	fmt.Println("    POST /rules                - Create a custom rule")
	fmt.Println("    POST /rules/reload         - Hot-reload rules from database")
	fmt.Println("    GET  /health               - Health check")
	fmt.Println()
}
