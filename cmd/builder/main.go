package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/project-builder/internal/api"
	"github.com/p-blackswan/project-builder/internal/auth"
	"github.com/p-blackswan/project-builder/internal/config"
	"github.com/p-blackswan/project-builder/internal/generator"
	"github.com/p-blackswan/project-builder/internal/health"
	"github.com/p-blackswan/project-builder/internal/llm"
	"github.com/p-blackswan/project-builder/internal/metrics"
	"github.com/p-blackswan/project-builder/internal/orchestrator"
	"github.com/p-blackswan/project-builder/internal/store"
)

const retentionInterval = time.Hour

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.IsDevelopment() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		log.Logger = logger
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("listen_addr", cfg.ListenAddr).
		Str("auth_mode", cfg.AuthMode).
		Str("llm_provider", cfg.LLMProvider).
		Msg("starting project builder")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	st, err := store.New(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open store")
	}
	defer st.Close()

	provider, err := newProvider(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init generation provider")
	}

	m := metrics.New()

	checker := health.NewChecker(logger)
	checker.Register("store", checker.PingCheck("store", st.Ping))

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.CallTimeout = cfg.ProviderCallTimeout
	orchCfg.Retries = cfg.ProviderRetries
	orch := orchestrator.New(st, provider, m, orchCfg, logger)

	if cfg.RecoverInterrupted {
		n, err := orch.Recover(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("failed to recover interrupted projects")
		} else if n > 0 {
			logger.Warn().Int("projects", n).Msg("recovered interrupted projects")
		}
	}

	var tokens *auth.Tokens
	if strings.EqualFold(cfg.AuthMode, api.AuthJWT) {
		tokens = auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	} else {
		logger.Warn().Msg("authentication disabled, trusting " + api.OwnerHeader)
	}

	server := api.NewServer(api.ServerConfig{
		ListenAddr: cfg.ListenAddr,
		Auth: api.AuthConfig{
			Mode:   strings.ToLower(cfg.AuthMode),
			Tokens: tokens,
		},
		RateLimit: api.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		},
		CORSOrigins: cfg.CORSOrigins,
	}, orch, checker, m, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("api server error")
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runMaintenance(ctx, st, m, cfg.RunRetention, logger)
	}()

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
	case <-ctx.Done():
		logger.Warn().Msg("shutting down after server failure")
	}

	cancel()

	if err := server.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Error().Err(err).Msg("api server shutdown error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("runs still active at shutdown")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-shutdownCtx.Done():
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("project builder stopped")
}

// newProvider builds the generation provider selected by LLM_PROVIDER.
func newProvider(cfg *config.Config, logger zerolog.Logger) (generator.Provider, error) {
	var backend llm.LLMProvider
	switch strings.ToLower(cfg.LLMProvider) {
	case "fake":
		logger.Warn().Msg("using the offline fake generation provider")
		return &generator.Fake{Paths: []string{"README.md", "package.json", "src/index.js"}}, nil
	case "anthropic":
		backend = llm.NewAnthropicProvider(cfg.AnthropicAPIKey,
			llm.WithModel(cfg.AnthropicModel), llm.WithLogger(logger))
	default:
		backend = llm.NewGeminiProvider(cfg.GeminiAPIKey,
			llm.WithModel(cfg.GeminiModel), llm.WithLogger(logger))
	}
	if cfg.ProviderAPIKey() == "" {
		logger.Warn().Str("provider", cfg.LLMProvider).Msg("no API key configured, provider calls will fail")
	}

	prompts, err := generator.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("model", backend.ModelID()).Str("prompts_file", cfg.PromptsFile).Msg("generation provider ready")
	return generator.NewLLMProvider(backend, prompts, logger), nil
}

// runMaintenance prunes old run records and publishes the database size until ctx ends.
func runMaintenance(ctx context.Context, st *store.Store, m *metrics.Metrics, retention time.Duration, logger zerolog.Logger) {
	tick := func() {
		if retention > 0 {
			n, err := st.RunRetention(ctx, retention)
			if err != nil {
				logger.Warn().Err(err).Msg("run retention failed")
			} else if n > 0 {
				logger.Info().Int64("deleted", n).Msg("pruned finished runs")
			}
		}
		if size, err := st.DBSizeBytes(); err == nil {
			m.SetDBSize(float64(size))
		}
	}

	tick()
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}
