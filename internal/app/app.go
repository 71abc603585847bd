// Package app wires configuration into a ready scanner: slot store,
// provider, metrics, history and the orchestrator.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"sentinel/internal/adapters/fakeprovider"
	"sentinel/internal/adapters/gemini"
	"sentinel/internal/adapters/memory"
	pg "sentinel/internal/adapters/postgres"
	"sentinel/internal/adapters/sqlite"
	"sentinel/internal/config"
	"sentinel/internal/metrics"
	"sentinel/internal/ports"
	"sentinel/internal/services/history"
	"sentinel/internal/services/scanner"
	"sentinel/internal/services/stats"
)

type App struct {
	Scanner *scanner.Service
	Metrics *metrics.Metrics
	Store   string

	closers []func()
}

// Build opens the configured store, loads persisted history and returns the
// wired scanner. Close releases the store.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{Metrics: metrics.New(), Store: cfg.ResolvedStore()}

	slots, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	provider, err := newProvider(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	hist := history.New(slots.Slot(ports.HistorySlot), history.WithLogger(log))
	opts := []scanner.Option{scanner.WithLogger(log), scanner.WithMetrics(a.Metrics)}
	if cfg.LifetimeStats {
		opts = append(opts, scanner.WithLifetimeStats(stats.NewLifetime(slots.Slot(ports.StatsSlot))))
	}
	a.Scanner = scanner.New(provider, hist, opts...)
	a.Scanner.Load(ctx)

	log.Info("scanner ready", "store", a.Store, "provider", cfg.Provider, "lifetime_stats", cfg.LifetimeStats)
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg config.Config) (ports.SlotStore, error) {
	switch a.Store {
	case config.StorePostgres:
		db, err := pg.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return db, nil
	case config.StoreSQLite:
		st, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = st.Close() })
		return st, nil
	case config.StoreMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store %q", a.Store)
	}
}

func newProvider(cfg config.Config) (ports.AnalysisProvider, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return gemini.New(gemini.Options{
			BaseURL: cfg.GeminiBaseURL,
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			Timeout: cfg.ProviderTimeout,
			Retries: cfg.ProviderRetries,
		}), nil
	case config.ProviderFake:
		return fakeprovider.NewHeuristic(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
