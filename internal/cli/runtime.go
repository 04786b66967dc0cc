package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"fitQuestAPI/internal/achievement"
	"fitQuestAPI/internal/config"
	"fitQuestAPI/internal/store"
	"fitQuestAPI/services"
	"fitQuestAPI/utils"
)

// Runtime is the service graph the store-backed commands operate on.
// Push delivery is not wired; notifications re-driven from the CLI land
// in-app only.
type Runtime struct {
	Store  store.Store
	Game   *services.GamificationService
	Fanout *services.FanoutService
	Config *config.Config
}

func (rt *Runtime) Close() {
	rt.Store.Close()
}

// OpenFunc builds a Runtime. Tests substitute one backed by a memory store.
type OpenFunc func(ctx context.Context) (*Runtime, error)

// OpenFromEnv loads configuration the same way the API server does.
func OpenFromEnv(ctx context.Context) (*Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := utils.InitLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.StoreBackend, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	catalog, err := achievement.Default()
	if err != nil {
		st.Close()
		return nil, err
	}
	rt := NewRuntime(st, catalog, cfg, logger)
	return rt, nil
}

func NewRuntime(st store.Store, catalog *achievement.Catalog, cfg *config.Config, logger *zap.Logger) *Runtime {
	statsSvc := services.NewStatsService(st, cfg.Location, cfg.TxMaxAttempts, logger)
	achievements := services.NewAchievementService(st, catalog, cfg.TxMaxAttempts, logger)
	notifier := services.NewNotificationService(st, nil, logger)
	fanout := services.NewFanoutService(st, catalog, notifier, services.NewStoreFollowerDirectory(st), cfg.NotifyClaimLease, logger)
	game := services.NewGamificationService(st, statsSvc, achievements, fanout, cfg.TxMaxAttempts, logger)
	return &Runtime{Store: st, Game: game, Fanout: fanout, Config: cfg}
}
