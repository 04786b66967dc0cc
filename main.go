package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fitQuestAPI/handlers"
	"fitQuestAPI/internal/achievement"
	"fitQuestAPI/internal/cache"
	"fitQuestAPI/internal/config"
	"fitQuestAPI/internal/notification"
	"fitQuestAPI/internal/store"
	"fitQuestAPI/internal/workers"
	"fitQuestAPI/middleware"
	"fitQuestAPI/services"
	"fitQuestAPI/utils"
)

var (
	cfg              *config.Config
	logger           *zap.Logger
	dataStore        store.Store
	achievementCache *cache.AchievementCache
	dispatcher       *services.NotificationDispatcher
	statsService     *services.StatsService
	achievementSvc   *services.AchievementService
	gameService      *services.GamificationService
	recordService    *services.PersonalRecordService
	fanoutService    *services.FanoutService
	notificationSvc  *services.NotificationService
	sweeper          *workers.NotificationSweeper
)

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger, err = utils.InitLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatal("Failed to init logger:", err)
	}

	if cfg.ClerkSecretKey != "" {
		clerk.SetKey(cfg.ClerkSecretKey)
		logger.Info("clerk_initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dataStore, err = store.Open(ctx, cfg.StoreBackend, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("store_open_failed", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	logger.Info("store_ready", zap.String("backend", cfg.StoreBackend))

	catalog, err := achievement.Default()
	if err != nil {
		logger.Fatal("catalog_load_failed", zap.Error(err))
	}

	fcmService, err := notification.NewFCMService(ctx, cfg.FCMCredentialsFile, logger)
	if err != nil {
		logger.Warn("fcm_unavailable", zap.Error(err))
	} else {
		dispatcher = services.NewNotificationDispatcher(dataStore, fcmService, logger)
		logger.Info("fcm_initialized")
	}

	statsService = services.NewStatsService(dataStore, cfg.Location, cfg.TxMaxAttempts, logger)
	achievementSvc = services.NewAchievementService(dataStore, catalog, cfg.TxMaxAttempts, logger)

	if cfg.RedisAddr != "" {
		achievementCache, err = cache.NewAchievementCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.CacheTTL, logger)
		if err != nil {
			logger.Warn("redis_unavailable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			achievementSvc.SetCache(achievementCache)
		}
	}

	notificationSvc = services.NewNotificationService(dataStore, dispatcher, logger)
	fanoutService = services.NewFanoutService(
		dataStore,
		catalog,
		notificationSvc,
		services.NewStoreFollowerDirectory(dataStore),
		cfg.NotifyClaimLease,
		logger,
	)
	gameService = services.NewGamificationService(dataStore, statsService, achievementSvc, fanoutService, cfg.TxMaxAttempts, logger)
	recordService = services.NewPersonalRecordService(dataStore, gameService, logger)

	sweeper, err = workers.NewNotificationSweeper(fanoutService, cfg.NotifySweepInterval, cfg.NotifySweepBatch, logger)
	if err != nil {
		logger.Fatal("sweeper_init_failed", zap.Error(err))
	}

	utils.InitMetrics()
	middleware.InitPrometheus()
}

func main() {
	defer func() {
		logger.Info("closing_store")
		dataStore.Close()
		_ = logger.Sync()
	}()

	if err := sweeper.Start(); err != nil {
		logger.Fatal("sweeper_start_failed", zap.Error(err))
	}

	gameHandler := handlers.NewGamificationHandler(gameService, recordService)
	achievementHandler := handlers.NewAchievementHandler(achievementSvc, statsService, dataStore)
	notificationHandler := handlers.NewNotificationHandler(notificationSvc, dataStore)

	r := mux.NewRouter()

	limiter := middleware.NewRateLimiter(rate.Limit(5), 30)
	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	defer stopCleanup()
	go limiter.CleanupVisitors(cleanupCtx)

	r.Use(limiter.Middleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(cfg.MetricsUser, cfg.MetricsPass)(promhttp.Handler()))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := dataStore.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "store unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "fitQuest-api"}`))
	}).Methods("GET")

	// -------------------------------------------------------------------------
	// INTERNAL ROUTES (SERVICE TOKEN)
	// -------------------------------------------------------------------------
	internal := r.PathPrefix("/internal/v1").Subrouter()
	internal.Use(middleware.ServiceTokenMiddleware(cfg.ServiceToken))
	handlers.RegisterInternalRoutes(internal, gameHandler, achievementHandler)

	// -------------------------------------------------------------------------
	// USER ROUTES (CLERK JWT)
	// -------------------------------------------------------------------------
	if cfg.ClerkSecretKey != "" {
		api := r.PathPrefix("/api/v1").Subrouter()
		api.Use(middleware.ClerkAuthMiddleware)
		handlers.RegisterUserRoutes(api, achievementHandler, notificationHandler)
	} else {
		logger.Warn("user_routes_disabled", zap.String("reason", "CLERK_SECRET_KEY not set"))
	}

	corsHandler := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins([]string{"*"}),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		gorillaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorillaHandlers.AllowCredentials(),
	)

	server := http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server_starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server_failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("shutdown_signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_failed", zap.Error(err))
	}
	if err := sweeper.Stop(); err != nil {
		logger.Warn("sweeper_stop_failed", zap.Error(err))
	}
	if dispatcher != nil {
		dispatcher.Stop()
	}
	if achievementCache != nil {
		if err := achievementCache.Close(); err != nil {
			logger.Warn("redis_close_failed", zap.Error(err))
		}
	}

	logger.Info("shutdown_complete")
}
