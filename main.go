package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"teamquiz/config"
	"teamquiz/handlers"
	"teamquiz/middleware"
	"teamquiz/models"
	"teamquiz/routes"
	"teamquiz/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func newLogger(format string) (*zap.Logger, error) {
	if format == "console" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger, err := newLogger(cfg.LogFormat)
	if err != nil {
		log.Fatal("Failed to build logger:", err)
	}
	defer logger.Sync()

	db, err := config.InitDB(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := models.Migrate(db, cfg.DefaultMaxHints); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	var cache *services.SnapshotCache
	redisClient := config.InitRedis(cfg)
	if cfg.RedisHost != "" {
		cache = services.NewSnapshotCache(redisClient, cfg.SnapshotTTL, logger)
	}

	hub := services.NewHub(logger)
	session := services.NewSession(db, hub, logger, services.Options{
		MaxTeamSize:        cfg.MaxTeamSize,
		DeleteEmptyTeams:   cfg.DeleteEmptyTeams,
		WrongAnswerMessage: cfg.WrongAnswerMessage,
	}, services.WithSnapshotCache(cache))

	adminService := services.NewAdminService(session, services.NewAuthService(cfg.JWTSecret, cfg.AdminTokenTTL))
	socketHandler := handlers.NewSocketHandler(handlers.Services{
		Players:     services.NewPlayerService(session),
		Teams:       services.NewTeamService(session),
		Joins:       services.NewJoinService(session),
		Game:        services.NewGameService(session),
		Progression: services.NewProgressionService(session),
		Hints:       services.NewHintService(session),
		Admin:       adminService,
		Quiz:        services.NewQuizService(session),
	}, hub, logger)
	hub.SetHandler(socketHandler)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go hub.Run(ctx)

	// Storage is the source of truth; drop anything cached by a previous process.
	if _, err := session.Views().Refresh(ctx); err != nil {
		logger.Warn("failed to warm public view", zap.Error(err))
	}

	gameHandler := handlers.NewGameHandler(session.Views(), logger)
	quizHandler := handlers.NewQuizHandler(session.Views(), logger)

	router := gin.Default()
	router.Use(middleware.CORS())
	routes.SetupRoutes(router, gameHandler, quizHandler, hub, adminService, logger)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("db_driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	stop()
	if err := redisClient.Close(); err != nil {
		logger.Warn("failed to close redis client", zap.Error(err))
	}
	logger.Info("server stopped")
}
