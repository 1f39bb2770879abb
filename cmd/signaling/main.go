package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/haven-health/consult-signaling/config"
	"github.com/haven-health/consult-signaling/internal/handlers"
	"github.com/haven-health/consult-signaling/internal/invite"
	"github.com/haven-health/consult-signaling/internal/middleware"
	"github.com/haven-health/consult-signaling/internal/presence"
	"github.com/haven-health/consult-signaling/internal/redis"
	"github.com/haven-health/consult-signaling/internal/session"
)

func main() {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	log := zerolog.New(w).Level(level).With().Timestamp().Logger()

	var mirror *redis.Mirror
	if cfg.RedisEnabled {
		mirror, err = redis.Connect(cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer mirror.Close()
		log.Info().Msg("Redis connection established")
	}

	registry := session.NewRegistry()
	coordinator := session.NewCoordinator(registry, mirror, cfg.RoomIdleTimeout, log)
	tracker := presence.NewTracker(coordinator.Disconnect, mirror, log)
	broker := invite.NewBroker(tracker, cfg.RingTimeout, log)
	server := handlers.NewServer(coordinator, broker, tracker, cfg.JWTSecret, log)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api")
	{
		// Login endpoint (public, development stand-in for the account
		// service)
		apiGroup.POST("/auth/login", handlers.Login(cfg.JWTSecret))

		// Live room status (requires JWT)
		apiGroup.GET("/rooms/:roomId", middleware.JWTAuth(cfg.JWTSecret), handlers.RoomStatus(coordinator))
	}

	wsGroup := router.Group("/ws")
	{
		// The per-client event channel carrying the whole call protocol
		wsGroup.GET("/call", server.HandleCall)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("starting call signaling server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
}
