package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"careportal/internal/config"
	"careportal/internal/domain/care"
	"careportal/internal/events"
	"careportal/internal/handler"
	"careportal/internal/middleware"
	portalredis "careportal/internal/redis"
	"careportal/internal/repository"
	"careportal/internal/services"
	"careportal/internal/websocket"
	"careportal/pkg/database"
	"careportal/pkg/logger"
	"careportal/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l := logger.New(cfg.Server.Environment)
	defer l.Logger.Sync()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	redisClient := portalredis.NewClient(portalredis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repositories
	messageRepo := repository.NewMessageRepository(db)
	userRepo := repository.NewUserRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)

	// Delivery channel
	channel := events.NewRedisChannel(redisClient, l)

	// Services
	authService := services.NewAuthService(userRepo, cfg)
	careService := services.NewCareService(userRepo, assignmentRepo)
	messageService := services.NewMessageService(messageRepo, careService, channel, l)

	// WebSocket fan-out
	hub := websocket.NewHub()
	go hub.Run(ctx)
	bridge := websocket.NewRedisBridge(portalredis.NewSubscriber(redisClient), hub)
	go func() {
		if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
			l.Errorf("redis bridge stopped: %v", err)
		}
	}()

	// Handlers
	authHandler := handler.NewAuthHandler(authService)
	messageHandler := handler.NewMessageHandler(messageService, cfg.Chat)
	careHandler := handler.NewCareHandler(careService, messageService)
	wsHandler := websocket.NewHandler(authService, careService, hub)

	if cfg.Server.Environment == logger.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware(l))
	r.Use(middleware.ErrorHandler(l))

	r.GET("/healthz", func(c *gin.Context) {
		if err := database.Ping(db); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		if err := portalredis.Ping(c.Request.Context(), redisClient); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1")
	{
		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)

		authed := api.Group("")
		authed.Use(middleware.AuthMiddleware(authService))
		{
			authed.POST("/messages", messageHandler.Send)
			authed.GET("/messages", messageHandler.List)
			authed.GET("/messages/settings", messageHandler.Settings)
			authed.POST("/messages/:id/delivered", messageHandler.MarkDelivered)
			authed.POST("/messages/:id/read", messageHandler.MarkRead)

			authed.GET("/care/doctor", middleware.RequireRole(care.RolePatient), careHandler.MyDoctor)
			authed.GET("/care/patients", middleware.RequireRole(care.RoleDoctor), careHandler.MyPatients)

			admin := authed.Group("/admin", middleware.RequireRole(care.RoleAdmin))
			admin.POST("/assignments", careHandler.AssignDoctor)
			admin.GET("/conversations/counts", careHandler.ConversationCounts)
		}

		api.GET("/ws", wsHandler.Connect)
	}

	l.Infof("Starting server on port %s", cfg.Server.Port)
	if err := r.Run(fmt.Sprintf(":%s", cfg.Server.Port)); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
