package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"courtside-chat/internal/chat"
	"courtside-chat/internal/config"
	"courtside-chat/internal/db"
	"courtside-chat/internal/directory"
	"courtside-chat/internal/handlers"
	"courtside-chat/internal/middleware"
	"courtside-chat/internal/observability"
	"courtside-chat/internal/rabbitmq"
	"courtside-chat/internal/repositories"
	"courtside-chat/internal/store"
	"courtside-chat/internal/telemetry"
	"courtside-chat/internal/ws"
)

func main() {
	cfg := config.Load()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing, err := observability.InitTracing(context.Background(), cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				log.Printf("tracing shutdown error: %v", err)
			}
		}()
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AuditExchange)
	defer auditPublisher.Close()
	auditEmitter := telemetry.NewAuditEmitter(auditPublisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment)

	if cfg.AMQPURL != "" {
		eventsPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.EventsExchange)
		if err != nil {
			log.Printf("event publisher disabled: %v", err)
		} else {
			observability.SetPublisher(eventsPublisher)
			defer eventsPublisher.Close()
		}
	}

	feed := store.NewFeed()

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	profileRepo := repositories.NewProfileRepo(database)

	service := chat.NewService(conversationRepo, messageRepo, profileRepo, feed)

	hub := ws.NewHub()

	conversationHandler := handlers.NewConversationHandler(service, auditEmitter)
	messageHandler := handlers.NewMessageHandler(service, profileRepo, auditEmitter)
	directoryHandler := handlers.NewDirectoryHandler(directory.NewClient(cfg.UserDirectoryURL))

	directoryWS := ws.NewDirectoryWebSocketHandler(service, hub, cfg.JWTSecret)
	streamWS := ws.NewStreamWebSocketHandler(service, hub, cfg.JWTSecret)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret)

	router.GET("/conversations", authMiddleware, conversationHandler.ListConversations)
	router.POST("/conversations/direct", authMiddleware, conversationHandler.StartDirectChat)
	router.POST("/conversations/group", authMiddleware, conversationHandler.CreateGroup)
	router.GET("/conversations/:conversation_id/messages", authMiddleware, messageHandler.GetMessages)
	router.POST("/conversations/:conversation_id/messages", authMiddleware, messageHandler.PostMessage)
	router.POST("/conversations/:conversation_id/read", authMiddleware, conversationHandler.MarkRead)

	router.GET("/directory/users", authMiddleware, directoryHandler.SearchUsers)

	router.GET("/ws/directory", directoryWS.Handle)
	router.GET("/ws/conversations/:conversation_id", streamWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterDebugRoutes(router, auditEmitter, hub, cfg.DebugEndpoints)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
