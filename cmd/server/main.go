package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/karaoke-session-system/internal/auth"
	"github.com/karaoke-session-system/internal/challenge"
	"github.com/karaoke-session-system/internal/config"
	"github.com/karaoke-session-system/internal/health"
	"github.com/karaoke-session-system/internal/invitation"
	"github.com/karaoke-session-system/internal/middleware"
	"github.com/karaoke-session-system/internal/queue"
	"github.com/karaoke-session-system/internal/session"
	"github.com/karaoke-session-system/internal/skipvote"
	"github.com/karaoke-session-system/internal/user"
	"github.com/karaoke-session-system/internal/ws"
	"github.com/karaoke-session-system/internal/youtube"
	"github.com/karaoke-session-system/pkg/database"
	"github.com/karaoke-session-system/pkg/database/memstore"
	"github.com/karaoke-session-system/pkg/events"
	"github.com/karaoke-session-system/pkg/logger"
	"github.com/karaoke-session-system/pkg/metrics"
	"github.com/karaoke-session-system/pkg/redis"
)

func main() {
	cfg := config.Load()

	mode := logger.DevelopmentMode
	if cfg.IsProduction() {
		mode = logger.ProductionMode
		gin.SetMode(gin.ReleaseMode)
	}
	log := logger.New(mode)
	logger.SetGlobalLogger(log)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := openStore(cfg, log)

	// Redis is optional: without it caching is off and session contexts
	// live in memory.
	cache := redis.NewCache(nil)
	var contexts user.ContextStore = user.NewMemoryContextStore()
	if cfg.RedisHost != "" {
		redisClient := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisHost + ":" + cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warnf("Redis at %s is unreachable: %v", cfg.RedisHost, err)
		}
		cache = redis.NewCache(redisClient)
		contexts = redis.NewContextStore(redisClient)
	}

	feed := events.NewFeed(0, log)
	var publisher events.Publisher = feed
	if len(cfg.KafkaBrokers) > 0 {
		groupID := cfg.KafkaGroupID
		if groupID == "" {
			groupID = "karaoke-ws-" + uuid.NewString()
		}
		kafkaClient := events.NewKafkaClient(cfg.KafkaBrokers, cfg.KafkaTopic, groupID, log)
		defer kafkaClient.Close()
		publisher = kafkaClient
		go consumeChanges(ctx, kafkaClient, feed, log)
		log.Infof("Publishing change events to Kafka topic %s", cfg.KafkaTopic)
	}

	router := buildRouter(cfg, store, cache, contexts, feed, publisher, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Server starting on port %s (store=%s, env=%s)", cfg.Port, cfg.StoreDriver, cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Failed to start server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Graceful shutdown failed: %v", err)
	}
}

// buildRouter wires services and handlers onto a new engine. Change events
// go out through publisher; websocket clients read them back from feed.
func buildRouter(cfg *config.Config, store database.Store, cache *redis.Cache, contexts user.ContextStore, feed *events.Feed, publisher events.Publisher, log *logger.Logger) *gin.Engine {
	// Initialize services
	userService := user.NewService(store, contexts, cfg.JWTSecret, cfg.JWTExpiry)
	sessionService := session.NewService(store, cache, publisher, log)
	queueService := queue.NewService(store, sessionService, publisher, log)
	skipService := skipvote.NewService(store, sessionService, queueService, publisher, log)
	challengeService := challenge.NewService(store, sessionService, queueService, publisher, log)
	invitationService := invitation.NewService(store, sessionService, cfg.AppURL, publisher, log)
	youtubeClient := youtube.NewClient(cfg.YouTubeAPIKey, cache, log)

	// Initialize handlers
	authHandler := auth.NewHandler(userService, cfg.JWTSecret, cfg.JWTExpiry, cfg.IsProduction())
	userHandler := user.NewHandler(userService)
	sessionHandler := session.NewHandler(sessionService)
	queueHandler := queue.NewHandler(queueService)
	skipHandler := skipvote.NewHandler(skipService)
	challengeHandler := challenge.NewHandler(challengeService)
	invitationHandler := invitation.NewHandler(invitationService)
	youtubeHandler := youtube.NewHandler(youtubeClient)
	wsHandler := ws.NewHandler(feed, sessionService, queueService, cfg.CORSOrigins, log)
	healthHandler := health.NewHandler(cfg, store, cache, cache.Enabled())

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.LoggingMiddleware(log),
		metrics.Middleware(),
		middleware.TimeoutMiddleware(cfg.RequestTimeout),
		middleware.ErrorHandler(),
	)

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
	}))

	router.GET("/health", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	// Public routes
	authHandler.RegisterRoutes(v1, userService)
	youtubeHandler.RegisterRoutes(v1)

	// Protected routes
	protected := v1.Group("")
	protected.Use(auth.AuthMiddleware(cfg.JWTSecret, userService))
	{
		userHandler.RegisterRoutes(protected)
		sessionHandler.RegisterRoutes(protected)
		queueHandler.RegisterRoutes(protected)
		skipHandler.RegisterRoutes(protected)
		challengeHandler.RegisterRoutes(protected)
		invitationHandler.RegisterRoutes(protected)

		// WebSocket endpoint
		protected.GET("/ws/:sessionId", wsHandler.HandleWebSocket)
		protected.GET("/ws/:sessionId/online", wsHandler.HandleOnline)
	}

	return router
}

func openStore(cfg *config.Config, log *logger.Logger) database.Store {
	if cfg.StoreDriver == config.StoreMemory {
		log.Warnf("Using the in-memory store; data is lost on restart")
		return memstore.New()
	}

	db, err := database.NewMySQLDB(
		cfg.MySQLHost,
		cfg.MySQLPort,
		cfg.MySQLUser,
		cfg.MySQLPassword,
		cfg.MySQLDatabase,
		!cfg.IsProduction(),
	)
	if err != nil {
		log.Logger.Fatal("Failed to connect to database: " + err.Error())
	}
	return db
}

// consumeChanges feeds events from other instances into the local feed,
// reconnecting after read failures until ctx ends.
func consumeChanges(ctx context.Context, kafkaClient *events.KafkaClient, feed *events.Feed, log *logger.Logger) {
	backoff := time.Second
	for {
		err := kafkaClient.ConsumeEvents(ctx, func(event events.ChangeEvent) error {
			return feed.Publish(ctx, event)
		})
		if ctx.Err() != nil {
			return
		}
		log.Errorf("Change event consumer stopped: %v; retrying in %s", err, backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
