package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/parley/internal/api"
	"github.com/lalith-99/parley/internal/chat"
	"github.com/lalith-99/parley/internal/config"
	"github.com/lalith-99/parley/internal/db"
	"github.com/lalith-99/parley/internal/events"
	"github.com/lalith-99/parley/internal/middleware"
	"github.com/lalith-99/parley/internal/observ"
	"github.com/lalith-99/parley/internal/realtime"
	"github.com/lalith-99/parley/internal/repository"
	"github.com/lalith-99/parley/internal/repository/memory"
	"github.com/lalith-99/parley/internal/repository/postgres"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// ---------------------------------------------------------------
	// Stores. PARLEY_STORE=memory runs everything in-process, no
	// database needed — handy for local development and demos. The
	// default is Postgres.
	// ---------------------------------------------------------------
	var (
		rooms       repository.RoomStore
		memberships repository.MembershipStore
		messages    repository.MessageStore
		users       repository.UserStore
		identities  repository.IdentityProvider
	)
	switch cfg.Store {
	case "memory":
		store := memory.NewStore()
		rooms = store.Rooms
		memberships = store.Memberships
		messages = store.Messages
		users = store.Users
		identities = store.Users
		logger.Warn("using in-memory store, data will not survive a restart")
	default:
		// Startup has no parent request or deadline, so Background()
		// is the right root context here.
		database, err := db.New(context.Background(), cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer database.Close()

		pool := database.Pool()
		rooms = postgres.NewRoomStore(pool)
		memberships = postgres.NewMembershipStore(pool)
		messages = postgres.NewMessageStore(pool)
		userStore := postgres.NewUserStore(pool)
		users = userStore
		identities = userStore
	}

	// ---------------------------------------------------------------
	// Event sinks. Every send/join/leave fans out to all of them:
	// structured log, websocket clients on this process, and (when
	// REDIS_URL is set) a Redis channel for other processes.
	// ---------------------------------------------------------------
	hub := realtime.NewHub(memberships, logger)
	sinks := events.Fanout{events.NewLogSink(logger), hub}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer client.Close()
		sinks = append(sinks, events.NewRedisSink(client, logger))
	}

	svc := chat.NewService(rooms, memberships, messages, identities, sinks, logger, chat.Options{
		Policy:                  chat.ParseMatchPolicy(cfg.MatchPolicy),
		SeeMessagesBeforeJoined: cfg.SeeMessagesBeforeJoined,
		CreateSystemMessages:    cfg.CreateSystemMessages,
		SenderReadsOwnMessages:  cfg.SenderReadsOwnMessages,
	})

	authHandler := api.NewAuthHandler(users, cfg.JWTSecret, logger)
	roomHandler := api.NewRoomHandler(svc, logger)
	messageHandler := api.NewMessageHandler(svc, logger)
	participantHandler := api.NewParticipantHandler(svc, logger)
	unreadHandler := api.NewUnreadHandler(svc, logger)

	srv := gin.New()
	srv.Use(gin.Logger(), gin.Recovery())

	logger.Info("starting Parley",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
		zap.String("store", cfg.Store),
		zap.String("match_policy", chat.ParseMatchPolicy(cfg.MatchPolicy).String()),
	)

	// Public: health for load balancers, metrics for Prometheus, and
	// the two endpoints that produce a JWT in the first place.
	srv.GET("/v1/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	srv.GET("/metrics", gin.WrapH(promhttp.Handler()))
	srv.POST("/v1/auth/signup", authHandler.Signup)
	srv.POST("/v1/auth/login", authHandler.Login)

	// Everything else requires a valid JWT.
	v1 := srv.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	v1.GET("/rooms", roomHandler.List)
	v1.POST("/rooms", roomHandler.Create)
	// Not nested under /rooms: a literal segment there would collide
	// with the :id wildcard in gin's route tree.
	v1.GET("/personal-room", roomHandler.Personal)
	v1.GET("/rooms/:id", roomHandler.Get)
	v1.DELETE("/rooms/:id", roomHandler.Delete)
	v1.POST("/rooms/:id/read", roomHandler.MarkRead)

	v1.POST("/rooms/:id/messages", messageHandler.Send)
	v1.POST("/messages", messageHandler.SendDirect)
	v1.DELETE("/messages/:id", messageHandler.Delete)
	v1.POST("/messages/:id/read", messageHandler.MarkRead)

	v1.GET("/rooms/:id/participants", participantHandler.List)
	v1.POST("/rooms/:id/participants", participantHandler.Add)
	v1.DELETE("/rooms/:id/participants/:kind/:pid", participantHandler.Remove)
	v1.PUT("/rooms/:id/participants", participantHandler.Sync)

	v1.GET("/unread", unreadHandler.HasUnread)
	v1.GET("/ws", hub.ServeWS)

	return srv.Run(":" + cfg.Port)
}
