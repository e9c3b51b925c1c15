package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"autohub-chat/internal/chat"
	"autohub-chat/internal/config"
	"autohub-chat/internal/db"
	"autohub-chat/internal/directory"
	"autohub-chat/internal/logging"
	myMiddleware "autohub-chat/internal/middleware"
	"autohub-chat/internal/notify"
	"autohub-chat/internal/offer"
)

func main() {
	// 1. Config & logging
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("❌ Failed to load config: %v", err)
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	// 2. Connect to Database
	database, err := db.NewDatabase(cfg.Database)
	if err != nil {
		logger.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	defer database.Close()
	logger.Info("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		logger.Fatalf("❌ Migration failed: %v", err)
	}
	logger.Info("✅ Database schema initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Directory: push tokens, owner lookup, optional JWT identity
	directoryRepo := directory.NewRepository(database.Conn)
	directoryHandler := directory.NewHandler(directoryRepo, logger)

	var validator myMiddleware.TokenValidator
	if cfg.Auth.JWTSecret != "" {
		validator = directory.NewTokenService(cfg.Auth.JWTSecret)
		logger.Info("🔐 JWT identity enabled")
	} else {
		logger.Warn("⚠️ auth.jwt_secret not set, identifying connections by headers only")
	}
	identity := myMiddleware.NewIdentityMiddleware(validator)

	// 4. Push notifications
	var notifier chat.Notifier
	if cfg.Push.Enabled {
		notifier = notify.NewExpoDispatcher(cfg.Push.Endpoint, cfg.Push.AccessToken, cfg.Push.Timeout, directoryRepo, directoryRepo, logger)
		logger.WithField("endpoint", cfg.Push.Endpoint).Info("📲 Push notifications enabled")
	} else {
		notifier = notify.NewLogDispatcher(directoryRepo, logger)
	}

	// 5. Session registry, optionally relayed through Redis
	rooms := chat.NewRegistry(logger)
	var redisClient *redis.Client
	if cfg.Redis.FanoutEnabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if _, err := redisClient.Ping(ctx).Result(); err != nil {
			logger.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		relay := chat.NewRedisRelay(redisClient, cfg.Redis.ChannelPrefix, logger)
		if err := relay.Start(ctx, rooms.DeliverRelayed); err != nil {
			logger.Fatalf("❌ Failed to subscribe to Redis: %v", err)
		}
		rooms.UseRelay(relay)
		logger.Info("✅ Connected to Redis, cross-instance fan-out enabled")
	}

	// 6. Chat core
	chatHandler := chat.NewHandler(
		chat.NewMessageRepository(database.Conn),
		chat.NewConversationRepository(database.Conn),
		rooms,
		notifier,
		logger,
		chat.WithPersistTimeout(cfg.Chat.PersistTimeout),
		chat.WithPushTimeout(cfg.Push.Timeout),
		chat.WithSendBuffer(cfg.Chat.SendBuffer),
		chat.WithMaxMessageSize(cfg.Chat.MaxMessageSize),
	)

	offerHandler := offer.NewHandler(offer.NewRepository(database.Conn), logger)

	// 7. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", myMiddleware.HeaderUserID, myMiddleware.HeaderPartnerID},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if redisClient != nil {
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Write([]byte("ok"))
	})

	// Offer threads
	r.Post("/messages", offerHandler.Create)
	r.Get("/messages", offerHandler.List)

	r.Group(func(r chi.Router) {
		r.Use(identity.Handle)

		// WebSocket (Real-time)
		r.Get("/chat/ws", chatHandler.ServeWs)

		r.Get("/api/chats", chatHandler.RecentChats)
		r.Get("/api/chats/{requestID}/messages", chatHandler.GetChatHistory)
		r.Get("/api/chats/{requestID}/unread", chatHandler.GetUnreadCount)
		r.Post("/api/chats/{requestID}/read", chatHandler.MarkChatRead)

		r.Put("/api/users/{userID}/push-token", directoryHandler.RegisterPushToken)
	})

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		logger.Infof("🚀 Server starting on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("❌ Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("forced shutdown")
	}
	chatHandler.Wait()
	logger.Info("👋 Server exited")
}
