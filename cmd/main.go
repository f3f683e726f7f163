package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/immxrtalbeast/meetchat/internal/api/http"
	"github.com/immxrtalbeast/meetchat/internal/auth"
	"github.com/immxrtalbeast/meetchat/internal/config"
	"github.com/immxrtalbeast/meetchat/internal/events"
	"github.com/immxrtalbeast/meetchat/internal/registry"
	"github.com/immxrtalbeast/meetchat/internal/repository"
	"github.com/immxrtalbeast/meetchat/internal/repository/model"
	"github.com/immxrtalbeast/meetchat/internal/service"
	"github.com/immxrtalbeast/meetchat/lib/logger/slogpretty"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	db, err := connectDatabase(cfg.Database)
	if err != nil {
		log.Error("failed to connect database", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	messageStore := repository.NewCachedMessageStore(
		repository.NewPostgresMessageStore(db),
		repository.NewRedisHistoryCache(redisClient, cfg.Chat.RetainPerRoom, log),
		log,
	)
	meetingRepo := repository.NewPostgresMeetingRepository(db)
	userRepo := repository.NewPostgresUserRepository(db)

	verifier := auth.NewTokenVerifier(cfg.Auth.JWTSecret)
	reg := registry.New(verifier, userRepo, log)

	roomService := service.NewRoomService(meetingRepo, log)
	chatService := service.NewChatService(messageStore, roomService, cfg.Chat.PerSenderLimit, cfg.Chat.HistoryLimit, log)
	notifyService := service.NewNotifyService(reg, log)

	chatController := httpapi.NewChatController(reg, roomService, chatService, verifier, cfg.Chat.IdleTimeout, log)
	pollController := httpapi.NewPollController(chatController, cfg.Chat.IdleTimeout, log)

	router := httpapi.SetupRouter(chatController, pollController)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	subscriber := events.NewSubscriber(redisClient, notifyService, roomService, log)
	go func() {
		if err := subscriber.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("meeting events subscriber stopped", slog.Any("error", err))
		}
	}()
	go pollController.RunJanitor(ctx)

	server := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	go func() {
		log.Info("starting application", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", slog.Any("error", err))
	}
	_ = redisClient.Close()
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is empty")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	db.AutoMigrate(&model.ChatMessage{}, &model.Meeting{}, &model.User{})

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
