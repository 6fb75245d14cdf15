package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"edurelay/internal/chat"
	"edurelay/internal/config"
	"edurelay/internal/db"
	"edurelay/internal/directory"
	"edurelay/internal/httpapi"
	"edurelay/internal/logger"
	"edurelay/internal/relay"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(cfg.LogLevel, cfg.LogPath, cfg.Mode); err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = zap.L().Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.PoolMinConns, cfg.PoolMaxConns)
	if err != nil {
		zap.L().Fatal("db connection failed", zap.Error(err))
	}
	defer pool.Close()

	store := db.NewStore(pool, cfg.PoolAcquireTimeout)
	if err := store.Bootstrap(ctx); err != nil {
		zap.L().Fatal("schema bootstrap failed", zap.Error(err))
	}

	sessions := newSessionStore(ctx, cfg)
	dir := directory.New(store)

	telegram, err := relay.NewTelegram(cfg.BotToken)
	if err != nil {
		zap.L().Fatal("bot connection failed", zap.Error(err))
	}
	if err := telegram.SetCommands(); err != nil {
		zap.L().Warn("set bot commands failed", zap.Error(err))
	}

	machine := chat.NewMachine(sessions, store, dir, telegram, cfg.PageSize)
	machine.StartSessionSweeper(ctx, cfg.SessionTTL, cfg.SessionSweepInterval)

	admin := httpapi.NewServer(store, cfg.JWTSecret, cfg.JWTIssuer)
	httpServer := httpapi.NewHTTPServer(cfg.HTTPAddr, admin.Router())

	go func() {
		zap.L().Info("admin api listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("http server error", zap.Error(err))
		}
	}()

	go telegram.Run(ctx, machine.HandleEvent)
	zap.L().Info("bot running")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("shutdown error", zap.Error(err))
	}
}

// newSessionStore prefers redis when configured and reachable, with an
// in-process fallback so the bot still works on a single node without redis.
func newSessionStore(ctx context.Context, cfg config.Config) chat.SessionStore {
	if cfg.RedisAddr == "" {
		zap.L().Info("sessions in memory")
		return chat.NewMemorySessions()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		zap.L().Warn("redis unreachable, sessions in memory", zap.Error(err))
		return chat.NewMemorySessions()
	}
	zap.L().Info("sessions in redis", zap.String("addr", cfg.RedisAddr))
	return chat.NewRedisSessions(client, cfg.SessionTTL)
}
