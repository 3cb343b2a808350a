package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/unveil/config"
	"github.com/d60-Lab/unveil/internal/api/handler"
	"github.com/d60-Lab/unveil/internal/api/router"
	"github.com/d60-Lab/unveil/internal/gate"
	"github.com/d60-Lab/unveil/internal/realtime"
	"github.com/d60-Lab/unveil/internal/repository"
	"github.com/d60-Lab/unveil/internal/reveal"
	"github.com/d60-Lab/unveil/internal/service"
	"github.com/d60-Lab/unveil/pkg/auth"
	"github.com/d60-Lab/unveil/pkg/cache"
	"github.com/d60-Lab/unveil/pkg/database"
	"github.com/d60-Lab/unveil/pkg/logger"
	"github.com/d60-Lab/unveil/pkg/tracing"
)

// @title Unveil API
// @version 1.0
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg.Log); err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg); err != nil {
		logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Sentry.Environment}); err != nil {
			return err
		}
		defer sentry.Flush(2 * time.Second)
	}

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	db, err := database.InitDB(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()
	if err := database.Migrate(db); err != nil {
		return err
	}

	rdb, err := cache.InitRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	policy, err := reveal.New(cfg.Reveal.Thresholds)
	if err != nil {
		return err
	}

	users := repository.NewUserRepository(db)
	convs := repository.NewConversationRepository(db)
	profiles := service.NewProfileCache(users, rdb, cfg.Redis.ProfileTTL)
	hub := realtime.NewHub(realtime.Options{
		TypingInterval: cfg.Realtime.TypingInterval,
		SendBuffer:     cfg.Realtime.SendBuffer,
	})
	g := gate.New(gate.Options{
		MinInterval: cfg.Chat.MinSendInterval,
		TaskTimeout: cfg.Chat.SendTimeout,
		IdleTTL:     cfg.Chat.GateIdleTTL,
	})

	chat := service.NewChatService(db, convs, repository.NewMessageRepository(db), profiles, g, policy, hub, service.ChatOptions{
		MaxContentLength: cfg.Chat.MaxContentLength,
		DefaultPageSize:  cfg.Chat.DefaultPageSize,
		MaxPageSize:      cfg.Chat.MaxPageSize,
		MaxVoiceDuration: cfg.Chat.MaxVoiceDuration,
		LockTimeout:      cfg.Database.LockTimeout,
		Retry: service.RetryOptions{
			MaxTries:        cfg.Chat.Retry.MaxTries,
			InitialInterval: cfg.Chat.Retry.InitialInterval,
			MaxInterval:     cfg.Chat.Retry.MaxInterval,
		},
	})
	discovery := service.NewDiscoveryService(db, users, repository.NewLikeRepository(db),
		repository.NewMatchRepository(db), convs, profiles)
	profileSvc := service.NewProfileService(users, profiles)

	issuer := auth.NewIssuer(cfg.JWT)
	h := handler.New(chat, discovery, profileSvc, hub, issuer, cfg.Realtime)
	engine := router.Setup(h, issuer, router.Options{
		ServiceName: cfg.Tracing.ServiceName,
		Mode:        cfg.Server.Mode,
		Swagger:     cfg.Server.Mode != gin.ReleaseMode,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
