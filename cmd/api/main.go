package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/abduss/budgetauth/internal/auth"
	"github.com/abduss/budgetauth/internal/avatar"
	"github.com/abduss/budgetauth/internal/config"
	"github.com/abduss/budgetauth/internal/logger"
	"github.com/abduss/budgetauth/internal/server"
	"github.com/abduss/budgetauth/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logg, err := logger.Init()
	if err != nil {
		panic("init logger: " + err.Error())
	}
	defer logg.Sync()

	cfg, err := config.Load()
	if err != nil {
		logg.Fatal("load config", zap.Error(err))
	}
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logg.Fatal("connect postgres", zap.Error(err))
	}
	defer dbPool.Close()

	if err := storage.Migrate(ctx, dbPool); err != nil {
		logg.Fatal("migrate postgres", zap.Error(err))
	}

	deps := server.Dependencies{
		Config: cfg,
		DB:     dbPool,
		Logger: logg,
	}

	var avatars auth.AvatarResolver
	if cfg.Avatar.BaseURL != "" {
		static, err := avatar.NewStaticResolver(cfg.Avatar.BaseURL)
		if err != nil {
			logg.Fatal("configure avatar urls", zap.Error(err))
		}
		avatars = static
	} else {
		minioClient, err := storage.NewMinIOClient(cfg.MinIO)
		if err != nil {
			logg.Fatal("connect minio", zap.Error(err))
		}
		if err := storage.EnsureBucket(ctx, minioClient, cfg.MinIO.AvatarBucket, cfg.MinIO.Region); err != nil {
			logg.Fatal("ensure avatar bucket", zap.Error(err))
		}
		avatars = avatar.NewPresignedResolver(minioClient, cfg.MinIO.AvatarBucket, cfg.Avatar.URLTTL)
		deps.ObjectStore = minioClient
	}

	authRepo := auth.NewRepository(dbPool)
	tokens := auth.NewTokenIssuer(cfg.Auth)
	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	deps.AuthService = auth.NewService(authRepo, hasher, tokens, avatars, logg.Named("auth"))

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      server.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logg.Info("budgetauth API listening", zap.String("address", cfg.Server.Address()))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logg.Info("shutting down gracefully")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logg.Error("shutdown error", zap.Error(err))
	}
}
