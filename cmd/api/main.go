package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pg-user-api/internal/config"
	"pg-user-api/internal/credential"
	"pg-user-api/internal/database"
	"pg-user-api/internal/handlers"
	"pg-user-api/internal/logger"
	"pg-user-api/internal/metrics"
	"pg-user-api/internal/middleware"
	"pg-user-api/internal/repository"
	"pg-user-api/internal/service"
	"pg-user-api/internal/staging"
	"pg-user-api/internal/utils"
)

func main() {
	cfg := config.MustLoad()

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.EnsureSchema(ctx, db); err != nil {
		return err
	}
	log.Info("database ready", zap.String("driver", cfg.Database.Driver))

	ids, err := utils.NewIDGenerator(cfg.IDs.SnowflakeNode)
	if err != nil {
		return err
	}

	var stager service.PhotoStager = staging.NopStager{}
	if cfg.Upload.StagingEnabled() {
		key, err := cfg.Upload.Key()
		if err != nil {
			return err
		}
		disk, err := staging.NewDiskStager(cfg.Upload.StagingDir, key)
		if err != nil {
			return err
		}
		stager = disk
		log.Info("photo staging enabled", zap.String("dir", cfg.Upload.StagingDir))
	}

	repo := repository.NewUserRepo(db)
	auth := service.NewAuthService(repo, credential.New(cfg.Auth.BcryptCost), ids, stager, log.Named("auth"),
		service.Options{
			RecordLogins:  cfg.Auth.RecordLogins,
			MaxPhotoBytes: cfg.Upload.MaxPhotoBytes,
		})

	if err := auth.EnsureAdmin(ctx, service.AdminSeed{
		Email:    cfg.Admin.Email,
		Password: cfg.Admin.Password,
		Name:     cfg.Admin.Name,
		Phone:    cfg.Admin.Phone,
	}); err != nil {
		log.Error("creating default admin", zap.Error(err))
	}

	m := metrics.NewManager("pg_user_api")

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logging(log.Named("http")),
		middleware.CORS(cfg.CORS),
	)
	if cfg.Metrics.Enabled {
		router.Use(middleware.Metrics(m))
		router.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}
	if err := router.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return err
	}
	// multipart parts past this size spill to temp files
	router.MaxMultipartMemory = cfg.Upload.MaxPhotoBytes + (1 << 20)

	handlers.New(auth, repo, m, log.Named("handlers"), handlers.Options{
		ExposeErrors:  cfg.IsDevelopment(),
		MaxPhotoBytes: cfg.Upload.MaxPhotoBytes,
		PingTimeout:   cfg.Database.PingTimeout,
	}).RegisterRoutes(router)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	log.Info("server is shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}
