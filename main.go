package main

import (
	"Cabinet/config"
	"Cabinet/internal/derivative"
	"Cabinet/internal/logger"
	"Cabinet/internal/mq"
	"Cabinet/internal/repo"
	"Cabinet/internal/service"
	"Cabinet/internal/storage"
	"Cabinet/internal/task"
	"Cabinet/router"
	"Cabinet/utils"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

// main initializes services and starts the HTTP server.
func main() {
	config.InitConfig()
	if err := config.Validate(); err != nil {
		logger.Log.Fatal().Err(err).Msg("config")
	}
	if err := logger.Init(config.AppConfig.LogLevel, config.AppConfig.LogFile); err != nil {
		logger.Log.Fatal().Err(err).Msg("init logger fail")
	}
	defer logger.Close()

	if err := storage.InitLocal(config.AppConfig.StoragePath); err != nil {
		logger.Log.Fatal().Err(err).Msg("init storage fail")
	}
	repo.InitDB()
	repo.InitRedis()
	utils.InitCacheManager()
	storage.InitMinio()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := service.SeedAdmin(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("seed admin fail")
	}

	local := task.NewLocalDispatcher(ctx, derivative.NewGenerator())
	var queue *task.QueueDispatcher
	if config.AppConfig.DerivativeMode == "queue" {
		queue = task.NewQueueDispatcher(local)
		service.SetDerivativeDispatcher(queue)
		defer mq.ClosePublisher()
	} else {
		service.SetDerivativeDispatcher(local)
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              config.AppConfig.HTTPAddr,
		Handler:           router.InitRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Log.Info().Str("addr", srv.Addr).Str("derivatives", config.AppConfig.DerivativeMode).Msg("cabinet listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal().Err(err).Msg("http server stopped")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("http shutdown")
	}
	if queue != nil {
		queue.Wait()
	}
	local.Wait()
	logger.Log.Info().Msg("cabinet stopped")
}
