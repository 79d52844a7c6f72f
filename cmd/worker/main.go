package main

import (
	"Cabinet/config"
	"Cabinet/internal/derivative"
	"Cabinet/internal/logger"
	"Cabinet/internal/repo"
	"Cabinet/internal/storage"
	"Cabinet/internal/worker"
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	config.InitConfig()
	if err := config.Validate(); err != nil {
		logger.Log.Fatal().Err(err).Msg("config")
	}
	if err := logger.Init(config.AppConfig.LogLevel, config.AppConfig.LogFile); err != nil {
		logger.Log.Fatal().Err(err).Msg("init logger fail")
	}
	defer logger.Close()

	repo.InitDB()
	if err := storage.InitLocal(config.AppConfig.StoragePath); err != nil {
		logger.Log.Fatal().Err(err).Msg("init storage fail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Log.Info().Msg("derivative worker started")
	if err := worker.RunDerivativeWorker(ctx, derivative.NewGenerator()); err != nil {
		logger.Log.Fatal().Err(err).Msg("derivative worker stopped")
	}
}
