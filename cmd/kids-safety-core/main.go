package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/meiriv/kids-sports-safety-app/common/logger"
	"github.com/meiriv/kids-sports-safety-app/internal/config"
	"github.com/meiriv/kids-sports-safety-app/internal/service"
)

func main() {
	// 1. config
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. logger
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "kids-safety-core")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. service
	core, err := service.NewCoreService(cfg, log)
	if err != nil {
		log.Fatal("Failed to create core service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serviceErrChan := make(chan error, 1)
	go func() {
		if err := core.Start(ctx); err != nil {
			serviceErrChan <- err
		}
	}()

	// 4. wait for a signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	case err := <-serviceErrChan:
		log.Error("Service error", zap.Error(err))
	}

	core.Stop()
	log.Info("Kids safety core stopped")
}
