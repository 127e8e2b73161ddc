package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"price-aggregator/internal/bootstrap"
	"price-aggregator/internal/config"
	httpserver "price-aggregator/internal/infrastructure/http"
	"price-aggregator/internal/infrastructure/logx"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func init() { _ = godotenv.Load() }

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := logx.L()
	cfg := config.Load()
	addr := ":" + cfg.Port

	srv, cleanup, err := bootstrap.InitAPI(ctx)
	if err != nil {
		logger.Fatal("init api", zap.Error(err))
	}
	defer cleanup()

	server := &http.Server{
		Addr:              addr,
		Handler:           httpserver.NewRouter(srv),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server started", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	shutdownCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	_ = server.Shutdown(shutdownCtx)
	logger.Info("server stopped")
}
