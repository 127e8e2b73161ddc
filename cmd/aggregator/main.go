package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"price-aggregator/internal/bootstrap"
	"price-aggregator/internal/infrastructure/logx"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func init() { _ = godotenv.Load() }

func main() {
	once := flag.Bool("once", false, "run a single pass and exit")
	flag.Parse()

	log := logx.L()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	agg, cleanup, err := bootstrap.InitAggregator(ctx)
	if err != nil {
		log.Fatal("init aggregator", zap.Error(err))
	}
	defer cleanup()

	agg.Run(ctx, *once)
	log.Info("aggregator stopped")
}
