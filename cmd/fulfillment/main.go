package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-realtime-checkout/internal/app"
	"github.com/ariefcatur/go-realtime-checkout/internal/config"
	"github.com/ariefcatur/go-realtime-checkout/internal/fulfillment"
	kafkax "github.com/ariefcatur/go-realtime-checkout/internal/kafka"
	"github.com/ariefcatur/go-realtime-checkout/internal/logging"
	"github.com/ariefcatur/go-realtime-checkout/internal/market"
	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/ariefcatur/go-realtime-checkout/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.ServiceName+"-fulfillment", cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store
	store, err := app.OpenStore(ctx, cfg, logger.Named("store"))
	if err != nil {
		logger.Fatal("store", zap.Error(err))
	}
	defer store.Close()

	// Redis, so status changes invalidate the API's order cache
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &fulfillment.Service{
		Orders: orders.NewRepository(store, redisx.NewOrderCache(rdb), logger.Named("orders")),
		Logger: logger.Named("fulfillment"),
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.FulfillmentGroup, market.TopicFulfillmentStatus,
		cfg.FulfillmentWorkers, logger.Named("consumer"))

	logger.Info("fulfillment consumer started",
		zap.String("group", cfg.FulfillmentGroup),
		zap.String("topic", market.TopicFulfillmentStatus),
		zap.Int("workers", cfg.FulfillmentWorkers))
	if err := cons.Start(ctx, svc.HandleStatus); err != nil {
		logger.Error("consumer exit", zap.Error(err))
	}
	logger.Info("shutting down consumer...")
}
