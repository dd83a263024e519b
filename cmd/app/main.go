package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avreline/repairbooking/config"
	"github.com/avreline/repairbooking/internal/bootstrap"
	"github.com/avreline/repairbooking/internal/cache"
	"github.com/avreline/repairbooking/internal/gateway"
	"github.com/avreline/repairbooking/internal/kafka"
	"github.com/avreline/repairbooking/internal/repository"
	"github.com/avreline/repairbooking/internal/service/catalog"
	"github.com/avreline/repairbooking/internal/service/session"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Catalog.CacheTTLSeconds)*time.Second)
	producer := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	defer producer.Close()

	catalogRepo := repository.NewCatalogRepository(pool)
	slotRepo := repository.NewSlotRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)

	catalogService := catalog.NewCatalogService(catalogRepo, redisCache, catalog.SynthPricing{
		BasePrice:    cfg.Catalog.SynthBasePrice,
		PriceStep:    cfg.Catalog.SynthPriceStep,
		Minutes:      cfg.Catalog.SynthMinutes,
		WarrantyDays: cfg.Catalog.SynthWarrantyDays,
	}, logger)

	orderGateway := gateway.NewHTTPGateway(cfg.Gateway.BaseURL, time.Duration(cfg.Gateway.TimeoutSeconds)*time.Second, logger)

	sessionService := session.NewSessionService(
		sessionRepo,
		slotRepo,
		catalogService,
		redisCache,
		producer,
		orderGateway,
		cfg.Kafka.SessionEventsTopic,
		time.Duration(cfg.Slots.HoldTTLMinutes)*time.Minute,
		time.Duration(cfg.Session.InactivityTTLMinutes)*time.Minute,
		logger,
		session.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		session.WithSlotHorizon(cfg.Slots.HorizonDays),
	)

	if err := bootstrap.Run(ctx, cfg, sessionService, catalogService, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
