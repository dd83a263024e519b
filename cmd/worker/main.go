package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/avreline/repairbooking/config"
	"github.com/avreline/repairbooking/internal/cache"
	"github.com/avreline/repairbooking/internal/email"
	"github.com/avreline/repairbooking/internal/gateway"
	"github.com/avreline/repairbooking/internal/kafka"
	"github.com/avreline/repairbooking/internal/repository"
	"github.com/avreline/repairbooking/internal/service/catalog"
	"github.com/avreline/repairbooking/internal/service/session"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// slotTimes is the daily appointment grid seeded ahead of the booking horizon.
var slotTimes = []string{"09:00", "10:00", "11:00", "12:00", "14:00", "15:00", "16:00", "17:00"}

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

	if err := slotRepo.EnsureHorizon(ctx, cfg.Slots.HorizonDays, slotTimes); err != nil {
		logger.Fatal("seed slot horizon", zap.Error(err))
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runAbandonSweep(ctx, sessionService, time.Duration(cfg.Worker.AbandonSweepMinutes)*time.Minute, logger)
	}()

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
	sender := email.NewSender(logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer consumer.Close()
		if err := consumer.ConsumeEvents(ctx, sender.Send); err != nil {
			logger.Error("notification consumer stopped", zap.Error(err))
		}
	}()

	logger.Info("worker started",
		zap.Int("horizon_days", cfg.Slots.HorizonDays),
		zap.Int("sweep_minutes", cfg.Worker.AbandonSweepMinutes))

	<-ctx.Done()
	wg.Wait()
	logger.Info("worker stopped")
}

func runAbandonSweep(ctx context.Context, sessions session.SessionUseCase, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := sessions.ExpireAbandoned(ctx)
			if err != nil {
				logger.Error("abandon sweep failed", zap.Error(err))
				continue
			}
			if len(expired) > 0 {
				logger.Info("abandoned inactive sessions", zap.Int("count", len(expired)))
			}
		}
	}
}
