package main

import (
	"context"
	"fmt"
	"net/http"
	"order-settlement/internal/client"
	"order-settlement/internal/config"
	"order-settlement/internal/logger"
	"order-settlement/internal/repository"
	"order-settlement/internal/server"
	"order-settlement/internal/service"
	"order-settlement/internal/webhook"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewZapLog(cfg.Log)
	if err != nil {
		fmt.Printf("Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	db, err := client.OpenDatabase(cfg.Database, log)
	if err != nil {
		return err
	}

	gateway, err := client.NewPaymentGateway(cfg)
	if err != nil {
		return err
	}

	location, err := time.LoadLocation(cfg.Orders.Timezone)
	if err != nil {
		return fmt.Errorf("load order timezone: %w", err)
	}
	policy, err := service.PolicyFromConfig(cfg.Loyalty)
	if err != nil {
		return err
	}

	orderRepo := repository.NewOrderRepository(db)
	sequenceRepo := repository.NewSequenceRepository(db)
	promotionRepo := repository.NewPromotionRepository(db)
	reservationRepo := repository.NewReservationRepository(db)
	loyaltyRepo := repository.NewLoyaltyRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	webhookRepo := repository.NewWebhookRecordRepository(db)

	if cfg.Promotions.SeedFile != "" {
		promotions, err := repository.LoadPromotionSeed(cfg.Promotions.SeedFile)
		if err != nil {
			return err
		}
		if err := promotionRepo.Seed(context.Background(), promotions); err != nil {
			return fmt.Errorf("seed promotions: %w", err)
		}
		log.Info("promotions seeded", zap.Int("count", len(promotions)))
	}

	bus := service.NewEventBus(log)

	sequence := service.NewSequenceGenerator(db, sequenceRepo, cfg.Orders.NumberPrefix, location)
	orderService := service.NewOrderService(db, sequence, orderRepo, bus, cfg.Currency, log)
	promotionService := service.NewPromotionService(
		db,
		service.NewPromotionEvaluator(promotionRepo),
		promotionRepo,
		reservationRepo,
		orderRepo,
		loyaltyRepo,
		log,
	)
	loyaltyService := service.NewLoyaltyService(db, policy, loyaltyRepo, orderRepo, reservationRepo, log)
	paymentService := service.NewPaymentService(
		db,
		gateway,
		webhook.NewVerifier(cfg.Gateway.WebhookSecret, cfg.Gateway.SignatureTolerance),
		cfg.BaseURL,
		orderRepo,
		paymentRepo,
		webhookRepo,
		bus,
		log,
	)

	service.NewSettlementService(db, orderRepo, promotionService, loyaltyService, log).Subscribe(bus)
	service.SubscribeNotifications(bus, db, orderRepo, service.NewLogNotifier(log))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if cfg.Loyalty.SweepInterval > 0 {
		go sweepHolds(ctx, loyaltyService, cfg.Loyalty.SweepInterval, log)
	}

	srv := server.NewServer(server.Services{
		Orders:     orderService,
		Promotions: promotionService,
		Loyalty:    loyaltyService,
		Payments:   paymentService,
	}, cfg.Auth.JWTSecret, log)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port
	log.Info("starting HTTP server", zap.String("addr", serverAddr), zap.String("env", cfg.Environment.Name))
	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("signal received, starting graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return nil
}

func sweepHolds(ctx context.Context, loyalty service.LoyaltyService, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := loyalty.ExpireHolds(ctx); err != nil {
				log.Warn("expire loyalty holds", zap.Error(err))
			}
		}
	}
}
