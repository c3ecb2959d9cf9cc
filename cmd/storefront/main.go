package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/gateway"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/fjod/storefront/internal/publisher"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.New("storefront", cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()
	zap.ReplaceGlobals(lg)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	// Database setup
	repo, err := repository.NewRepository(&cfg.DB, lg)
	if err != nil {
		lg.Fatal("failed to connect to database", zap.String("driver", cfg.DB.Driver), zap.Error(err))
	}
	defer repo.Close()

	if err := repo.RunMigrations(); err != nil {
		lg.Fatal("failed to run migrations", zap.Error(err))
	}
	lg.Info("database migrations completed", zap.String("driver", cfg.DB.Driver))

	ctx := context.Background()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		lg.Fatal("redis connection failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	redisCache := cache.NewRedisCache(redisClient, cfg.StateTTL)

	// Gateways
	breaker := gateway.BreakerSettings{
		MaxFailures:  cfg.BreakerMaxFailures,
		OpenTimeout:  cfg.BreakerOpenTimeout,
		HalfOpenReqs: 1,
	}
	sandbox := func(prefix string, captureRequired bool) *gateway.Sandbox {
		return gateway.NewSandbox(gateway.SandboxConfig{
			Prefix:            prefix,
			NextActionBase:    cfg.SandboxActionBaseURL + prefix,
			CaptureRequired:   captureRequired,
			ApproveAfterPolls: cfg.SandboxApproveAfter,
		})
	}
	gateways := gateway.NewRegistry(
		gateway.WithBreaker(gateway.NewCardSession(sandbox("cs_", true)), breaker, lg),
		gateway.WithBreaker(gateway.NewPushQR(sandbox("qr_", false), gateway.PollPolicy{
			Interval:    cfg.QRPollInterval,
			MaxDuration: cfg.QRMaxDuration,
		}), breaker, lg),
		gateway.WithBreaker(gateway.NewRedirectWallet(sandbox("rw_", true)), breaker, lg),
	)

	// Services
	calc := pricing.NewCalculator(cfg.TaxRate)
	checkoutService := service.NewCheckoutService(repo, redisCache, gateways, calc, service.CheckoutConfig{
		Currency:    cfg.Currency,
		StaleAfter:  cfg.StaleAfter,
		ExpireAfter: cfg.ExpireAfter,
	}, lg)
	cartService := service.NewCartService(repo, redisCache, calc, lg)
	orderService := service.NewOrderService(repo, calc, lg)
	walletService := service.NewWalletService(repo, lg)
	catalogService := service.NewCatalogService(repo)

	// Outbox publisher and stale attempt recovery
	var wg sync.WaitGroup
	pollerCtx, pollerCancel := context.WithCancel(ctx)
	poller := publisher.NewOutboxPoller(repo, checkoutService, lg, cfg.KafkaTopic, cfg.KafkaBrokers...)
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(pollerCtx)
	}()

	router := h.NewRouter(h.Handlers{
		Cart:     h.NewCartHandler(cartService, cfg.RequestTimeout, lg),
		Checkout: h.NewCheckoutHandler(checkoutService, cfg.RequestTimeout, lg),
		Orders:   h.NewOrdersHandler(orderService, cfg.RequestTimeout, lg),
		Wallet:   h.NewWalletHandler(walletService, cfg.RequestTimeout, lg),
		Products: h.NewProductHandler(catalogService, cfg.RequestTimeout, lg),
		Admin:    h.NewAdminHandler(orderService, walletService, catalogService, repo, cfg.RequestTimeout, lg),
	}, repo, lg)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		lg.Info("storefront starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("server forced to shutdown", zap.Error(err))
	}

	pollerCancel()
	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		lg.Info("outbox poller stopped cleanly")
	case <-shutdownCtx.Done():
		lg.Warn("outbox poller did not stop before shutdown timeout")
	}

	lg.Info("server exited")
}
