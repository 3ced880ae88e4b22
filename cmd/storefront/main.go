package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	c "github.com/fjod/storefront/internal/cart/cache"
	"github.com/fjod/storefront/internal/cart/poller"
	cartrepo "github.com/fjod/storefront/internal/cart/repository"
	cartsvc "github.com/fjod/storefront/internal/cart/service"
	catalog "github.com/fjod/storefront/internal/catalog/repository"
	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/health"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/orders/publisher"
	orderrepo "github.com/fjod/storefront/internal/orders/repository"
	ordersvc "github.com/fjod/storefront/internal/orders/service"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/promotion"
	"github.com/fjod/storefront/internal/telemetry"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const serviceName = "storefront"

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l, err := logger.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer l.Sync()
	zap.ReplaceGlobals(l)

	if err := run(cfg, l); err != nil {
		l.Fatal("storefront stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, l *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			l.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	// Postgres: orders, promotions, payments, shippings, outbox
	orders, err := orderrepo.NewRepository(&orderrepo.Credentials{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		DBName:   cfg.Postgres.DBName,
		SSLMode:  cfg.Postgres.SSLMode,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer orders.Close()
	if err := orders.RunMigrations(); err != nil {
		return err
	}
	l.Info("postgres migrations completed")

	// SQLite catalog
	products, err := catalog.NewRepository(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer products.Close()
	if err := products.RunMigrations(); err != nil {
		return err
	}
	l.Info("catalog migrations completed", zap.String("path", cfg.Catalog.Path))

	// MongoDB carts
	connectCtx, cancelConnect := context.WithTimeout(ctx, 15*time.Second)
	mongoDB, err := cartrepo.ConnectMongoDB(connectCtx, cfg.Mongo.URI, cfg.Mongo.Database)
	cancelConnect()
	if err != nil {
		return err
	}
	defer mongoDB.Client().Disconnect(context.Background())

	carts := cartrepo.NewMongoRepository(mongoDB)
	if err := carts.CreateIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create cart indexes: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}

	cartService := cartsvc.NewCartService(carts, c.NewRedisCache(redisClient, cfg.Redis.CacheTTL), products, l)
	orderService := ordersvc.NewOrderService(orders, cartService, products, l)
	promotionService := promotion.NewService(orders, l)
	paymentService := payment.NewService(orders, payment.NewVNPay(cfg.VNPay), l)

	var wg sync.WaitGroup

	outbox := publisher.NewOutboxPoller(orders, l, cfg.Kafka.Topic, cfg.Kafka.Brokers...)
	cartPoller := poller.NewPoller(cartService, l, cfg.Kafka.Topic, cfg.Kafka.Brokers...)
	monitor := health.NewMonitor(cfg.HealthInterval, l)
	monitor.Register("postgres", orders.Ping)
	monitor.Register("catalog", products.Ping)
	monitor.Register("mongodb", func(ctx context.Context) error { return mongoDB.Client().Ping(ctx, nil) })
	monitor.Register("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })

	for _, worker := range []func(context.Context){outbox.Run, cartPoller.Run, monitor.Run} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx)
		}()
	}

	// gRPC health
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	grpcServer := health.NewGRPCServer(monitor)
	go func() {
		l.Info("grpc health server listening", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			l.Error("grpc server stopped", zap.Error(err))
		}
	}()

	// HTTP API
	router := h.NewRouter(h.RouterConfig{
		Carts:      h.NewCartHandler(cartService, cfg.RequestTimeout, l),
		Orders:     h.NewOrdersHandler(orderService, cfg.RequestTimeout, l),
		Products:   h.NewProductHandler(products, cfg.RequestTimeout, l),
		Promotions: h.NewPromotionHandler(promotionService, cfg.RequestTimeout, l),
		Payments:   h.NewPaymentHandler(paymentService, cfg.RequestTimeout, l),
		Auth:       h.NewAuthenticator(cfg.JWTSecret),
		Health:     monitor,
		Logger:     l,
		Timeout:    cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		l.Info("storefront listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		l.Info("shutting down storefront")
	case err := <-serveErr:
		l.Error("http server error", zap.Error(err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Warn("http server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		l.Info("background workers stopped cleanly")
	case <-shutdownCtx.Done():
		l.Warn("background workers didn't stop in time")
	}

	if err := outbox.Close(); err != nil {
		l.Warn("error closing kafka writer", zap.Error(err))
	}
	cartPoller.Close()
	l.Info("storefront stopped")
	return nil
}
