package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gobwas/ws"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/gateway"
	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/market"
	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/orders"
	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/registry"
	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/router"
	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/shell"
	"github.com/naphucco/fintech-trading-platform/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting gateway",
		zap.String("env", cfg.App.Env),
		zap.Any("platform", shell.HostInfo()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Instrument store, statically seeded.
	store := market.NewStore(cfg.Market.Instruments,
		market.RealRand{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))})

	reg := registry.New(logger)

	// Optional Redis mirror of the market feed.
	var feed market.Feed = market.NopFeed{}
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		feed = market.NewRedisFeed(rdb, logger)
		logger.Info("Redis feed enabled", zap.String("addr", cfg.Redis.Addr))
	}
	defer feed.Close()

	// Optional Kafka audit stream for order lifecycle events.
	var audit orders.Audit = orders.NopAudit{}
	if cfg.Kafka.Enabled {
		writer := &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        cfg.Kafka.Topic,
			Balancer:     &kafka.LeastBytes{},
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			Async:        true,
		}
		audit = orders.NewKafkaAudit(writer, logger)
		logger.Info("Kafka audit enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}
	defer audit.Close()

	notifier := shell.LogNotifier{Logger: logger}

	pipeline := orders.NewPipeline(
		store,
		cfg.Orders,
		orders.NewRealRand(time.Now().UnixNano()),
		orders.RealClock{},
		audit,
		notifier,
		logger,
	)

	rt := router.New(ctx, reg, store, pipeline, router.RealClock{},
		cfg.Market.SnapshotStagger, logger)

	broadcaster := market.NewBroadcaster(store, reg, feed,
		cfg.Market.BroadcastInterval, logger)
	go broadcaster.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logger.Warn("Upgrade failed", zap.Error(err))
			return
		}
		gateway.NewClient(conn, rt, logger).Start()
	})

	srv := &http.Server{Addr: cfg.App.Port, Handler: mux}

	go func() {
		logger.Info("Server Started",
			zap.String("port", cfg.App.Port),
			zap.Strings("instruments", store.Symbols()))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			// Inability to bind the listener is the one unrecoverable failure.
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutdown signal received, draining connections...")
	cancel()        // stop the broadcast loop and in-flight pipeline runs
	reg.CloseAll()  // each connection gets a going-away close frame

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	logger.Info("Shutdown Complete")
}
