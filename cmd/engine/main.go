package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"github.com/wyfcoding/pkg/logging"
	"golang.org/x/sync/errgroup"
	gorm_mysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/wyfcoding/exchange/internal/exchange/application"
	"github.com/wyfcoding/exchange/internal/exchange/domain"
	"github.com/wyfcoding/exchange/internal/exchange/infrastructure/messaging"
	"github.com/wyfcoding/exchange/internal/exchange/infrastructure/persistence/mysql"
	"github.com/wyfcoding/exchange/internal/exchange/infrastructure/persistence/redis"
	"github.com/wyfcoding/exchange/internal/exchange/interfaces/consumer"
	httpserver "github.com/wyfcoding/exchange/internal/exchange/interfaces/http"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/engine/config.toml", "path to config file")
	flag.Parse()

	// 1. Config
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Sprintf("read config failed: %v", err))
	}

	// 2. Logger
	logger := logging.NewLogger("engine", "main", viper.GetString("log.level"))
	slog.SetDefault(logger.Logger)

	// 3. Database
	dsn := viper.GetString("database.source")
	db, err := gorm.Open(gorm_mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		panic(fmt.Sprintf("connect db failed: %v", err))
	}
	if viper.GetString("server.environment") == "dev" {
		if err := db.AutoMigrate(&mysql.EventModel{}, &mysql.UniqueEventModel{},
			&mysql.OrderModel{}, &mysql.TradeModel{}); err != nil {
			panic(fmt.Sprintf("migrate db failed: %v", err))
		}
	}

	// 4. Redis
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     viper.GetString("redis.addr"),
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	})
	defer redisClient.Close()

	// 5. Infrastructure
	eventStore := mysql.NewEventStore(db)
	tradeStore := mysql.NewTradeStore(db)
	orderBookRepo := redis.NewOrderBookRepository(redisClient)
	resultPublisher := redis.NewResultPublisher(redisClient)

	kafkaCfg := messaging.KafkaConfig{
		Brokers:      viper.GetStringSlice("kafka.brokers"),
		EventTopic:   viper.GetString("kafka.event_topic"),
		TickTopic:    viper.GetString("kafka.tick_topic"),
		GroupID:      viper.GetString("kafka.group_id"),
		MaxRetries:   viper.GetInt("kafka.max_retries"),
		RetryBackoff: viper.GetDuration("kafka.retry_backoff"),
	}
	tickProducer := messaging.NewTickProducer(kafkaCfg)
	defer tickProducer.Close()

	// 6. Domain & Application
	assets := domain.NewAssetService()
	orders := domain.NewOrderService(assets)
	match := domain.NewMatchEngine()
	clearing := domain.NewClearingService(assets, orders, logger.Logger)

	engine := application.NewTradingEngine(
		assets, orders, match, clearing,
		eventStore, tradeStore, tickProducer, resultPublisher, orderBookRepo,
		application.EngineConfig{
			Debug:          viper.GetBool("engine.debug"),
			OrderBookDepth: viper.GetInt("engine.orderbook_depth"),
		},
		logger.Logger,
	)
	query := application.NewQueryService(assets, orders)

	// 内存状态是重建出来的，进入致命状态只能停进程重启重放
	engine.OnFatal = func() {
		slog.Error("trading engine fatal, exiting")
		os.Exit(1)
	}

	recoverCtx, cancelRecover := context.WithTimeout(context.Background(), 5*time.Minute)
	if err := engine.Recover(recoverCtx); err != nil {
		cancelRecover()
		panic(fmt.Sprintf("replay event log failed: %v", err))
	}
	cancelRecover()
	slog.Info("event log replayed", "sequenceId", engine.LastSequenceID())

	// 7. Interfaces
	gin.SetMode(gin.ReleaseMode)
	if viper.GetString("server.environment") == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	httpserver.NewEngineHandler(query, engine).RegisterRoutes(r)

	inbound := messaging.NewBatchConsumer(kafkaCfg, kafkaCfg.EventTopic,
		consumer.NewEngineHandler(engine, logger.Logger), logger.Logger)

	// 8. Run & graceful shutdown
	g, runCtx := errgroup.WithContext(context.Background())
	engine.Start(runCtx)

	g.Go(func() error {
		slog.Info("engine consuming", "topic", kafkaCfg.EventTopic)
		return inbound.Run(runCtx)
	})

	httpAddr := fmt.Sprintf(":%d", viper.GetInt("server.http_port"))
	server := &http.Server{Addr: httpAddr, Handler: r}
	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", httpAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down engine...")
		case <-runCtx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown failed", "error", err)
		}
		return context.Canceled
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		slog.Error("engine exited with error", "error", err)
		os.Exit(1)
	}
	engine.Stop()
	slog.Info("engine exiting")
}
