package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"github.com/wyfcoding/pkg/logging"
	"golang.org/x/sync/errgroup"
	gorm_mysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/wyfcoding/exchange/internal/exchange/application"
	"github.com/wyfcoding/exchange/internal/exchange/infrastructure/messaging"
	"github.com/wyfcoding/exchange/internal/exchange/infrastructure/persistence/mysql"
	"github.com/wyfcoding/exchange/internal/exchange/interfaces/consumer"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/sequencer/config.toml", "path to config file")
	flag.Parse()

	// 1. Config
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Sprintf("read config failed: %v", err))
	}

	// 2. Logger
	logger := logging.NewLogger("sequencer", "main", viper.GetString("log.level"))
	slog.SetDefault(logger.Logger)

	// 3. Database
	dsn := viper.GetString("database.source")
	db, err := gorm.Open(gorm_mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		panic(fmt.Sprintf("connect db failed: %v", err))
	}
	if viper.GetString("server.environment") == "dev" {
		if err := db.AutoMigrate(&mysql.EventModel{}, &mysql.UniqueEventModel{}); err != nil {
			panic(fmt.Sprintf("migrate db failed: %v", err))
		}
	}

	// 4. Infrastructure
	eventStore := mysql.NewEventStore(db)
	kafkaCfg := messaging.KafkaConfig{
		Brokers:      viper.GetStringSlice("kafka.brokers"),
		EventTopic:   viper.GetString("kafka.event_topic"),
		GroupID:      viper.GetString("kafka.group_id"),
		MaxRetries:   viper.GetInt("kafka.max_retries"),
		RetryBackoff: viper.GetDuration("kafka.retry_backoff"),
	}
	producer := messaging.NewEventProducer(kafkaCfg)
	defer producer.Close()

	// 5. Application
	sequencer := application.NewSequenceService(eventStore, producer, logger.Logger)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := sequencer.Recover(ctx); err != nil {
		cancel()
		panic(fmt.Sprintf("recover sequence counter failed: %v", err))
	}
	cancel()

	// 6. Interfaces (inbound kafka)
	inboundTopic := viper.GetString("kafka.inbound_topic")
	inbound := messaging.NewBatchConsumer(kafkaCfg, inboundTopic,
		consumer.NewSequencerHandler(sequencer, logger.Logger), logger.Logger)

	// 7. Run & graceful shutdown
	g, runCtx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		slog.Info("sequencer consuming", "topic", inboundTopic)
		return inbound.Run(runCtx)
	})
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down sequencer...")
			return context.Canceled
		case <-runCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		slog.Error("sequencer exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("sequencer exiting")
}
