package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/probo-exchange/probo/params"
	"github.com/probo-exchange/probo/pkg/api"
	"github.com/probo-exchange/probo/pkg/exchange/engine"
	"github.com/probo-exchange/probo/pkg/monitor"
	"github.com/probo-exchange/probo/pkg/storage"
	"github.com/probo-exchange/probo/pkg/stream"
	"github.com/probo-exchange/probo/pkg/util"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	envPath := flag.String("env", "", "path to .env file (optional)")
	flag.Parse()

	cfg, err := params.Load(*configPath, *envPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Log.File != "" {
		logger, err = util.NewLoggerWithFile(cfg.Log.File)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		sugar.Fatalw("storage_open_failed", "path", cfg.Storage.Path, "err", err)
	}
	defer store.Close()

	mon := monitor.New()

	var publisher engine.TradePublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := stream.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		publisher = producer
		sugar.Infow("trade_feed_enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	eng, err := engine.New(engine.Options{
		Store:     store,
		Logger:    sugar,
		Clock:     util.RealClock{},
		Metrics:   mon,
		Publisher: publisher,
	})
	if err != nil {
		sugar.Fatalw("engine_init_failed", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", mon.Handler())
			sugar.Infow("metrics_listening", "addr", cfg.Server.MetricsAddr)
			if err := http.ListenAndServe(cfg.Server.MetricsAddr, mux); err != nil {
				sugar.Warnw("metrics_server_failed", "err", err)
			}
		}()
	}

	server := api.NewServer(eng, sugar)
	if err := server.Start(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout.Std()); err != nil && err != http.ErrServerClosed {
		sugar.Fatalw("api_server_failed", "err", err)
	}
	sugar.Info("shutdown_complete")
}
