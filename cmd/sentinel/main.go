package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/opencex/sentinel/internal/alerting"
	"github.com/opencex/sentinel/internal/config"
	"github.com/opencex/sentinel/internal/events"
	"github.com/opencex/sentinel/internal/sentinel"
	"github.com/opencex/sentinel/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	zapLogger, err := logger.NewLogger(logLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	loader := config.NewLoader(zapLogger)
	cfg, err := loader.Load()
	if err != nil {
		zapLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	bus := events.NewBus(zapLogger)
	engine := sentinel.NewEngine(cfg.Detection, bus, zapLogger)

	dispatcher := alerting.NewDispatcher(alerting.DefaultConfig(), zapLogger)
	dispatcher.Register(bus)

	// Detection policy follows the config file without a restart.
	loader.Watch(func(next config.Config) {
		if err := engine.SetConfig(next.Detection); err != nil {
			zapLogger.Error("rejected reloaded detection policy", zap.Error(err))
		}
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		zapLogger.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	zapLogger.Info("sentinel engine ready",
		zap.Int("window_minutes", cfg.Detection.WindowMinutes))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := metricsSrv.Shutdown(ctx); err != nil {
		zapLogger.Error("metrics server shutdown failed", zap.Error(err))
	}
	if err := bus.Close(ctx); err != nil {
		zapLogger.Error("event bus did not drain in time", zap.Error(err))
	}

	health := engine.GetHealthMetrics()
	zapLogger.Info("final engine state",
		zap.Int("trade_buffer_size", health.TradeBufferSize),
		zap.Int("order_buffer_size", health.OrderBufferSize))
}
