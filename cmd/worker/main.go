// Command worker consumes booking events from RabbitMQ and appends them to
// the booking audit log.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/iliyamo/eventease/internal/config"
	"github.com/iliyamo/eventease/internal/logger"
	"github.com/iliyamo/eventease/internal/queue"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		logger.New(logger.Config{Service: "eventease-worker"}).Fatal("load config", "error", err)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "eventease-worker"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := queue.NewConsumer(cfg.RabbitMQURL, cfg.BookingLogDir, log)
	log.Info("booking worker starting", "queue", queue.BookingQueue, "log_dir", cfg.BookingLogDir)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("booking worker stopped", "error", err)
	}
	log.Info("booking worker stopped")
}
