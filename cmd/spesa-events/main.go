package main

import (
	"context"
	"errors"
	"os"
	"time"

	"spesa/internal/amqp"
	"spesa/internal/cli"
	applog "spesa/internal/log"
	"spesa/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentAMQP)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required", "component", applog.ComponentAMQP)
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "component", applog.ComponentAMQP, "error", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := cli.GracefulShutdown(logger)
	defer stop()

	w := worker.NewEventWorker(4096)
	logger.Info("Starting spesa-events", "component", applog.ComponentAMQP, "queue", cfg.AMQPQueue)

	start := time.Now()
	err = client.ConsumeExpenseEvents(ctx, w.HandleExpenseEvent)

	stats := w.Stats()
	logger.Info("Event consumer stopped",
		"component", applog.ComponentAMQP,
		"processed", stats.Processed,
		"duplicates", stats.Duplicates,
		"gaps", stats.Gaps,
		"last_version", stats.LastVersion,
		"uptime", time.Since(start).Round(time.Second).String())

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "component", applog.ComponentAMQP, "error", err)
		os.Exit(1)
	}
}
