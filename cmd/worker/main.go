package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"logbook/internal/config"
	"logbook/internal/queue"
	"logbook/internal/store"
	"logbook/internal/token"
)

// Worker consumes render jobs and writes token artifact images to disk.
// Rendering is deliberately outside the registration transaction: a failed
// render leaves a registered identity whose artifact can be re-queued.
func main() {
	cfg := config.Load()

	logger, err := zap.NewDevelopment()
	if cfg.Env == "production" || cfg.Env == "prod" {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var jobs queue.Queue
	if cfg.QueueBackend == "memory" {
		jobs = queue.NewInMemory(64)
	} else {
		jobs = queue.NewRedisQueue(redisClient.Client, "logbook:render")
	}

	messages, err := jobs.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}

	logger.Info("worker started, waiting for render jobs")
	for msg := range messages {
		if msg.Type != queue.TypeRenderToken {
			continue
		}

		var job queue.RenderJob
		if err := json.Unmarshal(msg.Body, &job); err != nil {
			logger.Warn("malformed render job", zap.String("msg_id", msg.ID), zap.Error(err))
			continue
		}

		if err := token.RenderArtifact(job.Encoded, job.Path); err != nil {
			logger.Error("artifact render failed",
				zap.String("msg_id", msg.ID),
				zap.String("path", job.Path),
				zap.Error(err))
			continue
		}
		logger.Info("artifact rendered",
			zap.String("msg_id", msg.ID),
			zap.String("path", job.Path))
	}

	logger.Info("worker stopped")
}
