package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/outreach-console/cmd/mainconfig"
	"github.com/wolfman30/outreach-console/internal/app/bootstrap"
	appconfig "github.com/wolfman30/outreach-console/internal/config"
	"github.com/wolfman30/outreach-console/pkg/logging"
)

// The memory worker drains the SQS memory queue into the memory store so
// the API can enqueue without running store writes in process.
func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if err := checkQueueConfig(cfg); err != nil {
		logger.Error("memory worker misconfigured", "error", err)
		os.Exit(1)
	}

	awsConfig, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	recorder, err := bootstrap.BuildMemoryRecorder(cfg, &awsConfig, nil, logger)
	if err != nil {
		logger.Error("failed to build memory recorder", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recorder.Start(ctx)
	logger.Info("memory worker started", "queue_url", cfg.MemoryQueueURL, "workers", cfg.MemoryWorkerCount)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down memory worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		recorder.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("memory worker stopped")
	case <-doneCtx.Done():
		logger.Error("memory worker shutdown timed out", "error", doneCtx.Err())
	}
}

func checkQueueConfig(cfg *appconfig.Config) error {
	switch {
	case cfg.MemoryStoreURL == "":
		return errors.New("MEMORY_STORE_URL is required")
	case cfg.UseMemoryQueue:
		return errors.New("USE_MEMORY_QUEUE must be false; the in-process queue is not shared")
	case cfg.MemoryQueueURL == "":
		return errors.New("MEMORY_QUEUE_URL is required")
	}
	return nil
}
