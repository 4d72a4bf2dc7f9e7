package bootstrap

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/outreach-console/internal/config"
	"github.com/wolfman30/outreach-console/internal/memory"
	"github.com/wolfman30/outreach-console/internal/observability/metrics"
	"github.com/wolfman30/outreach-console/pkg/logging"
)

// BuildMemoryRecorder wires the memory-store client behind a queue. The
// in-process channel queue is used unless USE_MEMORY_QUEUE=false and
// MEMORY_QUEUE_URL names an SQS queue. Without a store URL the recorder is a
// no-op.
func BuildMemoryRecorder(cfg *appconfig.Config, awsCfg *aws.Config, mt *metrics.OutreachMetrics, logger *logging.Logger) (*memory.Recorder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	if strings.TrimSpace(cfg.MemoryStoreURL) == "" {
		logger.Warn("memory store disabled")
		return memory.NewRecorder(nil, logger), nil
	}
	store, err := memory.NewMemMachineClient(memory.MemMachineConfig{
		BaseURL: cfg.MemoryStoreURL,
		UserID:  cfg.MemoryUserID,
		Timeout: cfg.ExternalTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: memory store: %w", err)
	}

	var queue memory.Queue
	if !cfg.UseMemoryQueue && cfg.MemoryQueueURL != "" {
		if awsCfg == nil {
			return nil, fmt.Errorf("bootstrap: aws config is required for the SQS memory queue")
		}
		sqsQueue, err := memory.NewSQSQueue(sqs.NewFromConfig(*awsCfg), cfg.MemoryQueueURL)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: memory queue: %w", err)
		}
		logger.Info("memory writes queued on sqs", "queue_url", cfg.MemoryQueueURL)
		queue = sqsQueue
	} else {
		logger.Info("memory writes queued in process", "capacity", cfg.MemoryQueueCapacity)
		queue = memory.NewChannelQueue(cfg.MemoryQueueCapacity)
	}

	return memory.NewRecorder(store, logger,
		memory.WithQueue(queue),
		memory.WithWorkerCount(cfg.MemoryWorkerCount),
		memory.WithStoreTimeout(cfg.ExternalTimeout),
		memory.WithDefaultOwner(cfg.MemoryUserID),
		memory.WithMetrics(mt),
	), nil
}
