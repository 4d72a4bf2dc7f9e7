package memory

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/outreach-console/internal/observability/metrics"
	"github.com/wolfman30/outreach-console/pkg/logging"
)

const (
	defaultWorkerCount  = 2
	defaultWaitSeconds  = 2
	defaultBatchSize    = 5
	maxReceiveBatchSize = 10
	enqueueTimeout      = 5 * time.Second
	deleteTimeout       = 5 * time.Second
)

// Job is the queued form of one memory record.
type Job struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	OwnerKey   string    `json:"owner_key"`
	RecordedAt time.Time `json:"recorded_at"`
}

type recorderConfig struct {
	queue        Queue
	workers      int
	waitSeconds  int
	batchSize    int
	timeout      time.Duration
	defaultOwner string
	metrics      *metrics.OutreachMetrics
}

// RecorderOption customizes a Recorder.
type RecorderOption func(*recorderConfig)

// WithQueue makes Record asynchronous: jobs go onto q and workers write them.
func WithQueue(q Queue) RecorderOption {
	return func(cfg *recorderConfig) { cfg.queue = q }
}

// WithWorkerCount sets the number of consumer goroutines.
func WithWorkerCount(n int) RecorderOption {
	return func(cfg *recorderConfig) {
		if n > 0 {
			cfg.workers = n
		}
	}
}

// WithReceiveWaitSeconds sets the queue long-poll wait.
func WithReceiveWaitSeconds(seconds int) RecorderOption {
	return func(cfg *recorderConfig) {
		if seconds >= 0 {
			cfg.waitSeconds = seconds
		}
	}
}

// WithStoreTimeout bounds each store write.
func WithStoreTimeout(d time.Duration) RecorderOption {
	return func(cfg *recorderConfig) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

// WithDefaultOwner sets the owner key used when Record gets a blank one.
func WithDefaultOwner(owner string) RecorderOption {
	return func(cfg *recorderConfig) {
		if owner != "" {
			cfg.defaultOwner = owner
		}
	}
}

func WithMetrics(m *metrics.OutreachMetrics) RecorderOption {
	return func(cfg *recorderConfig) { cfg.metrics = m }
}

// Recorder writes workflow events to the memory store. Failures are logged
// and never reach the caller.
type Recorder struct {
	store  Store
	cfg    recorderConfig
	logger *logging.Logger
	wg     sync.WaitGroup
}

// NewRecorder builds a recorder. A nil store turns Record into a no-op.
func NewRecorder(store Store, logger *logging.Logger, opts ...RecorderOption) *Recorder {
	if logger == nil {
		logger = logging.Default()
	}
	cfg := recorderConfig{
		workers:      defaultWorkerCount,
		waitSeconds:  defaultWaitSeconds,
		batchSize:    defaultBatchSize,
		timeout:      defaultStoreTimeout,
		defaultOwner: defaultMemoryUser,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.batchSize > maxReceiveBatchSize {
		cfg.batchSize = maxReceiveBatchSize
	}
	return &Recorder{store: store, cfg: cfg, logger: logger}
}

// Record stores text under ownerKey. Blank text is ignored. With a queue the
// call only enqueues; otherwise it writes synchronously.
func (r *Recorder) Record(ctx context.Context, text, ownerKey string) {
	if r == nil || r.store == nil {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if ownerKey == "" {
		ownerKey = r.cfg.defaultOwner
	}
	job := Job{
		ID:         uuid.NewString(),
		Content:    text,
		OwnerKey:   ownerKey,
		RecordedAt: time.Now().UTC(),
	}

	if r.cfg.queue == nil {
		r.write(ctx, job)
		return
	}

	body, err := json.Marshal(job)
	if err != nil {
		r.logger.Warn("failed to encode memory job", "error", err)
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	if err := r.cfg.queue.Send(sendCtx, string(body)); err != nil {
		r.logger.Warn("failed to enqueue memory job", "error", err, "job_id", job.ID)
	}
}

// Start launches the queue workers. It is a no-op without a queue.
func (r *Recorder) Start(ctx context.Context) {
	if r == nil || r.cfg.queue == nil || r.store == nil {
		return
	}
	for i := 0; i < r.cfg.workers; i++ {
		r.wg.Add(1)
		go r.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (r *Recorder) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

func (r *Recorder) run(ctx context.Context, workerID int) {
	defer r.wg.Done()
	r.logger.Debug("memory worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("memory worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := r.cfg.queue.Receive(ctx, r.cfg.batchSize, r.cfg.waitSeconds)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			r.logger.Error("failed to receive memory jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			r.handleMessage(ctx, msg)
		}
	}
}

func (r *Recorder) handleMessage(ctx context.Context, msg QueueMessage) {
	defer r.deleteMessage(msg.ReceiptHandle)

	var job Job
	if err := json.Unmarshal([]byte(msg.Body), &job); err != nil {
		r.logger.Error("failed to decode memory job", "error", err, "msg_id", msg.ID)
		return
	}
	r.write(ctx, job)
}

func (r *Recorder) write(ctx context.Context, job Job) {
	storeCtx, cancel := context.WithTimeout(ctx, r.cfg.timeout)
	defer cancel()
	err := r.store.AddMemory(storeCtx, job.Content, job.OwnerKey)
	r.cfg.metrics.ObserveMemoryWrite(err)
	if err != nil {
		r.logger.Warn("memory write failed", "error", err, "job_id", job.ID)
		return
	}
	r.logger.Debug("memory recorded", "job_id", job.ID, "owner", job.OwnerKey)
}

func (r *Recorder) deleteMessage(receiptHandle string) {
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
	defer cancel()
	if err := r.cfg.queue.Delete(ctx, receiptHandle); err != nil {
		r.logger.Warn("failed to delete memory job", "error", err)
	}
}
