/**
 * Queue consumer for the OCR worker
 *
 * Consumes recognition jobs from a Redis-backed queue via Asynq, drives the
 * OCR engine, and persists results. One job carries one or more page images
 * of a single logical document.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"

	"github.com/docuflow/ocr-worker/internal/engine"
	ocrerrors "github.com/docuflow/ocr-worker/internal/errors"
	"github.com/docuflow/ocr-worker/internal/logging"
	"github.com/docuflow/ocr-worker/internal/ocr"
	"github.com/docuflow/ocr-worker/internal/storage"
)

// TaskProcessDocument is the task type for document recognition jobs.
const TaskProcessDocument = "ocr:process-document"

// JobData represents the structure of job data on the queue. Images are
// base64-encoded by the standard JSON byte-slice encoding.
type JobData struct {
	JobID            string                 `json:"jobId"`
	Filename         string                 `json:"filename,omitempty"`
	Images           [][]byte               `json:"images"`
	ExtractStructure bool                   `json:"extractStructure,omitempty"`
	ExtractTables    bool                   `json:"extractTables,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// Consumer handles job consumption from the Redis queue. The engine is a
// single-owner resource, so document jobs run through it one at a time; the
// pool underneath still recognizes pages in parallel.
type Consumer struct {
	client   *asynq.Client
	server   *asynq.Server
	mux      *asynq.ServeMux
	engine   *engine.Engine
	store    *storage.PostgresClient
	progress *ProgressPublisher
	config   *ConsumerConfig
	log      *logging.Logger

	jobMu      sync.Mutex
	currentJob atomic.Value // string: job ID whose progress events are live
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Engine            *engine.Engine
	Store             *storage.PostgresClient
	Progress          *ProgressPublisher
	ProcessingTimeout int64 // milliseconds, default 300000
}

// NewConsumer creates a new queue consumer.
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("Engine is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := asynq.NewClient(redisOpt)

	log := logging.NewLogger("queue")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				// Exponential backoff capped at one minute
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error("Task processing error", "type", task.Type(), "error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	consumer := &Consumer{
		client:   client,
		server:   server,
		mux:      mux,
		engine:   cfg.Engine,
		store:    cfg.Store,
		progress: cfg.Progress,
		config:   cfg,
		log:      log,
	}

	mux.HandleFunc(TaskProcessDocument, consumer.handleProcessDocument)

	if cfg.Progress != nil {
		cfg.Engine.Subscribe(func(info ocr.ProgressInfo) {
			if id, ok := consumer.currentJob.Load().(string); ok && id != "" {
				cfg.Progress.Publish(context.Background(), id, info)
			}
		})
	}

	return consumer, nil
}

// Start starts the queue consumer.
func (c *Consumer) Start() error {
	c.log.Info("Starting queue consumer",
		"concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	go func() {
		if err := c.server.Run(c.mux); err != nil {
			c.log.Error("Queue consumer stopped", "error", err)
		}
	}()

	return nil
}

// Stop stops the queue consumer gracefully.
func (c *Consumer) Stop() error {
	c.log.Info("Stopping queue consumer")

	c.server.Shutdown()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}

	c.log.Info("Queue consumer stopped")
	return nil
}

// handleProcessDocument processes one document recognition job.
func (c *Consumer) handleProcessDocument(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var jobData JobData
	if err := json.Unmarshal(task.Payload(), &jobData); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %w", err)
	}
	if len(jobData.Images) == 0 {
		return fmt.Errorf("job %s carries no images", jobData.JobID)
	}

	c.log.Info("Processing document",
		"job", jobData.JobID, "filename", jobData.Filename, "pages", len(jobData.Images))

	c.jobMu.Lock()
	defer c.jobMu.Unlock()
	c.currentJob.Store(jobData.JobID)
	defer c.currentJob.Store("")

	c.updateStatus(ctx, jobData.JobID, "processing", nil)

	timeout := time.Duration(300000) * time.Millisecond
	if c.config.ProcessingTimeout > 0 {
		timeout = time.Duration(c.config.ProcessingTimeout) * time.Millisecond
	}
	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Each page is processed to completion before the next; results come
	// back in input order.
	texts := make([]string, 0, len(jobData.Images))
	var confidenceSum float64
	for i, img := range jobData.Images {
		result, err := c.engine.ProcessImage(processCtx, img)
		if err != nil {
			return c.failJob(ctx, &jobData, i+1, startTime, timeout, err)
		}
		texts = append(texts, result.Text)
		confidenceSum += result.Confidence

		if c.store != nil {
			if _, serr := c.store.SaveResult(ctx, jobData.JobID, i+1, result); serr != nil {
				c.log.Warn("Failed to persist page result",
					"job", jobData.JobID, "page", i+1, "error", serr)
			}
		}
	}

	if jobData.ExtractStructure {
		doc := c.engine.ExtractStructuredContent(texts)
		if c.store != nil {
			if _, serr := c.store.SaveDocument(ctx, jobData.JobID, doc); serr != nil {
				c.log.Warn("Failed to persist structured document",
					"job", jobData.JobID, "error", serr)
			}
		}
	}

	duration := time.Since(startTime)
	confidence := confidenceSum / float64(len(jobData.Images))

	c.log.Info("Document processed",
		"job", jobData.JobID, "pages", len(texts),
		"confidence", fmt.Sprintf("%.1f", confidence), "elapsed", duration)

	c.updateStatus(ctx, jobData.JobID, "completed", map[string]interface{}{
		"confidence":     confidence,
		"processingTime": duration.Milliseconds(),
		"pages":          len(texts),
	})

	return nil
}

// failJob records the failure and propagates it so Asynq can retry. Aborted
// jobs are not retried.
func (c *Consumer) failJob(ctx context.Context, jobData *JobData, page int, startTime time.Time, timeout time.Duration, err error) error {
	duration := time.Since(startTime)
	c.log.Error("Document processing failed",
		"job", jobData.JobID, "page", page, "elapsed", duration, "error", err)

	details := map[string]interface{}{
		"error":          err.Error(),
		"page":           page,
		"processingTime": duration.Milliseconds(),
	}
	if engineErr, ok := err.(*ocrerrors.EngineError); ok {
		details["errorCode"] = string(engineErr.Code)
	}
	c.updateStatus(ctx, jobData.JobID, "failed", details)

	if ocrerrors.IsAbort(err) {
		return fmt.Errorf("job aborted: %w", asynq.SkipRetry)
	}
	if ocrerrors.HasCode(err, ocrerrors.ErrorProcessingTimeout) {
		return fmt.Errorf("processing timeout: %w",
			ocrerrors.NewProcessingTimeoutError(timeout, err))
	}
	return fmt.Errorf("document processing failed: %w", err)
}

func (c *Consumer) updateStatus(ctx context.Context, jobID, status string, metadata map[string]interface{}) {
	if c.store == nil {
		return
	}
	if err := c.store.UpdateJobStatus(ctx, &storage.JobUpdate{
		JobID:    jobID,
		Status:   status,
		Metadata: metadata,
	}); err != nil {
		c.log.Warn("Failed to update job status", "job", jobID, "status", status, "error", err)
	}
}

// Enqueue submits a document job, mostly useful for tooling and tests.
func (c *Consumer) Enqueue(ctx context.Context, jobData *JobData) error {
	payload, err := json.Marshal(jobData)
	if err != nil {
		return fmt.Errorf("failed to marshal job data: %w", err)
	}
	task := asynq.NewTask(TaskProcessDocument, payload)
	if _, err := c.client.EnqueueContext(ctx, task, asynq.Queue(c.config.QueueName)); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}
