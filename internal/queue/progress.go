/**
 * Progress publisher
 *
 * Republishes engine progress events on a per-job Redis pub/sub channel so
 * the API tier can stream job progress to clients. Publishing is
 * best-effort: a dropped event never fails the job.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/docuflow/ocr-worker/internal/logging"
	"github.com/docuflow/ocr-worker/internal/ocr"
)

// ProgressPublisher publishes ProgressInfo events to Redis.
type ProgressPublisher struct {
	client *redis.Client
	log    *logging.Logger
}

// NewProgressPublisher connects a publisher to the given Redis URL.
func NewProgressPublisher(redisURL string, log *logging.Logger) (*ProgressPublisher, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if log == nil {
		log = logging.NewLogger("progress")
	}
	return &ProgressPublisher{
		client: redis.NewClient(opt),
		log:    log,
	}, nil
}

// Channel returns the pub/sub channel name for a job.
func (p *ProgressPublisher) Channel(jobID string) string {
	return "ocr:progress:" + jobID
}

// Publish sends one progress event for the job. Failures are logged and
// swallowed.
func (p *ProgressPublisher) Publish(ctx context.Context, jobID string, info ocr.ProgressInfo) {
	payload, err := json.Marshal(info)
	if err != nil {
		p.log.Warn("Failed to marshal progress event", "job", jobID, "error", err)
		return
	}
	if err := p.client.Publish(ctx, p.Channel(jobID), payload).Err(); err != nil {
		p.log.Warn("Failed to publish progress event", "job", jobID, "error", err)
	}
}

// Close releases the Redis connection.
func (p *ProgressPublisher) Close() error {
	return p.client.Close()
}
