package worker

import (
	"context"
	"encoding/json"
	"time"

	"sourcedpos/internal/obs"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DLQPrefix keys one dead-letter list per source queue: dlq:{queue}.
const DLQPrefix = "dlq:"

// DLQEntry is a job that will not be retried again, kept for an operator.
type DLQEntry struct {
	JobID    string          `json:"job_id,omitempty"`
	Queue    string          `json:"queue"`
	JobType  string          `json:"job_type"`
	Payload  json.RawMessage `json:"payload"`
	Reason   string          `json:"reason"`
	Attempts int             `json:"attempts"`
	FailedAt time.Time       `json:"failed_at"`
}

// deadLetter parks job on the queue's DLQ. Failures here are only logged.
func deadLetter(ctx context.Context, rdb *redis.Client, queue string, job Job, reason string) {
	entry := DLQEntry{
		JobID:    job.ID,
		Queue:    queue,
		JobType:  job.Type,
		Payload:  job.Payload,
		Reason:   reason,
		Attempts: job.Attempts,
		FailedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("dlq: encode entry")
		return
	}

	key := DLQPrefix + queue
	n, err := rdb.LPush(ctx, key, data).Result()
	if err != nil {
		log.Error().Err(err).Str("dlq_key", key).Str("job_id", job.ID).Msg("dlq: push")
		return
	}
	if obs.DLQLength != nil {
		obs.DLQLength.WithLabelValues(queue).Set(float64(n))
	}

	log.Warn().
		Str("queue", queue).
		Str("job_id", job.ID).
		Str("job_type", job.Type).
		Str("reason", reason).
		Int("attempts", job.Attempts).
		Msg("dlq: job parked")
}

// DeadLetters returns up to limit parked entries for queue, newest first.
func DeadLetters(ctx context.Context, rdb *redis.Client, queue string, limit int64) ([]DLQEntry, error) {
	raws, err := rdb.LRange(ctx, DLQPrefix+queue, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]DLQEntry, 0, len(raws))
	for _, raw := range raws {
		var e DLQEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			log.Warn().Err(err).Str("queue", queue).Msg("dlq: skipping unreadable entry")
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// DLQLength is reported by the health check.
func DLQLength(ctx context.Context, rdb *redis.Client, queue string) (int64, error) {
	return rdb.LLen(ctx, DLQPrefix+queue).Result()
}
