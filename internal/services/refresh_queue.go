package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/finflow/backend/internal/config"
)

// RefreshTask asks the worker to rebuild one company's projection window.
type RefreshTask struct {
	TaskID     string    `json:"task_id"`
	CompanyID  int       `json:"company_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// RefreshQueue decouples statement ingestion from projection rebuilds.
// Writers push tasks onto a redis list; a single worker drains it. Without
// redis the queue degrades to synchronous rebuilds so a dev setup still
// works.
type RefreshQueue struct {
	redis       *redis.Client
	projections *ProjectionService
	cfg         *config.ProjectionConfig
	newID       func() string
}

func NewRefreshQueue(redisClient *redis.Client, projections *ProjectionService, cfg *config.ProjectionConfig) *RefreshQueue {
	if cfg == nil {
		cfg = config.LoadProjectionConfig()
	}
	return &RefreshQueue{
		redis:       redisClient,
		projections: projections,
		cfg:         cfg,
		newID:       uuid.NewString,
	}
}

// Enqueue schedules a rebuild. Errors are logged, never returned: a lost
// refresh is recoverable, a failed ingest is not.
func (q *RefreshQueue) Enqueue(ctx context.Context, companyID int) {
	task := RefreshTask{
		TaskID:     q.newID(),
		CompanyID:  companyID,
		EnqueuedAt: time.Now().UTC(),
	}

	if q.redis == nil {
		log.Printf("[QUEUE] redis unavailable, rebuilding projections for company %d inline", companyID)
		if _, err := q.projections.RefreshProjections(ctx, companyID); err != nil {
			log.Printf("[QUEUE] inline rebuild for company %d failed: %v", companyID, err)
		}
		return
	}

	payload, err := json.Marshal(task)
	if err != nil {
		log.Printf("[QUEUE] could not encode refresh task for company %d: %v", companyID, err)
		return
	}

	if err := q.redis.RPush(ctx, q.cfg.RefreshQueueKey, string(payload)).Err(); err != nil {
		log.Printf("[QUEUE] could not enqueue refresh for company %d: %v", companyID, err)
	}
}

// StartWorker drains the queue until the context is cancelled.
func (q *RefreshQueue) StartWorker(ctx context.Context) {
	if q.redis == nil {
		log.Printf("[QUEUE] redis unavailable, worker not started")
		return
	}

	go func() {
		log.Printf("[QUEUE] refresh worker started on %s", q.cfg.RefreshQueueKey)
		for {
			select {
			case <-ctx.Done():
				log.Printf("[QUEUE] refresh worker stopped")
				return
			default:
			}

			result, err := q.redis.BLPop(ctx, q.cfg.WorkerPollTimeout, q.cfg.RefreshQueueKey).Result()
			if err != nil {
				if err == redis.Nil || ctx.Err() != nil {
					continue
				}
				log.Printf("[QUEUE] poll failed: %v", err)
				time.Sleep(time.Second)
				continue
			}
			if len(result) < 2 {
				continue
			}

			var task RefreshTask
			if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
				log.Printf("[QUEUE] dropping unreadable task: %v", err)
				continue
			}

			if _, err := q.projections.RefreshProjections(ctx, task.CompanyID); err != nil {
				log.Printf("[QUEUE] rebuild for company %d (task %s) failed: %v", task.CompanyID, task.TaskID, err)
			}
		}
	}()
}
