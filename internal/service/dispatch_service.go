package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"vstep_exam_backend/internal/config"
	"vstep_exam_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// GradingTask 是评分队列中的一条任务。
type GradingTask struct {
	SubmissionID string `json:"submissionId"`
	EnqueuedAt   int64  `json:"enqueuedAt"`
}

// DispatchService pushes grading work onto the Redis queue and feeds the
// worker pool on the other end. The queue decouples answer intake from
// grading latency.
type DispatchService struct {
	Redis *redis.Client
	Cfg   *config.GradingConfig
}

func NewDispatchService(rdb *redis.Client, cfg *config.Config) *DispatchService {
	return &DispatchService{Redis: rdb, Cfg: &cfg.Grading}
}

// Enqueue pushes one task per submission. Callers invoke this only after
// the owning transaction has committed.
func (s *DispatchService) Enqueue(ctx context.Context, submissionIDs ...string) error {
	if len(submissionIDs) == 0 {
		return nil
	}
	payloads := make([]interface{}, 0, len(submissionIDs))
	for _, id := range submissionIDs {
		task := GradingTask{SubmissionID: id, EnqueuedAt: time.Now().Unix()}
		raw, err := json.Marshal(task)
		if err != nil {
			return err
		}
		payloads = append(payloads, raw)
	}
	return s.Redis.LPush(ctx, s.Cfg.QueueKey, payloads...).Err()
}

// RunWorkers blocks consuming the queue with the configured pool size
// until ctx is cancelled.
func (s *DispatchService) RunWorkers(ctx context.Context, handle func(ctx context.Context, task GradingTask)) {
	for i := 0; i < s.Cfg.Workers; i++ {
		go s.workerLoop(ctx, handle)
	}
}

func (s *DispatchService) workerLoop(ctx context.Context, handle func(ctx context.Context, task GradingTask)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := s.Redis.BRPop(ctx, 5*time.Second, s.Cfg.QueueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			logger.Log.Error("grading queue pop failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		// BRPop returns [key, value]
		if len(result) != 2 {
			continue
		}

		var task GradingTask
		if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
			logger.Log.Error("malformed grading task", zap.String("payload", result[1]), zap.Error(err))
			continue
		}
		handle(ctx, task)
	}
}
