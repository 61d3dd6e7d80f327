package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"vstep_exam_backend/internal/config"
	"vstep_exam_backend/internal/model"
	"vstep_exam_backend/internal/repository"
	"vstep_exam_backend/pkg/logger"
	"vstep_exam_backend/pkg/monitoring"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// OutboxService 发布事务性发件箱：周期性认领待发事件并写入 Redis Stream。
// 至少一次投递；消费者按事件 ID 去重。
type OutboxService struct {
	Redis      *redis.Client
	OutboxRepo *repository.OutboxRepository
	Cfg        *config.OutboxConfig
	lockerID   string
}

func NewOutboxService(rdb *redis.Client, outboxRepo *repository.OutboxRepository, cfg *config.Config) *OutboxService {
	hostname, _ := os.Hostname()
	return &OutboxService{
		Redis:      rdb,
		OutboxRepo: outboxRepo,
		Cfg:        &cfg.Outbox,
		lockerID:   fmt.Sprintf("%s-%s", hostname, model.GenerateUUID()[:8]),
	}
}

// Run drains the outbox on a ticker until ctx is cancelled.
func (s *OutboxService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Cfg.IntervalSeconds)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishBatch(ctx)
		}
	}
}

func (s *OutboxService) publishBatch(ctx context.Context) {
	now := time.Now()
	// 锁超时取发布间隔的 10 倍，足够覆盖一次慢批次
	cutoff := now.Add(-10 * s.Cfg.IntervalSeconds)

	events, err := s.OutboxRepo.ClaimBatch(s.lockerID, s.Cfg.BatchSize, now, cutoff)
	if err != nil {
		logger.Log.Error("outbox claim failed", zap.Error(err))
		return
	}

	for _, event := range events {
		if err := s.publish(ctx, &event); err != nil {
			logger.Log.Error("outbox publish failed",
				zap.String("event_id", event.ID),
				zap.String("message_type", event.MessageType),
				zap.Error(err))
			if merr := s.OutboxRepo.MarkFailed(event.ID, s.Cfg.MaxAttempts, err.Error()); merr != nil {
				logger.Log.Error("failed to record outbox failure", zap.String("event_id", event.ID), zap.Error(merr))
			}
			continue
		}
		if err := s.OutboxRepo.MarkPublished(event.ID, time.Now()); err != nil {
			// 已投递但未标记：下一轮重发，消费端去重兜底
			logger.Log.Error("failed to mark outbox event published", zap.String("event_id", event.ID), zap.Error(err))
		}
	}

	if pending, err := s.OutboxRepo.CountByStatus(model.OutboxPending); err == nil {
		monitoring.OutboxPending.Set(float64(pending))
	}
}

func (s *OutboxService) publish(ctx context.Context, event *model.OutboxEvent) error {
	return s.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: s.Cfg.StreamKey,
		Values: map[string]interface{}{
			"eventId":      event.ID,
			"messageType":  event.MessageType,
			"submissionId": event.SubmissionID,
			"payload":      string(event.Payload),
		},
	}).Err()
}
