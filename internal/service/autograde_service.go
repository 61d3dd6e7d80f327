package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"vstep_exam_backend/internal/model"
	"vstep_exam_backend/internal/repository"
	"vstep_exam_backend/internal/scoring"
	"vstep_exam_backend/internal/util"
	"vstep_exam_backend/pkg/logger"
	"vstep_exam_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutogradeService 消费评分队列：客观题直接判分，主观题转人工评阅。
type AutogradeService struct {
	DB             *gorm.DB
	SubmissionRepo *repository.SubmissionRepository
	QuestionRepo   *repository.QuestionRepository
	GoalRepo       *repository.GoalRepository
	OutboxRepo     *repository.OutboxRepository
	Progress       *ProgressService
}

func NewAutogradeService(
	db *gorm.DB,
	submissionRepo *repository.SubmissionRepository,
	questionRepo *repository.QuestionRepository,
	goalRepo *repository.GoalRepository,
	outboxRepo *repository.OutboxRepository,
	progress *ProgressService,
) *AutogradeService {
	return &AutogradeService{
		DB:             db,
		SubmissionRepo: submissionRepo,
		QuestionRepo:   questionRepo,
		GoalRepo:       goalRepo,
		OutboxRepo:     outboxRepo,
		Progress:       progress,
	}
}

// gradeResult is the detail payload written after an objective grade.
type gradeResult struct {
	CorrectCount int       `json:"correctCount"`
	TotalCount   int       `json:"totalCount"`
	GradedAt     time.Time `json:"gradedAt"`
}

// Process handles one queued grading task. Every exit path settles the
// submission's status; conflicts mean another worker won and are not errors.
func (s *AutogradeService) Process(ctx context.Context, task GradingTask) {
	sub, err := s.SubmissionRepo.FindByID(task.SubmissionID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Log.Error("grading task lookup failed",
				zap.String("submission_id", task.SubmissionID), zap.Error(err))
		}
		return
	}

	// 补偿：LPUSH 成功但 queued 标记失败的行
	if sub.Status == model.StatusPending {
		if _, err := s.SubmissionRepo.UpdateStatus(sub.ID, model.StatusPending, model.StatusQueued); err != nil {
			logger.Log.Error("failed to queue stalled submission", zap.String("submission_id", sub.ID), zap.Error(err))
			return
		}
	}

	rows, err := s.SubmissionRepo.StartProcessing(sub.ID, []model.SubmissionStatus{model.StatusQueued})
	if err != nil {
		logger.Log.Error("failed to start processing", zap.String("submission_id", sub.ID), zap.Error(err))
		return
	}
	if rows == 0 {
		// Duplicate task or already handled.
		return
	}

	if sub.Skill.IsObjective() {
		s.gradeObjective(sub)
	} else {
		s.routeToReview(sub)
	}
}

func (s *AutogradeService) gradeObjective(sub *model.Submission) {
	question, err := s.QuestionRepo.FindByID(sub.QuestionID)
	if err != nil {
		s.fail(sub, "question lookup failed", err)
		return
	}

	key := scoring.ParseAnswerKey(question.AnswerKey)
	if len(key) == 0 {
		s.fail(sub, "question has no answer key", nil)
		return
	}

	detail, err := s.SubmissionRepo.FindDetail(sub.ID)
	if err != nil {
		s.fail(sub, "submission detail missing", err)
		return
	}

	given := scoring.ParseObjectiveAnswer(detail.Answer)
	correct := 0
	for item, expected := range key {
		if scoring.NormalizeAnswer(given[item]) == scoring.NormalizeAnswer(expected) {
			correct++
		}
	}

	score := scoring.CalculateScore(correct, len(key))
	band := scoring.ScoreToBand(*score)

	now := time.Now()
	rows, err := s.SubmissionRepo.CompleteAuto(sub.ID, model.StatusProcessing, score, band, now)
	if err != nil || rows == 0 {
		s.fail(sub, "failed to persist auto grade", err)
		return
	}

	if raw, merr := json.Marshal(gradeResult{CorrectCount: correct, TotalCount: len(key), GradedAt: now}); merr == nil {
		detail.Result = raw
		if uerr := s.SubmissionRepo.UpdateDetail(detail); uerr != nil {
			logger.Log.Error("failed to store grade result", zap.String("submission_id", sub.ID), zap.Error(uerr))
		}
	}

	if err := s.Progress.RecordScore(sub.UserID, sub.Skill, sub.ID, *score); err != nil {
		logger.Log.Error("failed to record skill score", zap.String("submission_id", sub.ID), zap.Error(err))
	}

	monitoring.GradingTasks.WithLabelValues(string(sub.Skill), "completed").Inc()
}

// routeToReview parks a subjective submission for human review. Status
// move and outbox insert share one transaction.
func (s *AutogradeService) routeToReview(sub *model.Submission) {
	priority := s.derivePriority(sub.UserID)

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		rows, err := s.SubmissionRepo.WithTx(tx).MoveToReview(sub.ID, model.StatusProcessing, priority)
		if err != nil {
			return err
		}
		if rows == 0 {
			return util.NewConflict("submission left processing")
		}

		payload, err := json.Marshal(map[string]interface{}{
			"submissionId": sub.ID,
			"userId":       sub.UserID,
			"skill":        sub.Skill,
			"priority":     priority,
		})
		if err != nil {
			return err
		}
		return s.OutboxRepo.WithTx(tx).Enqueue(&model.OutboxEvent{
			SubmissionID: sub.ID,
			MessageType:  model.MessageReviewRequested,
			Payload:      payload,
		})
	})
	if err != nil {
		if !util.IsConflict(err) {
			s.fail(sub, "failed to route submission to review", err)
		}
		return
	}

	monitoring.GradingTasks.WithLabelValues(string(sub.Skill), "review").Inc()
}

// derivePriority bumps learners whose goal deadline is close.
func (s *AutogradeService) derivePriority(userID string) model.ReviewPriority {
	goal, err := s.GoalRepo.FindByUserID(userID)
	if err != nil {
		return model.PriorityMedium
	}
	if goal.Deadline != nil && time.Until(*goal.Deadline) <= scoring.AtRiskWithin {
		return model.PriorityHigh
	}
	return model.PriorityMedium
}

func (s *AutogradeService) fail(sub *model.Submission, msg string, cause error) {
	logger.Log.Error(msg, zap.String("submission_id", sub.ID), zap.Error(cause))
	if _, err := s.SubmissionRepo.MarkFailed(sub.ID, model.StatusProcessing); err != nil {
		logger.Log.Error("failed to mark submission failed", zap.String("submission_id", sub.ID), zap.Error(err))
	}
	monitoring.GradingTasks.WithLabelValues(string(sub.Skill), "failed").Inc()
}

// GradeSingle grades one objective submission synchronously, skipping the
// queue. Used by instructors to unblock a stuck row.
func (s *AutogradeService) GradeSingle(id string) (*model.Submission, error) {
	sub, err := s.SubmissionRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NewNotFound("submission not found")
		}
		return nil, err
	}

	switch sub.Status {
	case model.StatusCompleted, model.StatusFailed, model.StatusReviewPending:
		return nil, util.NewConflict("submission is not auto-gradable in its current state")
	}

	if !sub.Skill.IsObjective() {
		return nil, util.NewBadRequest("only listening and reading submissions can be auto-graded")
	}

	question, err := s.QuestionRepo.FindByID(sub.QuestionID)
	if err != nil {
		return nil, err
	}
	if len(scoring.ParseAnswerKey(question.AnswerKey)) == 0 {
		return nil, util.NewBadRequest("question has no answer key")
	}

	if sub.Status == model.StatusPending {
		if _, err := s.SubmissionRepo.UpdateStatus(sub.ID, model.StatusPending, model.StatusQueued); err != nil {
			return nil, err
		}
	}
	rows, err := s.SubmissionRepo.StartProcessing(sub.ID, []model.SubmissionStatus{model.StatusQueued})
	if err != nil {
		return nil, err
	}
	if rows == 0 && sub.Status != model.StatusProcessing {
		return nil, util.NewConflict("submission is already being graded")
	}

	s.gradeObjective(sub)
	return s.SubmissionRepo.FindByID(id)
}
