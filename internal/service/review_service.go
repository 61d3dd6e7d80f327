package service

import (
	"encoding/json"
	"errors"
	"math"
	"time"

	"vstep_exam_backend/internal/config"
	"vstep_exam_backend/internal/model"
	"vstep_exam_backend/internal/repository"
	"vstep_exam_backend/internal/scoring"
	"vstep_exam_backend/internal/util"
	"vstep_exam_backend/pkg/logger"
	"vstep_exam_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuditThreshold 人工复核分与此前自动估分差距超过该值时仅做标记，不拦截。
const AuditThreshold = 0.5

// ReviewService 人工评阅：队列、乐观认领、终评。所有写入都是条件更新，
// 丢失竞争的一方收到 Conflict 而不是静默覆盖。
type ReviewService struct {
	DB             *gorm.DB
	SubmissionRepo *repository.SubmissionRepository
	UserRepo       *repository.UserRepository
	OutboxRepo     *repository.OutboxRepository
	Progress       *ProgressService
	Exam           *ExamService
	ClaimTimeout   time.Duration
}

func NewReviewService(
	db *gorm.DB,
	submissionRepo *repository.SubmissionRepository,
	userRepo *repository.UserRepository,
	outboxRepo *repository.OutboxRepository,
	progress *ProgressService,
	exam *ExamService,
	cfg *config.Config,
) *ReviewService {
	return &ReviewService{
		DB:             db,
		SubmissionRepo: submissionRepo,
		UserRepo:       userRepo,
		OutboxRepo:     outboxRepo,
		Progress:       progress,
		Exam:           exam,
		ClaimTimeout:   cfg.Grading.ClaimTimeoutMinutes,
	}
}

// Queue lists review-pending submissions, high priority first, oldest
// first within a priority.
func (s *ReviewService) Queue(skill model.Skill, priority model.ReviewPriority, page, limit int) ([]model.Submission, int64, error) {
	subs, total, err := s.SubmissionRepo.ListReviewQueue(skill, priority, page, limit)
	if err == nil {
		if depth, derr := s.SubmissionRepo.CountByStatus(model.StatusReviewPending); derr == nil {
			monitoring.ReviewQueueDepth.Set(float64(depth))
		}
	}
	return subs, total, err
}

// Claim takes the review lock for the caller. Re-claiming one's own live
// claim is idempotent; an expired claim transfers silently.
func (s *ReviewService) Claim(id string, actor *util.Claims) (*model.Submission, error) {
	sub, err := s.SubmissionRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NewNotFound("submission not found")
		}
		return nil, err
	}
	if sub.Status != model.StatusReviewPending {
		return nil, util.NewConflict("submission is not awaiting review")
	}

	now := time.Now()
	rows, err := s.SubmissionRepo.Claim(id, actor.UserID, now, now.Add(-s.ClaimTimeout))
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		monitoring.ClaimConflicts.Inc()
		return nil, util.NewConflict("submission already claimed by another reviewer")
	}
	return s.SubmissionRepo.FindByID(id)
}

// Release drops a claim. Only the holder or an admin may release.
func (s *ReviewService) Release(id string, actor *util.Claims) error {
	sub, err := s.SubmissionRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.NewNotFound("submission not found")
		}
		return err
	}
	if sub.ClaimedBy == nil {
		return util.NewBadRequest("submission is not claimed")
	}
	if *sub.ClaimedBy != actor.UserID && !actor.IsElevated() {
		return util.NewForbidden("claim belongs to another reviewer")
	}
	return s.SubmissionRepo.Release(id)
}

type ReviewRequest struct {
	Scores   map[string]float64 `json:"scores" binding:"required"`
	Feedback string             `json:"feedback"`
}

// reviewResult is the detail payload written after a human review. A prior
// automatic estimate survives under aiScore.
type reviewResult struct {
	Criteria   map[string]float64 `json:"criteria"`
	FinalScore float64            `json:"finalScore"`
	ReviewedBy string             `json:"reviewedBy"`
	ReviewedAt time.Time          `json:"reviewedAt"`
	AIScore    *float64           `json:"aiScore,omitempty"`
	AIResult   json.RawMessage    `json:"aiResult,omitempty"`
}

// Review finalizes a claimed submission. The criterion scores average into
// the final score, rounded to the half point. A final score far from the
// prior automatic estimate raises the audit flag; it never blocks.
func (s *ReviewService) Review(id string, actor *util.Claims, req *ReviewRequest) (*model.Submission, error) {
	if len(req.Scores) == 0 {
		return nil, util.NewBadRequest("at least one criterion score is required")
	}
	sum := 0.0
	for name, v := range req.Scores {
		if v < 0 || v > 10 {
			return nil, util.NewBadRequest("criterion " + name + " must be between 0 and 10")
		}
		sum += v
	}
	finalScore := scoring.RoundHalf(sum / float64(len(req.Scores)))

	sub, err := s.SubmissionRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NewNotFound("submission not found")
		}
		return nil, err
	}
	if sub.Status != model.StatusReviewPending {
		return nil, util.NewConflict("submission is not awaiting review")
	}
	if !actor.IsElevated() {
		if sub.ClaimedBy == nil || *sub.ClaimedBy != actor.UserID {
			return nil, util.NewForbidden("claim the submission before reviewing it")
		}
	}

	auditFlag := sub.Score != nil && math.Abs(finalScore-*sub.Score) > AuditThreshold
	now := time.Now()

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		subRepo := s.SubmissionRepo.WithTx(tx)

		rows, err := subRepo.FinalizeReview(id, actor.UserID, actor.IsElevated(),
			now.Add(-s.ClaimTimeout), finalScore, scoring.ScoreToBand(finalScore), auditFlag, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			monitoring.ClaimConflicts.Inc()
			return util.NewConflict("submission was modified concurrently or the claim expired")
		}

		detail, err := subRepo.FindDetail(id)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if detail != nil && err == nil {
			result := reviewResult{
				Criteria:   req.Scores,
				FinalScore: finalScore,
				ReviewedBy: actor.UserID,
				ReviewedAt: now,
				AIScore:    sub.Score,
			}
			if len(detail.Result) > 0 {
				result.AIResult = detail.Result
			}
			raw, merr := json.Marshal(result)
			if merr != nil {
				return merr
			}
			detail.Result = raw
			detail.Feedback = req.Feedback
			if err := subRepo.UpdateDetail(detail); err != nil {
				return err
			}
		}

		payload, err := json.Marshal(map[string]interface{}{
			"submissionId": id,
			"userId":       sub.UserID,
			"skill":        sub.Skill,
			"score":        finalScore,
			"auditFlag":    auditFlag,
		})
		if err != nil {
			return err
		}
		return s.OutboxRepo.WithTx(tx).Enqueue(&model.OutboxEvent{
			SubmissionID: id,
			MessageType:  model.MessageReviewCompleted,
			Payload:      payload,
		})
	})
	if err != nil {
		return nil, err
	}

	if err := s.Progress.RecordScore(sub.UserID, sub.Skill, id, finalScore); err != nil {
		logger.Log.Error("failed to record skill score after review",
			zap.String("submission_id", id), zap.Error(err))
	}
	if err := s.Exam.OnChildCompleted(id); err != nil {
		logger.Log.Error("failed to roll up exam session after review",
			zap.String("submission_id", id), zap.Error(err))
	}

	monitoring.GradingTasks.WithLabelValues(string(sub.Skill), "reviewed").Inc()
	return s.SubmissionRepo.FindByID(id)
}

type AssignRequest struct {
	ReviewerID string               `json:"reviewerId" binding:"required"`
	Priority   model.ReviewPriority `json:"priority"`
}

// Assign routes a submission to a reviewer without locking it. The
// assignment is advisory; the claim protocol still decides who reviews.
func (s *ReviewService) Assign(id string, req *AssignRequest) (*model.Submission, error) {
	reviewer, err := s.UserRepo.FindByID(req.ReviewerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NewBadRequest("reviewer not found")
		}
		return nil, err
	}
	if reviewer.Role == model.Student {
		return nil, util.NewBadRequest("reviewer must be a teacher or admin")
	}

	switch req.Priority {
	case model.PriorityNone, model.PriorityHigh, model.PriorityMedium, model.PriorityLow:
	default:
		return nil, util.NewBadRequest("invalid priority")
	}

	rows, err := s.SubmissionRepo.Assign(id, req.ReviewerID, req.Priority)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		if _, ferr := s.SubmissionRepo.FindByID(id); errors.Is(ferr, gorm.ErrRecordNotFound) {
			return nil, util.NewNotFound("submission not found")
		}
		return nil, util.NewConflict("submission is not awaiting review")
	}
	return s.SubmissionRepo.FindByID(id)
}
