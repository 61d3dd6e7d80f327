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

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SubmissionService struct {
	SubmissionRepo *repository.SubmissionRepository
	QuestionRepo   *repository.QuestionRepository
	Dispatch       *DispatchService
	Progress       *ProgressService
}

func NewSubmissionService(
	submissionRepo *repository.SubmissionRepository,
	questionRepo *repository.QuestionRepository,
	dispatch *DispatchService,
	progress *ProgressService,
) *SubmissionService {
	return &SubmissionService{
		SubmissionRepo: submissionRepo,
		QuestionRepo:   questionRepo,
		Dispatch:       dispatch,
		Progress:       progress,
	}
}

type CreateSubmissionRequest struct {
	QuestionID string          `json:"questionId" binding:"required"`
	Answer     json.RawMessage `json:"answer" binding:"required"`
}

// SubmissionView joins the submission row with its detail payload.
type SubmissionView struct {
	model.Submission
	Answer   json.RawMessage `json:"answer,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Feedback string          `json:"feedback,omitempty"`
}

// Create validates the answer payload against the question's skill, stores
// the submission as pending and queues it for grading.
func (s *SubmissionService) Create(ctx context.Context, userID string, req *CreateSubmissionRequest) (*model.Submission, error) {
	question, err := s.QuestionRepo.FindByID(req.QuestionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NewNotFound("question not found")
		}
		return nil, err
	}

	if err := scoring.ValidateAnswer(question.Skill, req.Answer); err != nil {
		return nil, util.NewBadRequest(err.Error())
	}

	sub := &model.Submission{
		UserID:     userID,
		QuestionID: question.ID,
		Skill:      question.Skill,
		Status:     model.StatusPending,
	}
	detail := &model.SubmissionDetail{Answer: req.Answer}
	if err := s.SubmissionRepo.Create(sub, detail); err != nil {
		return nil, err
	}

	s.enqueueForGrading(ctx, sub.ID)
	return sub, nil
}

// enqueueForGrading pushes the task and advances pending→queued. A failed
// push leaves the row pending; the requeue sweep picks it up later.
func (s *SubmissionService) enqueueForGrading(ctx context.Context, submissionID string) {
	if err := s.Dispatch.Enqueue(ctx, submissionID); err != nil {
		logger.Log.Error("failed to enqueue grading task",
			zap.String("submission_id", submissionID), zap.Error(err))
		return
	}
	if _, err := s.SubmissionRepo.UpdateStatus(submissionID, model.StatusPending, model.StatusQueued); err != nil {
		logger.Log.Error("failed to mark submission queued",
			zap.String("submission_id", submissionID), zap.Error(err))
	}
}

// Get returns a submission with its detail. Students only see their own.
func (s *SubmissionService) Get(id string, actor *util.Claims) (*SubmissionView, error) {
	sub, err := s.SubmissionRepo.FindByID(id)
	if err != nil {
		return nil, err
	}
	if sub.UserID != actor.UserID && actor.Role == model.Student {
		return nil, util.NewForbidden("not your submission")
	}

	view := &SubmissionView{Submission: *sub}
	detail, err := s.SubmissionRepo.FindDetail(id)
	if err == nil {
		view.Answer = detail.Answer
		view.Result = detail.Result
		view.Feedback = detail.Feedback
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return view, nil
}

func (s *SubmissionService) ListByUser(userID string, status model.SubmissionStatus, skill model.Skill, page, limit int) ([]model.Submission, int64, error) {
	return s.SubmissionRepo.ListByUser(userID, status, skill, page, limit)
}

type UpdateSubmissionRequest struct {
	Answer json.RawMessage        `json:"answer"`
	Status model.SubmissionStatus `json:"status"`
}

// Update rewrites a submission's answer or moves its status. Completed and
// failed submissions are immutable for everyone but an admin; status
// changes must follow the transition table.
func (s *SubmissionService) Update(id string, actor *util.Claims, req *UpdateSubmissionRequest) (*model.Submission, error) {
	sub, err := s.SubmissionRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NewNotFound("submission not found")
		}
		return nil, err
	}
	if sub.UserID != actor.UserID && !actor.IsElevated() {
		return nil, util.NewForbidden("not your submission")
	}
	if (sub.Status == model.StatusCompleted || sub.Status == model.StatusFailed) && !actor.IsElevated() {
		return nil, util.NewConflict("submission already reached a terminal state")
	}

	if len(req.Answer) > 0 {
		if err := scoring.ValidateAnswer(sub.Skill, req.Answer); err != nil {
			return nil, util.NewBadRequest(err.Error())
		}
		detail, derr := s.SubmissionRepo.FindDetail(id)
		if derr != nil && !errors.Is(derr, gorm.ErrRecordNotFound) {
			return nil, derr
		}
		if derr != nil {
			detail = &model.SubmissionDetail{SubmissionID: id}
		}
		detail.Answer = req.Answer
		if err := s.SubmissionRepo.UpdateDetail(detail); err != nil {
			return nil, err
		}
	}

	if req.Status != "" && req.Status != sub.Status {
		if err := scoring.ValidateTransition(sub.Status, req.Status); err != nil {
			return nil, util.NewBadRequest(err.Error())
		}
		rows, err := s.SubmissionRepo.UpdateStatus(id, sub.Status, req.Status)
		if err != nil {
			return nil, err
		}
		if rows == 0 {
			return nil, util.NewConflict("submission was modified concurrently")
		}
	}

	return s.SubmissionRepo.FindByID(id)
}

// Delete soft-deletes a submission. Owner or admin only; graded work is
// kept for everyone but an admin.
func (s *SubmissionService) Delete(id string, actor *util.Claims) error {
	sub, err := s.SubmissionRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.NewNotFound("submission not found")
		}
		return err
	}
	if sub.UserID != actor.UserID && !actor.IsElevated() {
		return util.NewForbidden("not your submission")
	}
	if sub.Status == model.StatusCompleted && !actor.IsElevated() {
		return util.NewConflict("completed submissions cannot be deleted")
	}
	return s.SubmissionRepo.SoftDelete(id)
}

type DirectGradeRequest struct {
	Score    float64 `json:"score" binding:"required,gte=0,lte=10"`
	Feedback string  `json:"feedback"`
}

// DirectGrade lets an instructor score a submission that has not reached a
// terminal state, bypassing the queue. Score and band land together.
func (s *SubmissionService) DirectGrade(id string, graderID string, req *DirectGradeRequest) (*model.Submission, error) {
	sub, err := s.SubmissionRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NewNotFound("submission not found")
		}
		return nil, err
	}

	now := time.Now()
	rows, err := s.SubmissionRepo.Grade(id, scoring.GradableStatuses, req.Score, scoring.ScoreToBand(req.Score), graderID, now)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, util.NewConflict("submission already reached a terminal state")
	}

	if req.Feedback != "" {
		if detail, derr := s.SubmissionRepo.FindDetail(id); derr == nil {
			detail.Feedback = req.Feedback
			if uerr := s.SubmissionRepo.UpdateDetail(detail); uerr != nil {
				logger.Log.Error("failed to store grade feedback",
					zap.String("submission_id", id), zap.Error(uerr))
			}
		}
	}

	if err := s.Progress.RecordScore(sub.UserID, sub.Skill, id, req.Score); err != nil {
		logger.Log.Error("failed to record skill score after direct grade",
			zap.String("submission_id", id), zap.Error(err))
	}

	return s.SubmissionRepo.FindByID(id)
}

// RequeueStalled re-dispatches rows stuck in pending after a failed push.
func (s *SubmissionService) RequeueStalled(ctx context.Context, olderThan time.Duration) {
	var stale []model.Submission
	cutoff := time.Now().Add(-olderThan)
	if err := s.SubmissionRepo.DB.
		Where("status = ? AND created_at < ?", model.StatusPending, cutoff).
		Limit(100).
		Find(&stale).Error; err != nil {
		logger.Log.Error("requeue sweep query failed", zap.Error(err))
		return
	}
	for _, sub := range stale {
		s.enqueueForGrading(ctx, sub.ID)
	}
}
