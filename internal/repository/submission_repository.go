package repository

import (
	"time"

	"vstep_exam_backend/internal/model"

	"gorm.io/gorm"
)

type SubmissionRepository struct {
	DB *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{DB: db}
}

// WithTx binds the repository to an open transaction.
func (r *SubmissionRepository) WithTx(tx *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{DB: tx}
}

func (r *SubmissionRepository) Create(sub *model.Submission, detail *model.SubmissionDetail) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sub).Error; err != nil {
			return err
		}
		detail.SubmissionID = sub.ID
		return tx.Create(detail).Error
	})
}

func (r *SubmissionRepository) FindByID(id string) (*model.Submission, error) {
	var s model.Submission
	err := r.DB.First(&s, "id = ?", id).Error
	return &s, err
}

func (r *SubmissionRepository) FindDetail(submissionID string) (*model.SubmissionDetail, error) {
	var d model.SubmissionDetail
	err := r.DB.First(&d, "submission_id = ?", submissionID).Error
	return &d, err
}

func (r *SubmissionRepository) ListByUser(userID string, status model.SubmissionStatus, skill model.Skill, page, limit int) ([]model.Submission, int64, error) {
	var subs []model.Submission
	var total int64
	query := r.DB.Model(&model.Submission{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if skill != "" {
		query = query.Where("skill = ?", skill)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&subs).Error
	return subs, total, err
}

// ListReviewQueue 按优先级(high→medium→low→无)再按提交时间升序排列待复核队列。
func (r *SubmissionRepository) ListReviewQueue(skill model.Skill, priority model.ReviewPriority, page, limit int) ([]model.Submission, int64, error) {
	var subs []model.Submission
	var total int64
	query := r.DB.Model(&model.Submission{}).Where("status = ?", model.StatusReviewPending)
	if skill != "" {
		query = query.Where("skill = ?", skill)
	}
	if priority != "" {
		query = query.Where("review_priority = ?", priority)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	err := query.
		Order("CASE review_priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 WHEN 'low' THEN 2 ELSE 3 END").
		Order("created_at asc").
		Offset(offset).Limit(limit).
		Find(&subs).Error
	return subs, total, err
}

// UpdateStatus moves a submission only when it is still in the expected
// state. Zero rows means another writer got there first.
func (r *SubmissionRepository) UpdateStatus(id string, from, to model.SubmissionStatus) (int64, error) {
	res := r.DB.Model(&model.Submission{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

// StartProcessing pulls a submission into the grading pipeline from any of
// the allowed upstream states. Zero rows means a concurrent worker won.
func (r *SubmissionRepository) StartProcessing(id string, from []model.SubmissionStatus) (int64, error) {
	res := r.DB.Model(&model.Submission{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", model.StatusProcessing)
	return res.RowsAffected, res.Error
}

// Claim takes the review lock when it is free, expired (claimed_at before
// cutoff) or already held by the same reviewer. Zero rows means the lock
// is live under someone else or the submission left review.
func (r *SubmissionRepository) Claim(id, reviewerID string, now, cutoff time.Time) (int64, error) {
	res := r.DB.Model(&model.Submission{}).
		Where("id = ? AND status = ?", id, model.StatusReviewPending).
		Where("claimed_by IS NULL OR claimed_at < ? OR claimed_by = ?", cutoff, reviewerID).
		Updates(map[string]interface{}{
			"claimed_by": reviewerID,
			"claimed_at": now,
		})
	return res.RowsAffected, res.Error
}

func (r *SubmissionRepository) Release(id string) error {
	return r.DB.Model(&model.Submission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"claimed_by": nil,
			"claimed_at": nil,
		}).Error
}

// FinalizeReview completes a human review. Without the admin bypass the
// write only lands while the actor still holds a live claim.
func (r *SubmissionRepository) FinalizeReview(id, reviewerID string, admin bool, cutoff time.Time, score float64, band model.Band, auditFlag bool, completedAt time.Time) (int64, error) {
	query := r.DB.Model(&model.Submission{}).
		Where("id = ? AND status = ?", id, model.StatusReviewPending)
	if !admin {
		query = query.Where("claimed_by = ? AND claimed_at >= ?", reviewerID, cutoff)
	}
	res := query.Updates(map[string]interface{}{
		"status":       model.StatusCompleted,
		"score":        score,
		"band":         band,
		"reviewer_id":  reviewerID,
		"grading_mode": model.GradingHuman,
		"audit_flag":   auditFlag,
		"claimed_by":   nil,
		"claimed_at":   nil,
		"completed_at": completedAt,
	})
	return res.RowsAffected, res.Error
}

// Assign sets the reviewer and priority without touching the claim lock.
func (r *SubmissionRepository) Assign(id, reviewerID string, priority model.ReviewPriority) (int64, error) {
	updates := map[string]interface{}{"reviewer_id": reviewerID}
	if priority != "" {
		updates["review_priority"] = priority
	}
	res := r.DB.Model(&model.Submission{}).
		Where("id = ? AND status = ?", id, model.StatusReviewPending).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// CompleteAuto records an auto-grade outcome in the given state.
func (r *SubmissionRepository) CompleteAuto(id string, from model.SubmissionStatus, score *float64, band model.Band, completedAt time.Time) (int64, error) {
	res := r.DB.Model(&model.Submission{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":       model.StatusCompleted,
			"score":        score,
			"band":         band,
			"grading_mode": model.GradingAuto,
			"completed_at": completedAt,
		})
	return res.RowsAffected, res.Error
}

// MoveToReview parks a submission for human review with a priority.
func (r *SubmissionRepository) MoveToReview(id string, from model.SubmissionStatus, priority model.ReviewPriority) (int64, error) {
	res := r.DB.Model(&model.Submission{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":          model.StatusReviewPending,
			"review_priority": priority,
		})
	return res.RowsAffected, res.Error
}

func (r *SubmissionRepository) MarkFailed(id string, from model.SubmissionStatus) (int64, error) {
	res := r.DB.Model(&model.Submission{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", model.StatusFailed)
	return res.RowsAffected, res.Error
}

// Grade applies a direct instructor grade while the submission is still in
// a gradable state. Zero rows means it already reached a terminal state.
func (r *SubmissionRepository) Grade(id string, gradable []model.SubmissionStatus, score float64, band model.Band, graderID string, completedAt time.Time) (int64, error) {
	res := r.DB.Model(&model.Submission{}).
		Where("id = ? AND status IN ?", id, gradable).
		Updates(map[string]interface{}{
			"status":       model.StatusCompleted,
			"score":        score,
			"band":         band,
			"reviewer_id":  graderID,
			"grading_mode": model.GradingHuman,
			"claimed_by":   nil,
			"claimed_at":   nil,
			"completed_at": completedAt,
		})
	return res.RowsAffected, res.Error
}

// SoftDelete hides a submission from every read path; the row and its
// detail stay behind for audit.
func (r *SubmissionRepository) SoftDelete(id string) error {
	return r.DB.Delete(&model.Submission{}, "id = ?", id).Error
}

func (r *SubmissionRepository) UpdateDetail(detail *model.SubmissionDetail) error {
	return r.DB.Save(detail).Error
}

// CountByStatus feeds the monitoring gauges.
func (r *SubmissionRepository) CountByStatus(status model.SubmissionStatus) (int64, error) {
	var total int64
	err := r.DB.Model(&model.Submission{}).Where("status = ?", status).Count(&total).Error
	return total, err
}
