package repository

import (
	"time"

	"vstep_exam_backend/internal/model"

	"gorm.io/gorm"
)

type OutboxRepository struct {
	DB *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{DB: db}
}

// WithTx binds the repository to an open transaction.
func (r *OutboxRepository) WithTx(tx *gorm.DB) *OutboxRepository {
	return &OutboxRepository{DB: tx}
}

func (r *OutboxRepository) Enqueue(event *model.OutboxEvent) error {
	return r.DB.Create(event).Error
}

// ClaimBatch locks up to limit publishable rows for one publisher. Rows
// stuck in processing past the cutoff are fair game again.
func (r *OutboxRepository) ClaimBatch(lockerID string, limit int, now, cutoff time.Time) ([]model.OutboxEvent, error) {
	var ids []string
	err := r.DB.Model(&model.OutboxEvent{}).
		Where("status = ? OR (status = ? AND locked_at < ?)",
			model.OutboxPending, model.OutboxProcessing, cutoff).
		Order("created_at asc").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return nil, err
	}

	res := r.DB.Model(&model.OutboxEvent{}).
		Where("id IN ?", ids).
		Where("status = ? OR (status = ? AND locked_at < ?)",
			model.OutboxPending, model.OutboxProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":    model.OutboxProcessing,
			"locked_by": lockerID,
			"locked_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}

	var events []model.OutboxEvent
	err = r.DB.
		Where("id IN ? AND locked_by = ? AND status = ?", ids, lockerID, model.OutboxProcessing).
		Order("created_at asc").
		Find(&events).Error
	return events, err
}

func (r *OutboxRepository) MarkPublished(id string, at time.Time) error {
	return r.DB.Model(&model.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       model.OutboxPublished,
			"published_at": at,
			"locked_by":    nil,
			"locked_at":    nil,
		}).Error
}

// MarkFailed releases the lock and counts the attempt; the row returns to
// pending until attempts run out.
func (r *OutboxRepository) MarkFailed(id string, maxAttempts int, errMsg string) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var event model.OutboxEvent
		if err := tx.First(&event, "id = ?", id).Error; err != nil {
			return err
		}
		status := model.OutboxPending
		if event.Attempts+1 >= maxAttempts {
			status = model.OutboxFailed
		}
		return tx.Model(&model.OutboxEvent{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":        status,
				"attempts":      event.Attempts + 1,
				"error_message": errMsg,
				"locked_by":     nil,
				"locked_at":     nil,
			}).Error
	})
}

func (r *OutboxRepository) CountByStatus(status model.OutboxStatus) (int64, error) {
	var total int64
	err := r.DB.Model(&model.OutboxEvent{}).Where("status = ?", status).Count(&total).Error
	return total, err
}
