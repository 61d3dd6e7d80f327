package model

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxPublished  OutboxStatus = "published"
	OutboxFailed     OutboxStatus = "failed"
)

const (
	MessageReviewRequested = "submission.review_requested"
	MessageReviewCompleted = "submission.review_completed"
)

// OutboxEvent 评阅事件的事务性发件箱。与业务写入同事务落库，由后台发布器投递。
// swagger:model OutboxEvent
type OutboxEvent struct {
	ID           string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SubmissionID string          `gorm:"type:varchar(36);index;not null" json:"submissionId"`
	MessageType  string          `gorm:"size:50;not null" json:"messageType"`
	Payload      json.RawMessage `gorm:"type:json;not null" json:"payload"`
	Status       OutboxStatus    `gorm:"size:20;index;default:'pending'" json:"status"`
	Attempts     int             `gorm:"default:0" json:"attempts"`
	ErrorMessage string          `gorm:"type:text" json:"errorMessage"`
	LockedBy     *string         `gorm:"size:64" json:"lockedBy"`
	LockedAt     *time.Time      `json:"lockedAt"`
	PublishedAt  *time.Time      `json:"publishedAt"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func (OutboxEvent) TableName() string {
	return "outbox_events"
}

func (e *OutboxEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = GenerateUUID()
	}
	return nil
}
