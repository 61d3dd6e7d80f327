package model

import (
	"encoding/json"
	"time"
)

// Band VSTEP.3-5 等级。空值表示未达 B1。
type Band string

const (
	BandB1 Band = "B1"
	BandB2 Band = "B2"
	BandC1 Band = "C1"
)

type SubmissionStatus string

const (
	StatusPending       SubmissionStatus = "pending"
	StatusQueued        SubmissionStatus = "queued"
	StatusProcessing    SubmissionStatus = "processing"
	StatusCompleted     SubmissionStatus = "completed"
	StatusReviewPending SubmissionStatus = "review_pending"
	StatusFailed        SubmissionStatus = "failed"
)

type ReviewPriority string

const (
	PriorityHigh   ReviewPriority = "high"
	PriorityMedium ReviewPriority = "medium"
	PriorityLow    ReviewPriority = "low"
	PriorityNone   ReviewPriority = ""
)

type GradingMode string

const (
	GradingAuto  GradingMode = "auto"
	GradingHuman GradingMode = "human"
)

// Submission 一名学员对一道题的作答记录。
// swagger:model Submission
type Submission struct {
	UUIDBase
	UserID     string `gorm:"type:varchar(36);index;not null" json:"userId"`
	User       *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
	QuestionID string `gorm:"type:varchar(36);index;not null" json:"questionId"`

	Skill  Skill            `gorm:"size:20;index;not null" json:"skill"`
	Status SubmissionStatus `gorm:"size:20;index;default:'pending'" json:"status"`

	Score *float64 `gorm:"type:decimal(3,1)" json:"score"`
	Band  Band     `gorm:"size:10" json:"band"`

	ReviewPriority ReviewPriority `gorm:"size:10;index" json:"reviewPriority"`
	ReviewerID     *string        `gorm:"type:varchar(36)" json:"reviewerId"`
	GradingMode    GradingMode    `gorm:"size:10" json:"gradingMode"`
	AuditFlag      bool           `gorm:"default:false" json:"auditFlag"`

	ClaimedBy *string    `gorm:"type:varchar(36);index" json:"claimedBy"`
	ClaimedAt *time.Time `json:"claimedAt"`

	CompletedAt *time.Time `json:"completedAt"`
}

func (Submission) TableName() string {
	return "submissions"
}

// SubmissionDetail 与 Submission 一对一，存放作答与评分载荷。
// swagger:model SubmissionDetail
type SubmissionDetail struct {
	SubmissionID string          `gorm:"primaryKey;type:varchar(36)" json:"submissionId"`
	Answer       json.RawMessage `gorm:"type:json;not null" json:"answer"`
	Result       json.RawMessage `gorm:"type:json" json:"result"`
	Feedback     string          `gorm:"type:text" json:"feedback"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func (SubmissionDetail) TableName() string {
	return "submission_details"
}
