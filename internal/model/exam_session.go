package model

import (
	"encoding/json"
	"time"
)

type ExamSessionStatus string

const (
	SessionInProgress ExamSessionStatus = "in_progress"
	SessionSubmitted  ExamSessionStatus = "submitted"
	SessionCompleted  ExamSessionStatus = "completed"
	SessionAbandoned  ExamSessionStatus = "abandoned"
)

// ExamSession 一名学员的一次整卷作答。同一 (user, exam) 至多一条 in_progress。
// swagger:model ExamSession
type ExamSession struct {
	UUIDBase
	UserID string `gorm:"type:varchar(36);index;not null" json:"userId"`
	ExamID string `gorm:"type:varchar(36);index;not null" json:"examId"`

	Status ExamSessionStatus `gorm:"size:20;index;default:'in_progress'" json:"status"`

	ListeningScore *float64 `gorm:"type:decimal(3,1)" json:"listeningScore"`
	ReadingScore   *float64 `gorm:"type:decimal(3,1)" json:"readingScore"`
	WritingScore   *float64 `gorm:"type:decimal(3,1)" json:"writingScore"`
	SpeakingScore  *float64 `gorm:"type:decimal(3,1)" json:"speakingScore"`

	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

func (ExamSession) TableName() string {
	return "exam_sessions"
}

// ExamAnswer 按 (sessionId, questionId) 唯一，自动保存时整行覆盖。
// swagger:model ExamAnswer
type ExamAnswer struct {
	UUIDBase
	SessionID  string          `gorm:"type:varchar(36);uniqueIndex:idx_session_question;not null" json:"sessionId"`
	QuestionID string          `gorm:"type:varchar(36);uniqueIndex:idx_session_question;not null" json:"questionId"`
	Answer     json.RawMessage `gorm:"type:json;not null" json:"answer"`
	IsCorrect  *bool           `json:"isCorrect"`
}

func (ExamAnswer) TableName() string {
	return "exam_answers"
}

// ExamSubmission 关联整卷与主观题产生的子 Submission。
// swagger:model ExamSubmission
type ExamSubmission struct {
	UUIDBase
	SessionID    string `gorm:"type:varchar(36);index;not null" json:"sessionId"`
	SubmissionID string `gorm:"type:varchar(36);index;not null" json:"submissionId"`
	Skill        Skill  `gorm:"size:20;not null" json:"skill"`
}

func (ExamSubmission) TableName() string {
	return "exam_submissions"
}
