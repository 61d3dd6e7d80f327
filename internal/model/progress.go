package model

import (
	"time"

	"gorm.io/gorm"
)

type StreakDirection string

const (
	StreakUp      StreakDirection = "up"
	StreakDown    StreakDirection = "down"
	StreakNeutral StreakDirection = "neutral"
)

// UserSkillScore 追加式得分流水，趋势分析的唯一数据源。从不更新或删除。
// swagger:model UserSkillScore
type UserSkillScore struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID       string    `gorm:"type:varchar(36);index:idx_user_skill_created;not null" json:"userId"`
	Skill        Skill     `gorm:"size:20;index:idx_user_skill_created;not null" json:"skill"`
	SubmissionID *string   `gorm:"type:varchar(36)" json:"submissionId"`
	Score        float64   `gorm:"type:decimal(3,1);not null" json:"score"`
	CreatedAt    time.Time `gorm:"index:idx_user_skill_created" json:"createdAt"`
}

func (UserSkillScore) TableName() string {
	return "user_skill_scores"
}

func (s *UserSkillScore) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = GenerateUUID()
	}
	return nil
}

// UserProgress 每 (user, skill) 一行的物化投影，评分事件触发整行重写。
// swagger:model UserProgress
type UserProgress struct {
	UUIDBase
	UserID          string          `gorm:"type:varchar(36);uniqueIndex:idx_user_skill;not null" json:"userId"`
	Skill           Skill           `gorm:"size:20;uniqueIndex:idx_user_skill;not null" json:"skill"`
	CurrentLevel    Band            `gorm:"size:10" json:"currentLevel"`
	ScaffoldLevel   int             `gorm:"default:1" json:"scaffoldLevel"`
	StreakCount     int             `gorm:"default:0" json:"streakCount"`
	StreakDirection StreakDirection `gorm:"size:10;default:'neutral'" json:"streakDirection"`
	AttemptCount    int             `gorm:"default:0" json:"attemptCount"`
}

func (UserProgress) TableName() string {
	return "user_progress"
}

// UserGoal 每用户至多一条在用目标，仅作 ETA 输入。
// swagger:model UserGoal
type UserGoal struct {
	UUIDBase
	UserID                string     `gorm:"type:varchar(36);uniqueIndex;not null" json:"userId"`
	TargetBand            Band       `gorm:"size:10;not null" json:"targetBand"`
	Deadline              *time.Time `json:"deadline"`
	DailyStudyTimeMinutes int        `gorm:"default:30" json:"dailyStudyTimeMinutes"`
}

func (UserGoal) TableName() string {
	return "user_goals"
}
