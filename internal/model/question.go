package model

import "encoding/json"

type Skill string

const (
	SkillListening Skill = "listening"
	SkillReading   Skill = "reading"
	SkillWriting   Skill = "writing"
	SkillSpeaking  Skill = "speaking"
)

// AllSkills in spider-chart display order.
var AllSkills = []Skill{SkillListening, SkillReading, SkillWriting, SkillSpeaking}

// IsObjective reports whether the skill is machine-gradable.
func (s Skill) IsObjective() bool {
	return s == SkillListening || s == SkillReading
}

// Question 题库条目。AnswerKey 仅对客观题（听力/阅读）存在。
// swagger:model Question
type Question struct {
	UUIDBase
	Skill     Skill           `gorm:"size:20;index;not null" json:"skill"`
	Level     Band            `gorm:"size:10" json:"level"`
	Title     string          `gorm:"size:255" json:"title"`
	Content   json.RawMessage `gorm:"type:json" json:"content"`
	AnswerKey json.RawMessage `gorm:"type:json" json:"-"`
}

func (Question) TableName() string {
	return "questions"
}

// Exam 试卷定义。Blueprint 按技能列出题目 ID。
// swagger:model Exam
type Exam struct {
	UUIDBase
	Title     string          `gorm:"size:255;not null" json:"title"`
	IsActive  bool            `gorm:"default:true" json:"isActive"`
	Blueprint json.RawMessage `gorm:"type:json" json:"blueprint"`
}

func (Exam) TableName() string {
	return "exams"
}

// ExamBlueprint is the decoded shape of Exam.Blueprint.
type ExamBlueprint struct {
	Listening SkillSection `json:"listening"`
	Reading   SkillSection `json:"reading"`
	Writing   SkillSection `json:"writing"`
	Speaking  SkillSection `json:"speaking"`
}

type SkillSection struct {
	QuestionIDs []string `json:"questionIds"`
}

// QuestionIDs flattens the blueprint into the set of allowed question IDs.
func (bp *ExamBlueprint) QuestionIDs() map[string]bool {
	ids := make(map[string]bool)
	for _, section := range []SkillSection{bp.Listening, bp.Reading, bp.Writing, bp.Speaking} {
		for _, id := range section.QuestionIDs {
			ids[id] = true
		}
	}
	return ids
}
