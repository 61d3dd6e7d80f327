package scoring

import (
	"encoding/json"

	"vstep_exam_backend/internal/model"
)

// Answer payloads vary by skill. Each skill has exactly one shape; every
// consumption site switches exhaustively over the skill.

// ObjectiveAnswer 听力/阅读作答：子题号 → 选项。
type ObjectiveAnswer struct {
	Answers map[string]string `json:"answers"`
}

// ObjectiveAnswerKey 客观题答案键。
type ObjectiveAnswerKey struct {
	CorrectAnswers map[string]string `json:"correctAnswers"`
}

// WritingAnswer 写作作答。
type WritingAnswer struct {
	Text       string `json:"text"`
	Attachment string `json:"attachment,omitempty"`
}

// SpeakingAnswer 口语作答，音频存储于对象存储。
type SpeakingAnswer struct {
	AudioObject     string  `json:"audioObject"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}

// ParseAnswerKey decodes an answer key payload; malformed or missing input
// yields an empty map so that callers fail on total==0 rather than panic.
func ParseAnswerKey(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return map[string]string{}
	}
	var key ObjectiveAnswerKey
	if err := json.Unmarshal(raw, &key); err != nil || key.CorrectAnswers == nil {
		return map[string]string{}
	}
	return key.CorrectAnswers
}

// ParseObjectiveAnswer decodes a learner's objective answer payload.
func ParseObjectiveAnswer(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return map[string]string{}
	}
	var ans ObjectiveAnswer
	if err := json.Unmarshal(raw, &ans); err != nil || ans.Answers == nil {
		return map[string]string{}
	}
	return ans.Answers
}

// ValidateAnswer checks an answer payload against its skill's shape.
func ValidateAnswer(skill model.Skill, raw json.RawMessage) error {
	if len(raw) == 0 {
		return &PayloadError{Skill: skill, Reason: "empty answer payload"}
	}
	switch skill {
	case model.SkillListening, model.SkillReading:
		var ans ObjectiveAnswer
		if err := json.Unmarshal(raw, &ans); err != nil || len(ans.Answers) == 0 {
			return &PayloadError{Skill: skill, Reason: "expected answers map"}
		}
	case model.SkillWriting:
		var ans WritingAnswer
		if err := json.Unmarshal(raw, &ans); err != nil || ans.Text == "" {
			return &PayloadError{Skill: skill, Reason: "expected essay text"}
		}
	case model.SkillSpeaking:
		var ans SpeakingAnswer
		if err := json.Unmarshal(raw, &ans); err != nil || ans.AudioObject == "" {
			return &PayloadError{Skill: skill, Reason: "expected audio object reference"}
		}
	default:
		return &PayloadError{Skill: skill, Reason: "unknown skill"}
	}
	return nil
}

// PayloadError describes an answer payload that does not match its skill.
type PayloadError struct {
	Skill  model.Skill
	Reason string
}

func (e *PayloadError) Error() string {
	return "invalid " + string(e.Skill) + " answer: " + e.Reason
}
