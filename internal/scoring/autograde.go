package scoring

import (
	"encoding/json"
	"fmt"

	"vstep_exam_backend/internal/model"
)

// AnswerEntry is one (question, raw answer) pair from a session or batch.
type AnswerEntry struct {
	QuestionID string
	Answer     json.RawMessage
}

// QuestionInfo is what the grader needs to know about a question.
type QuestionInfo struct {
	Skill     model.Skill
	AnswerKey json.RawMessage
}

// SubjectiveEntry is an answer routed to human review.
type SubjectiveEntry struct {
	QuestionID string
	Skill      model.Skill
	Answer     json.RawMessage
}

// BatchResult aggregates one grading pass over a set of answers.
type BatchResult struct {
	ListeningCorrect int
	ListeningTotal   int
	ReadingCorrect   int
	ReadingTotal     int

	// Correctness marks a question fully correct only when every sub-item
	// matched; partial credit lives only in the skill aggregates.
	Correctness map[string]bool

	Subjective []SubjectiveEntry
}

// ListeningScore converts the listening aggregate, nil when no items.
func (r *BatchResult) ListeningScore() *float64 {
	return CalculateScore(r.ListeningCorrect, r.ListeningTotal)
}

// ReadingScore converts the reading aggregate, nil when no items.
func (r *BatchResult) ReadingScore() *float64 {
	return CalculateScore(r.ReadingCorrect, r.ReadingTotal)
}

// UnknownQuestionError 作答引用了题表中不存在的题目。快速失败，不得静默跳过。
type UnknownQuestionError struct {
	QuestionID string
}

func (e *UnknownQuestionError) Error() string {
	return fmt.Sprintf("question %s not found during grading", e.QuestionID)
}

// GradeBatch grades every answer against its question. Writing and speaking
// answers go to the subjective bucket unscored; objective answers are
// compared item by item, whitespace-trimmed and case-folded.
func GradeBatch(answers []AnswerEntry, questions map[string]QuestionInfo) (*BatchResult, error) {
	result := &BatchResult{Correctness: make(map[string]bool)}

	for _, entry := range answers {
		q, ok := questions[entry.QuestionID]
		if !ok {
			return nil, &UnknownQuestionError{QuestionID: entry.QuestionID}
		}

		if !q.Skill.IsObjective() {
			result.Subjective = append(result.Subjective, SubjectiveEntry{
				QuestionID: entry.QuestionID,
				Skill:      q.Skill,
				Answer:     entry.Answer,
			})
			continue
		}

		key := ParseAnswerKey(q.AnswerKey)
		given := ParseObjectiveAnswer(entry.Answer)

		correct := 0
		for item, expected := range key {
			if NormalizeAnswer(given[item]) == NormalizeAnswer(expected) {
				correct++
			}
		}

		result.Correctness[entry.QuestionID] = len(key) > 0 && correct == len(key)

		if q.Skill == model.SkillListening {
			result.ListeningCorrect += correct
			result.ListeningTotal += len(key)
		} else {
			result.ReadingCorrect += correct
			result.ReadingTotal += len(key)
		}
	}

	return result, nil
}
