package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"vstep_exam_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessGradesObjectiveSubmission(t *testing.T) {
	env := newTestEnv(t)
	student := env.seedUser(t, model.Student)
	q := env.seedQuestion(t, model.SkillListening, map[string]string{"1": "A", "2": "B"})
	sub := env.seedSubmission(t, student.ID, q.ID, model.SkillListening, model.StatusQueued,
		json.RawMessage(`{"answers":{"1":"a","2":"C"}}`))

	env.Autograde.Process(context.Background(), GradingTask{SubmissionID: sub.ID})

	got, err := env.Subs.FindByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	require.NotNil(t, got.Score)
	// 2 题对 1 题:1/2*10 = 5.0
	assert.Equal(t, 5.0, *got.Score)
	assert.Equal(t, model.BandB1, got.Band)
	assert.Equal(t, model.GradingAuto, got.GradingMode)
	assert.NotNil(t, got.CompletedAt)

	// 判分明细写入 detail
	detail, err := env.Subs.FindDetail(sub.ID)
	require.NoError(t, err)
	var result struct {
		CorrectCount int `json:"correctCount"`
		TotalCount   int `json:"totalCount"`
	}
	require.NoError(t, json.Unmarshal(detail.Result, &result))
	assert.Equal(t, 1, result.CorrectCount)
	assert.Equal(t, 2, result.TotalCount)

	// 得分进入进度流水并关联提交
	var ledger []model.UserSkillScore
	require.NoError(t, env.DB.Where("user_id = ?", student.ID).Find(&ledger).Error)
	require.Len(t, ledger, 1)
	require.NotNil(t, ledger[0].SubmissionID)
	assert.Equal(t, sub.ID, *ledger[0].SubmissionID)
}

func TestProcessRoutesSubjectiveToReview(t *testing.T) {
	env := newTestEnv(t)
	student := env.seedUser(t, model.Student)
	q := env.seedQuestion(t, model.SkillWriting, nil)
	sub := env.seedSubmission(t, student.ID, q.ID, model.SkillWriting, model.StatusQueued,
		json.RawMessage(`{"text":"my essay"}`))

	env.Autograde.Process(context.Background(), GradingTask{SubmissionID: sub.ID})

	got, err := env.Subs.FindByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReviewPending, got.Status)
	assert.Equal(t, model.PriorityMedium, got.ReviewPriority)

	// 评阅请求事件与状态迁移同事务落库
	var events []model.OutboxEvent
	require.NoError(t, env.DB.Where("submission_id = ?", sub.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, model.MessageReviewRequested, events[0].MessageType)
}

func TestProcessPriorityFromGoalDeadline(t *testing.T) {
	env := newTestEnv(t)
	student := env.seedUser(t, model.Student)
	deadline := time.Now().Add(10 * 24 * time.Hour)
	_, err := env.Goal.Create(student.ID, &GoalRequest{TargetBand: model.BandB2, Deadline: &deadline})
	require.NoError(t, err)

	q := env.seedQuestion(t, model.SkillSpeaking, nil)
	sub := env.seedSubmission(t, student.ID, q.ID, model.SkillSpeaking, model.StatusQueued,
		json.RawMessage(`{"audioObject":"recordings/a.mp3"}`))

	env.Autograde.Process(context.Background(), GradingTask{SubmissionID: sub.ID})

	got, err := env.Subs.FindByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReviewPending, got.Status)
	// 目标截止在 30 天内,优先级提升
	assert.Equal(t, model.PriorityHigh, got.ReviewPriority)
}

func TestProcessMissingAnswerKeyFails(t *testing.T) {
	env := newTestEnv(t)
	student := env.seedUser(t, model.Student)
	q := env.seedQuestion(t, model.SkillReading, nil) // 客观题但没有答案键
	sub := env.seedSubmission(t, student.ID, q.ID, model.SkillReading, model.StatusQueued,
		json.RawMessage(`{"answers":{"1":"A"}}`))

	env.Autograde.Process(context.Background(), GradingTask{SubmissionID: sub.ID})

	got, err := env.Subs.FindByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
}

func TestProcessDuplicateTaskIsNoop(t *testing.T) {
	env := newTestEnv(t)
	student := env.seedUser(t, model.Student)
	q := env.seedQuestion(t, model.SkillListening, map[string]string{"1": "A"})
	sub := env.seedSubmission(t, student.ID, q.ID, model.SkillListening, model.StatusQueued,
		json.RawMessage(`{"answers":{"1":"A"}}`))

	task := GradingTask{SubmissionID: sub.ID}
	env.Autograde.Process(context.Background(), task)
	env.Autograde.Process(context.Background(), task)

	got, err := env.Subs.FindByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)

	// 重复投递不会重复记分
	var count int64
	require.NoError(t, env.DB.Model(&model.UserSkillScore{}).
		Where("user_id = ?", student.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestProcessCompensatesPendingSubmission(t *testing.T) {
	env := newTestEnv(t)
	student := env.seedUser(t, model.Student)
	q := env.seedQuestion(t, model.SkillListening, map[string]string{"1": "A"})
	// 入队成功但 queued 标记丢失的行
	sub := env.seedSubmission(t, student.ID, q.ID, model.SkillListening, model.StatusPending,
		json.RawMessage(`{"answers":{"1":"A"}}`))

	env.Autograde.Process(context.Background(), GradingTask{SubmissionID: sub.ID})

	got, err := env.Subs.FindByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	require.NotNil(t, got.Score)
	assert.Equal(t, 10.0, *got.Score)
}

func TestGradeSingleGuards(t *testing.T) {
	env := newTestEnv(t)
	student := env.seedUser(t, model.Student)

	objective := env.seedQuestion(t, model.SkillReading, map[string]string{"1": "A"})
	subjective := env.seedQuestion(t, model.SkillWriting, nil)

	done := env.seedSubmission(t, student.ID, objective.ID, model.SkillReading, model.StatusCompleted,
		json.RawMessage(`{"answers":{"1":"A"}}`))
	_, err := env.Autograde.GradeSingle(done.ID)
	require.Error(t, err, "terminal states are not auto-gradable")

	essay := env.seedSubmission(t, student.ID, subjective.ID, model.SkillWriting, model.StatusQueued,
		json.RawMessage(`{"text":"essay"}`))
	_, err = env.Autograde.GradeSingle(essay.ID)
	require.Error(t, err, "subjective skills require human review")

	ok := env.seedSubmission(t, student.ID, objective.ID, model.SkillReading, model.StatusQueued,
		json.RawMessage(`{"answers":{"1":"A"}}`))
	got, err := env.Autograde.GradeSingle(ok.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	require.NotNil(t, got.Score)
	assert.Equal(t, 10.0, *got.Score)
}
