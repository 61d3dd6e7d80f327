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

// seedExam 一份含一道阅读题和一道写作题的小试卷。
func seedExam(t *testing.T, env *testEnv) (*model.Exam, *model.Question, *model.Question) {
	t.Helper()
	reading := env.seedQuestion(t, model.SkillReading, map[string]string{"1": "A"})
	writing := env.seedQuestion(t, model.SkillWriting, nil)

	blueprint, err := json.Marshal(model.ExamBlueprint{
		Reading: model.SkillSection{QuestionIDs: []string{reading.ID}},
		Writing: model.SkillSection{QuestionIDs: []string{writing.ID}},
	})
	require.NoError(t, err)

	exam := &model.Exam{Title: "VSTEP 模拟卷 1", IsActive: true, Blueprint: blueprint}
	require.NoError(t, env.DB.Create(exam).Error)
	return exam, reading, writing
}

func TestStartSessionIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	student := env.seedUser(t, model.Student)
	exam, _, _ := seedExam(t, env)

	first, err := env.Exam.Start(student.ID, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionInProgress, first.Status)

	second, err := env.Exam.Start(student.ID, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "same live session must be returned")
}

func TestStartRejectsInactiveExam(t *testing.T) {
	env := newTestEnv(t)
	student := env.seedUser(t, model.Student)
	exam, _, _ := seedExam(t, env)
	require.NoError(t, env.DB.Model(exam).Update("is_active", false).Error)

	_, err := env.Exam.Start(student.ID, exam.ID)
	require.Error(t, err)
}

func TestSaveAnswerRejectsForeignQuestion(t *testing.T) {
	env := newTestEnv(t)
	student := env.seedUser(t, model.Student)
	exam, _, _ := seedExam(t, env)
	stray := env.seedQuestion(t, model.SkillReading, map[string]string{"1": "B"})

	session, err := env.Exam.Start(student.ID, exam.ID)
	require.NoError(t, err)

	err = env.Exam.SaveAnswer(session.ID, student.ID, &SessionAnswer{
		QuestionID: stray.ID,
		Answer:     json.RawMessage(`{"answers":{"1":"B"}}`),
	})
	require.Error(t, err)
}

func TestSaveAnswerValidatesPayloadShape(t *testing.T) {
	env := newTestEnv(t)
	student := env.seedUser(t, model.Student)
	exam, reading, _ := seedExam(t, env)

	session, err := env.Exam.Start(student.ID, exam.ID)
	require.NoError(t, err)

	// 阅读题收到写作形状的载荷
	err = env.Exam.SaveAnswer(session.ID, student.ID, &SessionAnswer{
		QuestionID: reading.ID,
		Answer:     json.RawMessage(`{"text":"an essay"}`),
	})
	require.Error(t, err)
}

func TestSaveAnswerOverwritesPrevious(t *testing.T) {
	env := newTestEnv(t)
	student := env.seedUser(t, model.Student)
	exam, reading, _ := seedExam(t, env)

	session, err := env.Exam.Start(student.ID, exam.ID)
	require.NoError(t, err)

	save := func(option string) {
		require.NoError(t, env.Exam.SaveAnswer(session.ID, student.ID, &SessionAnswer{
			QuestionID: reading.ID,
			Answer:     json.RawMessage(`{"answers":{"1":"` + option + `"}}`),
		}))
	}
	save("B")
	save("A")

	answers, err := env.Exams.ListAnswers(session.ID)
	require.NoError(t, err)
	require.Len(t, answers, 1, "autosave keeps one row per question")
	assert.JSONEq(t, `{"answers":{"1":"A"}}`, string(answers[0].Answer))
}

func TestSubmitGradesObjectiveAndSpawnsChildren(t *testing.T) {
	env := newTestEnv(t)
	student := env.seedUser(t, model.Student)
	exam, reading, writing := seedExam(t, env)

	session, err := env.Exam.Start(student.ID, exam.ID)
	require.NoError(t, err)

	require.NoError(t, env.Exam.SaveAnswer(session.ID, student.ID, &SessionAnswer{
		QuestionID: reading.ID,
		Answer:     json.RawMessage(`{"answers":{"1":"a"}}`), // 大小写不敏感
	}))
	require.NoError(t, env.Exam.SaveAnswer(session.ID, student.ID, &SessionAnswer{
		QuestionID: writing.ID,
		Answer:     json.RawMessage(`{"text":"my essay about hometown"}`),
	}))

	got, err := env.Exam.Submit(context.Background(), session.ID, student.ID)
	require.NoError(t, err)

	// 有主观题待评,会话停在 submitted
	assert.Equal(t, model.SessionSubmitted, got.Status)
	require.NotNil(t, got.ReadingScore)
	assert.Equal(t, 10.0, *got.ReadingScore)
	assert.Nil(t, got.ListeningScore)
	assert.Nil(t, got.WritingScore)

	// 客观题逐题对错落库
	answers, err := env.Exams.ListAnswers(session.ID)
	require.NoError(t, err)
	for _, a := range answers {
		if a.QuestionID == reading.ID {
			require.NotNil(t, a.IsCorrect)
			assert.True(t, *a.IsCorrect)
		}
	}

	// 写作生成子 Submission 并关联会话
	links, err := env.Exams.ListExamSubmissions(session.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, model.SkillWriting, links[0].Skill)

	child, err := env.Subs.FindByID(links[0].SubmissionID)
	require.NoError(t, err)
	// 队列推送失败(测试里无 Redis),子提交停在 pending 等补偿
	assert.Equal(t, model.StatusPending, child.Status)

	detail, err := env.Subs.FindDetail(child.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"my essay about hometown"}`, string(detail.Answer))

	// 阅读成绩进入进度流水
	var ledger []model.UserSkillScore
	require.NoError(t, env.DB.Where("user_id = ? AND skill = ?", student.ID, model.SkillReading).Find(&ledger).Error)
	require.Len(t, ledger, 1)
	assert.Equal(t, 10.0, ledger[0].Score)
	assert.Nil(t, ledger[0].SubmissionID)
}

func TestSubmitWithoutAnswersFails(t *testing.T) {
	env := newTestEnv(t)
	student := env.seedUser(t, model.Student)
	exam, _, _ := seedExam(t, env)

	session, err := env.Exam.Start(student.ID, exam.ID)
	require.NoError(t, err)

	_, err = env.Exam.Submit(context.Background(), session.ID, student.ID)
	require.Error(t, err)

	// 会话保持可继续作答
	got, ferr := env.Exams.FindSessionByID(session.ID)
	require.NoError(t, ferr)
	assert.Equal(t, model.SessionInProgress, got.Status)
}

func TestSubmitTwiceIsConflict(t *testing.T) {
	env := newTestEnv(t)
	student := env.seedUser(t, model.Student)
	exam, reading, _ := seedExam(t, env)

	session, err := env.Exam.Start(student.ID, exam.ID)
	require.NoError(t, err)
	require.NoError(t, env.Exam.SaveAnswer(session.ID, student.ID, &SessionAnswer{
		QuestionID: reading.ID,
		Answer:     json.RawMessage(`{"answers":{"1":"A"}}`),
	}))

	_, err = env.Exam.Submit(context.Background(), session.ID, student.ID)
	require.NoError(t, err)

	_, err = env.Exam.Submit(context.Background(), session.ID, student.ID)
	require.Error(t, err, "closed session cannot be submitted again")
}

func TestOnChildCompletedRollsUpSession(t *testing.T) {
	env := newTestEnv(t)
	student := env.seedUser(t, model.Student)
	teacher := env.seedUser(t, model.Teacher)
	exam, reading, writing := seedExam(t, env)

	session, err := env.Exam.Start(student.ID, exam.ID)
	require.NoError(t, err)
	require.NoError(t, env.Exam.SaveAnswer(session.ID, student.ID, &SessionAnswer{
		QuestionID: reading.ID,
		Answer:     json.RawMessage(`{"answers":{"1":"A"}}`),
	}))
	require.NoError(t, env.Exam.SaveAnswer(session.ID, student.ID, &SessionAnswer{
		QuestionID: writing.ID,
		Answer:     json.RawMessage(`{"text":"essay"}`),
	}))

	_, err = env.Exam.Submit(context.Background(), session.ID, student.ID)
	require.NoError(t, err)

	links, err := env.Exams.ListExamSubmissions(session.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	childID := links[0].SubmissionID

	// 子提交尚未完成时,回调不动会话
	require.NoError(t, env.Exam.OnChildCompleted(childID))
	got, err := env.Exams.FindSessionByID(session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionSubmitted, got.Status)

	// 人工终评完成子提交后,会话闭合并写入写作均分
	gradable := []model.SubmissionStatus{
		model.StatusPending, model.StatusQueued, model.StatusProcessing, model.StatusReviewPending,
	}
	rows, err := env.Subs.Grade(childID, gradable, 7.0, model.BandB2, teacher.ID, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), rows)

	require.NoError(t, env.Exam.OnChildCompleted(childID))
	got, err = env.Exams.FindSessionByID(session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, got.Status)
	require.NotNil(t, got.WritingScore)
	assert.Equal(t, 7.0, *got.WritingScore)
	assert.NotNil(t, got.CompletedAt)
}
