package service

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"vstep_exam_backend/internal/config"
	"vstep_exam_backend/internal/model"
	"vstep_exam_backend/internal/repository"
	"vstep_exam_backend/internal/util"
	"vstep_exam_backend/pkg/database"
	"vstep_exam_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// testEnv wires the service graph over an in-memory database. Redis points
// at a closed port, so queue pushes fail fast and stay on the fallback path.
type testEnv struct {
	DB         *gorm.DB
	Users      *repository.UserRepository
	Questions  *repository.QuestionRepository
	Subs       *repository.SubmissionRepository
	Exams      *repository.ExamRepository
	Outbox     *repository.OutboxRepository
	Progress   *ProgressService
	Goal       *GoalService
	Submission *SubmissionService
	Exam       *ExamService
	Review     *ReviewService
	Autograde  *AutogradeService
	Dispatch   *DispatchService
	Cfg        *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if logger.Log == nil {
		logger.Log = zap.NewNop()
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	cfg := &config.Config{}
	cfg.Grading.QueueKey = "grading:queue"
	cfg.Grading.ClaimTimeoutMinutes = 15 * time.Minute
	cfg.Outbox.MaxAttempts = 5

	userRepo := repository.NewUserRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	subRepo := repository.NewSubmissionRepository(db)
	examRepo := repository.NewExamRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	goalRepo := repository.NewGoalRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 10 * time.Millisecond})
	dispatch := &DispatchService{Redis: rdb, Cfg: &cfg.Grading}

	progress := NewProgressService(progressRepo, goalRepo, userRepo)
	goal := NewGoalService(goalRepo)
	submission := NewSubmissionService(subRepo, questionRepo, dispatch, progress)
	exam := NewExamService(db, examRepo, questionRepo, subRepo, dispatch, progress)
	review := NewReviewService(db, subRepo, userRepo, outboxRepo, progress, exam, cfg)
	autograde := NewAutogradeService(db, subRepo, questionRepo, goalRepo, outboxRepo, progress)

	return &testEnv{
		DB:         db,
		Users:      userRepo,
		Questions:  questionRepo,
		Subs:       subRepo,
		Exams:      examRepo,
		Outbox:     outboxRepo,
		Progress:   progress,
		Goal:       goal,
		Submission: submission,
		Exam:       exam,
		Review:     review,
		Autograde:  autograde,
		Dispatch:   dispatch,
		Cfg:        cfg,
	}
}

func (e *testEnv) seedUser(t *testing.T, role model.UserRole) *model.User {
	t.Helper()
	user := &model.User{
		Name:     "测试用户",
		Email:    uuid.New().String() + "@example.com",
		Password: "hashed",
		Role:     role,
	}
	if err := e.DB.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (e *testEnv) seedQuestion(t *testing.T, skill model.Skill, answerKey map[string]string) *model.Question {
	t.Helper()
	q := &model.Question{
		Skill: skill,
		Level: model.BandB1,
		Title: "测试题目",
	}
	if answerKey != nil {
		raw, err := json.Marshal(map[string]interface{}{"correctAnswers": answerKey})
		if err != nil {
			t.Fatalf("marshal answer key: %v", err)
		}
		q.AnswerKey = raw
	}
	if err := e.DB.Create(q).Error; err != nil {
		t.Fatalf("seed question: %v", err)
	}
	return q
}

func (e *testEnv) seedSubmission(t *testing.T, userID, questionID string, skill model.Skill, status model.SubmissionStatus, answer json.RawMessage) *model.Submission {
	t.Helper()
	sub := &model.Submission{
		UserID:     userID,
		QuestionID: questionID,
		Skill:      skill,
		Status:     status,
	}
	if err := e.DB.Create(sub).Error; err != nil {
		t.Fatalf("seed submission: %v", err)
	}
	if answer != nil {
		if err := e.DB.Create(&model.SubmissionDetail{SubmissionID: sub.ID, Answer: answer}).Error; err != nil {
			t.Fatalf("seed submission detail: %v", err)
		}
	}
	return sub
}

func claimsFor(user *model.User) *util.Claims {
	return &util.Claims{UserID: user.ID, Role: user.Role, Email: user.Email}
}
