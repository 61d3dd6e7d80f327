package repository

import (
	"fmt"
	"testing"

	"vstep_exam_backend/internal/model"
	"vstep_exam_backend/pkg/database"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// openTestDB 每个测试独立的内存库，避免共享缓存串库。
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
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
	return db
}

func seedUser(t *testing.T, db *gorm.DB, role model.UserRole) *model.User {
	t.Helper()
	user := &model.User{
		Name:     "测试用户",
		Email:    uuid.New().String() + "@example.com",
		Password: "hashed",
		Role:     role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedSubmission(t *testing.T, db *gorm.DB, userID string, skill model.Skill, status model.SubmissionStatus) *model.Submission {
	t.Helper()
	sub := &model.Submission{
		UserID:     userID,
		QuestionID: uuid.New().String(),
		Skill:      skill,
		Status:     status,
	}
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("seed submission: %v", err)
	}
	return sub
}
