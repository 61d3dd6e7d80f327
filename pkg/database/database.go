package database

import (
	"fmt"
	"log"

	"vstep_exam_backend/internal/config"
	"vstep_exam_backend/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	return db, nil
}

// Migrate 迁移全部表结构。测试环境用 sqlite 复用同一份模型清单。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Question{},
		&model.Exam{},
		&model.Submission{},
		&model.SubmissionDetail{},
		&model.ExamSession{},
		&model.ExamAnswer{},
		&model.ExamSubmission{},
		&model.UserSkillScore{},
		&model.UserProgress{},
		&model.UserGoal{},
		&model.OutboxEvent{},
	)
}
