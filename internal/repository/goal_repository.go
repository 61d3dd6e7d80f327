package repository

import (
	"vstep_exam_backend/internal/model"

	"gorm.io/gorm"
)

type GoalRepository struct {
	DB *gorm.DB
}

func NewGoalRepository(db *gorm.DB) *GoalRepository {
	return &GoalRepository{DB: db}
}

func (r *GoalRepository) Create(goal *model.UserGoal) error {
	return r.DB.Create(goal).Error
}

func (r *GoalRepository) FindByID(id string) (*model.UserGoal, error) {
	var g model.UserGoal
	err := r.DB.First(&g, "id = ?", id).Error
	return &g, err
}

func (r *GoalRepository) FindByUserID(userID string) (*model.UserGoal, error) {
	var g model.UserGoal
	err := r.DB.First(&g, "user_id = ?", userID).Error
	return &g, err
}

func (r *GoalRepository) Update(goal *model.UserGoal) error {
	return r.DB.Save(goal).Error
}

func (r *GoalRepository) Delete(id string) error {
	return r.DB.Delete(&model.UserGoal{}, "id = ?", id).Error
}
