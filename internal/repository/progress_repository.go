package repository

import (
	"vstep_exam_backend/internal/model"

	"gorm.io/gorm"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

// WithTx binds the repository to an open transaction.
func (r *ProgressRepository) WithTx(tx *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: tx}
}

func (r *ProgressRepository) CreateSkillScore(score *model.UserSkillScore) error {
	return r.DB.Create(score).Error
}

// RecentSkillScores 返回某技能最近 limit 条成绩，新→旧。
func (r *ProgressRepository) RecentSkillScores(userID string, skill model.Skill, limit int) ([]model.UserSkillScore, error) {
	var scores []model.UserSkillScore
	err := r.DB.
		Where("user_id = ? AND skill = ?", userID, skill).
		Order("created_at desc").
		Limit(limit).
		Find(&scores).Error
	return scores, err
}

func (r *ProgressRepository) CountSkillScores(userID string, skill model.Skill) (int64, error) {
	var total int64
	err := r.DB.Model(&model.UserSkillScore{}).
		Where("user_id = ? AND skill = ?", userID, skill).
		Count(&total).Error
	return total, err
}

func (r *ProgressRepository) FindProgress(userID string, skill model.Skill) (*model.UserProgress, error) {
	var p model.UserProgress
	err := r.DB.First(&p, "user_id = ? AND skill = ?", userID, skill).Error
	return &p, err
}

func (r *ProgressRepository) ListProgress(userID string) ([]model.UserProgress, error) {
	var ps []model.UserProgress
	err := r.DB.Where("user_id = ?", userID).Find(&ps).Error
	return ps, err
}

func (r *ProgressRepository) SaveProgress(progress *model.UserProgress) error {
	return r.DB.Save(progress).Error
}

// ListDecliningUsers feeds the instructor at-risk sweep with the user ids
// whose any-skill streak is currently pointing down.
func (r *ProgressRepository) ListDecliningUsers(limit int) ([]string, error) {
	var ids []string
	err := r.DB.Model(&model.UserProgress{}).
		Where("streak_direction = ?", model.StreakDown).
		Distinct("user_id").
		Limit(limit).
		Pluck("user_id", &ids).Error
	return ids, err
}
