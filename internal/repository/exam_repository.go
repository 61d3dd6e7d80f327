package repository

import (
	"vstep_exam_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

// WithTx binds the repository to an open transaction.
func (r *ExamRepository) WithTx(tx *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: tx}
}

func (r *ExamRepository) CreateSession(session *model.ExamSession) error {
	return r.DB.Create(session).Error
}

func (r *ExamRepository) FindSessionByID(id string) (*model.ExamSession, error) {
	var s model.ExamSession
	err := r.DB.First(&s, "id = ?", id).Error
	return &s, err
}

// FindActiveSession 同一用户同一试卷最多一个进行中的会话。
func (r *ExamRepository) FindActiveSession(userID, examID string) (*model.ExamSession, error) {
	var s model.ExamSession
	err := r.DB.
		Where("user_id = ? AND exam_id = ? AND status = ?", userID, examID, model.SessionInProgress).
		First(&s).Error
	return &s, err
}

func (r *ExamRepository) ListSessionsByUser(userID string, page, limit int) ([]model.ExamSession, int64, error) {
	var sessions []model.ExamSession
	var total int64
	query := r.DB.Model(&model.ExamSession{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	err := query.Order("started_at desc").Offset(offset).Limit(limit).Find(&sessions).Error
	return sessions, total, err
}

// UpsertAnswer keeps the latest answer per (session, question).
func (r *ExamRepository) UpsertAnswer(answer *model.ExamAnswer) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"answer", "updated_at"}),
	}).Create(answer).Error
}

func (r *ExamRepository) ListAnswers(sessionID string) ([]model.ExamAnswer, error) {
	var answers []model.ExamAnswer
	err := r.DB.Where("session_id = ?", sessionID).Order("created_at asc").Find(&answers).Error
	return answers, err
}

func (r *ExamRepository) UpdateAnswerCorrectness(id string, isCorrect bool) error {
	return r.DB.Model(&model.ExamAnswer{}).Where("id = ?", id).Update("is_correct", isCorrect).Error
}

// CloseSession finalizes an in-progress session. Zero rows means a
// concurrent submit already closed it.
func (r *ExamRepository) CloseSession(id string, to model.ExamSessionStatus, updates map[string]interface{}) (int64, error) {
	updates["status"] = to
	res := r.DB.Model(&model.ExamSession{}).
		Where("id = ? AND status = ?", id, model.SessionInProgress).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// CompleteSession moves a submitted session to completed once every
// child review has landed.
func (r *ExamRepository) CompleteSession(id string, updates map[string]interface{}) (int64, error) {
	updates["status"] = model.SessionCompleted
	res := r.DB.Model(&model.ExamSession{}).
		Where("id = ? AND status = ?", id, model.SessionSubmitted).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *ExamRepository) CreateExamSubmission(link *model.ExamSubmission) error {
	return r.DB.Create(link).Error
}

func (r *ExamRepository) ListExamSubmissions(sessionID string) ([]model.ExamSubmission, error) {
	var links []model.ExamSubmission
	err := r.DB.Where("session_id = ?", sessionID).Find(&links).Error
	return links, err
}

// FindSessionBySubmission resolves the exam link of a child submission,
// gorm.ErrRecordNotFound for standalone practice submissions.
func (r *ExamRepository) FindSessionBySubmission(submissionID string) (*model.ExamSubmission, error) {
	var link model.ExamSubmission
	err := r.DB.First(&link, "submission_id = ?", submissionID).Error
	return &link, err
}
