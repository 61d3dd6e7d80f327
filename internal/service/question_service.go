package service

import (
	"encoding/json"
	"errors"

	"vstep_exam_backend/internal/model"
	"vstep_exam_backend/internal/repository"
	"vstep_exam_backend/internal/scoring"
	"vstep_exam_backend/internal/util"

	"gorm.io/gorm"
)

// QuestionService 题库与试卷蓝图管理（教师/管理员）。
type QuestionService struct {
	QuestionRepo *repository.QuestionRepository
}

func NewQuestionService(questionRepo *repository.QuestionRepository) *QuestionService {
	return &QuestionService{QuestionRepo: questionRepo}
}

type QuestionRequest struct {
	Skill     model.Skill     `json:"skill" binding:"required"`
	Level     model.Band      `json:"level"`
	Title     string          `json:"title" binding:"required"`
	Content   json.RawMessage `json:"content"`
	AnswerKey json.RawMessage `json:"answerKey"`
}

func (s *QuestionService) validate(req *QuestionRequest) error {
	switch req.Skill {
	case model.SkillListening, model.SkillReading, model.SkillWriting, model.SkillSpeaking:
	default:
		return util.NewBadRequest("unknown skill")
	}

	if req.Skill.IsObjective() {
		if len(scoring.ParseAnswerKey(req.AnswerKey)) == 0 {
			return util.NewBadRequest("objective questions require a non-empty answer key")
		}
	} else if len(req.AnswerKey) > 0 {
		return util.NewBadRequest("subjective questions must not carry an answer key")
	}
	return nil
}

func (s *QuestionService) Create(req *QuestionRequest) (*model.Question, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	q := &model.Question{
		Skill:     req.Skill,
		Level:     req.Level,
		Title:     req.Title,
		Content:   req.Content,
		AnswerKey: req.AnswerKey,
	}
	if err := s.QuestionRepo.Create(q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *QuestionService) Get(id string) (*model.Question, error) {
	return s.QuestionRepo.FindByID(id)
}

func (s *QuestionService) List(skill model.Skill, level model.Band, page, limit int) ([]model.Question, int64, error) {
	return s.QuestionRepo.List(skill, level, page, limit)
}

func (s *QuestionService) Update(id string, req *QuestionRequest) (*model.Question, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	q, err := s.QuestionRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NewNotFound("question not found")
		}
		return nil, err
	}
	q.Skill = req.Skill
	q.Level = req.Level
	q.Title = req.Title
	q.Content = req.Content
	q.AnswerKey = req.AnswerKey
	if err := s.QuestionRepo.Update(q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *QuestionService) Delete(id string) error {
	return s.QuestionRepo.Delete(id)
}

type ExamRequest struct {
	Title     string          `json:"title" binding:"required"`
	IsActive  bool            `json:"isActive"`
	Blueprint json.RawMessage `json:"blueprint" binding:"required"`
}

// CreateExam validates that every blueprint question exists and sits in
// the section matching its skill.
func (s *QuestionService) CreateExam(req *ExamRequest) (*model.Exam, error) {
	if err := s.validateBlueprint(req.Blueprint); err != nil {
		return nil, err
	}
	exam := &model.Exam{
		Title:     req.Title,
		IsActive:  req.IsActive,
		Blueprint: req.Blueprint,
	}
	if err := s.QuestionRepo.CreateExam(exam); err != nil {
		return nil, err
	}
	return exam, nil
}

func (s *QuestionService) GetExam(id string) (*model.Exam, error) {
	return s.QuestionRepo.FindExamByID(id)
}

func (s *QuestionService) ListExams(activeOnly bool, page, limit int) ([]model.Exam, int64, error) {
	return s.QuestionRepo.ListExams(activeOnly, page, limit)
}

func (s *QuestionService) UpdateExam(id string, req *ExamRequest) (*model.Exam, error) {
	if err := s.validateBlueprint(req.Blueprint); err != nil {
		return nil, err
	}
	exam, err := s.QuestionRepo.FindExamByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NewNotFound("exam not found")
		}
		return nil, err
	}
	exam.Title = req.Title
	exam.IsActive = req.IsActive
	exam.Blueprint = req.Blueprint
	if err := s.QuestionRepo.UpdateExam(exam); err != nil {
		return nil, err
	}
	return exam, nil
}

func (s *QuestionService) validateBlueprint(raw json.RawMessage) error {
	var bp model.ExamBlueprint
	if err := json.Unmarshal(raw, &bp); err != nil {
		return util.NewBadRequest("malformed blueprint")
	}

	sections := map[model.Skill][]string{
		model.SkillListening: bp.Listening.QuestionIDs,
		model.SkillReading:   bp.Reading.QuestionIDs,
		model.SkillWriting:   bp.Writing.QuestionIDs,
		model.SkillSpeaking:  bp.Speaking.QuestionIDs,
	}

	var all []string
	for _, ids := range sections {
		all = append(all, ids...)
	}
	if len(all) == 0 {
		return util.NewBadRequest("blueprint must reference at least one question")
	}

	questions, err := s.QuestionRepo.FindByIDs(all)
	if err != nil {
		return err
	}
	bySkill := make(map[string]model.Skill, len(questions))
	for _, q := range questions {
		bySkill[q.ID] = q.Skill
	}

	for skill, ids := range sections {
		for _, id := range ids {
			got, ok := bySkill[id]
			if !ok {
				return util.NewBadRequest("blueprint references unknown question " + id)
			}
			if got != skill {
				return util.NewBadRequest("question " + id + " is not a " + string(skill) + " question")
			}
		}
	}
	return nil
}
