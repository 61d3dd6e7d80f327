package service

import (
	"errors"
	"time"

	"vstep_exam_backend/internal/model"
	"vstep_exam_backend/internal/repository"
	"vstep_exam_backend/internal/util"

	"gorm.io/gorm"
)

// GoalService 学习目标：每用户至多一条，作为 ETA 与评阅优先级输入。
type GoalService struct {
	GoalRepo *repository.GoalRepository
}

func NewGoalService(goalRepo *repository.GoalRepository) *GoalService {
	return &GoalService{GoalRepo: goalRepo}
}

type GoalRequest struct {
	TargetBand            model.Band `json:"targetBand" binding:"required"`
	Deadline              *time.Time `json:"deadline"`
	DailyStudyTimeMinutes int        `json:"dailyStudyTimeMinutes"`
}

func validateGoal(req *GoalRequest) error {
	switch req.TargetBand {
	case model.BandB1, model.BandB2, model.BandC1:
	default:
		return util.NewBadRequest("targetBand must be B1, B2 or C1")
	}
	if req.Deadline != nil && req.Deadline.Before(time.Now()) {
		return util.NewBadRequest("deadline must be in the future")
	}
	if req.DailyStudyTimeMinutes < 0 {
		return util.NewBadRequest("dailyStudyTimeMinutes must not be negative")
	}
	return nil
}

func (s *GoalService) Create(userID string, req *GoalRequest) (*model.UserGoal, error) {
	if err := validateGoal(req); err != nil {
		return nil, err
	}

	if _, err := s.GoalRepo.FindByUserID(userID); err == nil {
		return nil, util.NewConflict("user already has a goal")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	goal := &model.UserGoal{
		UserID:                userID,
		TargetBand:            req.TargetBand,
		Deadline:              req.Deadline,
		DailyStudyTimeMinutes: req.DailyStudyTimeMinutes,
	}
	if goal.DailyStudyTimeMinutes == 0 {
		goal.DailyStudyTimeMinutes = 30
	}
	if err := s.GoalRepo.Create(goal); err != nil {
		return nil, err
	}
	return goal, nil
}

func (s *GoalService) Get(userID string) (*model.UserGoal, error) {
	goal, err := s.GoalRepo.FindByUserID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.NewNotFound("no goal set")
	}
	return goal, err
}

func (s *GoalService) Update(id string, actor *util.Claims, req *GoalRequest) (*model.UserGoal, error) {
	if err := validateGoal(req); err != nil {
		return nil, err
	}

	goal, err := s.GoalRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NewNotFound("goal not found")
		}
		return nil, err
	}
	if goal.UserID != actor.UserID && !actor.IsElevated() {
		return nil, util.NewForbidden("not your goal")
	}

	goal.TargetBand = req.TargetBand
	goal.Deadline = req.Deadline
	if req.DailyStudyTimeMinutes > 0 {
		goal.DailyStudyTimeMinutes = req.DailyStudyTimeMinutes
	}
	if err := s.GoalRepo.Update(goal); err != nil {
		return nil, err
	}
	return goal, nil
}

func (s *GoalService) Delete(id string, actor *util.Claims) error {
	goal, err := s.GoalRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.NewNotFound("goal not found")
		}
		return err
	}
	if goal.UserID != actor.UserID && !actor.IsElevated() {
		return util.NewForbidden("not your goal")
	}
	return s.GoalRepo.Delete(id)
}
