package service

import (
	"errors"
	"time"

	"vstep_exam_backend/internal/model"
	"vstep_exam_backend/internal/repository"
	"vstep_exam_backend/internal/scoring"
	"vstep_exam_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProgressService 维护 user_progress 投影并产出趋势/ETA 分析。
type ProgressService struct {
	ProgressRepo *repository.ProgressRepository
	GoalRepo     *repository.GoalRepository
	UserRepo     *repository.UserRepository
}

func NewProgressService(
	progressRepo *repository.ProgressRepository,
	goalRepo *repository.GoalRepository,
	userRepo *repository.UserRepository,
) *ProgressService {
	return &ProgressService{
		ProgressRepo: progressRepo,
		GoalRepo:     goalRepo,
		UserRepo:     userRepo,
	}
}

// RecordScore appends to the score ledger and rewrites the per-skill
// projection. The ledger row is the source of truth; a lost projection
// rebuild self-heals on the next score.
func (s *ProgressService) RecordScore(userID string, skill model.Skill, submissionID string, score float64) error {
	entry := &model.UserSkillScore{
		UserID: userID,
		Skill:  skill,
		Score:  score,
	}
	if submissionID != "" {
		entry.SubmissionID = &submissionID
	}
	if err := s.ProgressRepo.CreateSkillScore(entry); err != nil {
		return err
	}
	return s.Recompute(userID, skill)
}

// Recompute rebuilds the projection row from the recent score window.
func (s *ProgressService) Recompute(userID string, skill model.Skill) error {
	recent, err := s.ProgressRepo.RecentSkillScores(userID, skill, scoring.WindowSize)
	if err != nil {
		return err
	}
	scores := make([]float64, len(recent))
	for i, r := range recent {
		scores[i] = r.Score
	}

	avg, deviation := scoring.ComputeStats(scores)
	trend := scoring.ComputeTrend(scores, deviation)

	progress, err := s.ProgressRepo.FindProgress(userID, skill)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		progress = &model.UserProgress{
			UserID:          userID,
			Skill:           skill,
			ScaffoldLevel:   1,
			StreakDirection: model.StreakNeutral,
		}
	} else if err != nil {
		return err
	}

	dir, count := scoring.NextStreak(progress.StreakDirection, progress.StreakCount, trend)
	progress.StreakDirection = dir
	progress.StreakCount = count
	progress.ScaffoldLevel = scoring.AdjustScaffold(progress.ScaffoldLevel, avg, dir, count, len(scores))

	if avg != nil {
		progress.CurrentLevel = scoring.ScoreToBand(*avg)
	}

	total, err := s.ProgressRepo.CountSkillScores(userID, skill)
	if err != nil {
		return err
	}
	progress.AttemptCount = int(total)

	return s.ProgressRepo.SaveProgress(progress)
}

// SkillProgressView is one spoke of the spider chart.
type SkillProgressView struct {
	Skill           model.Skill           `json:"skill"`
	CurrentLevel    model.Band            `json:"currentLevel"`
	ScaffoldLevel   int                   `json:"scaffoldLevel"`
	StreakCount     int                   `json:"streakCount"`
	StreakDirection model.StreakDirection `json:"streakDirection"`
	AttemptCount    int                   `json:"attemptCount"`
	Average         *float64              `json:"average"`
	Deviation       *float64              `json:"deviation"`
	Trend           scoring.Trend         `json:"trend"`
	EtaWeeks        *int                  `json:"etaWeeks"`
}

type ProgressOverview struct {
	Skills   []SkillProgressView `json:"skills"`
	Overall  *float64            `json:"overall"`
	Band     model.Band          `json:"band"`
	EtaWeeks *int                `json:"etaWeeks"`
	AtRisk   bool                `json:"atRisk"`
	Goal     *model.UserGoal     `json:"goal,omitempty"`
}

// Overview assembles the four-skill spider chart. The overall ETA is the
// slowest skill's ETA; one unknown skill leaves it unknown.
func (s *ProgressService) Overview(userID string) (*ProgressOverview, error) {
	goal, err := s.GoalRepo.FindByUserID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		goal = nil
	} else if err != nil {
		return nil, err
	}

	now := time.Now()
	overview := &ProgressOverview{Goal: goal}
	var skillAvgs []*float64
	var overallEta *int
	etaKnown := true

	for _, skill := range model.AllSkills {
		view, err := s.skillView(userID, skill, goal)
		if err != nil {
			return nil, err
		}
		overview.Skills = append(overview.Skills, *view)
		skillAvgs = append(skillAvgs, view.Average)

		if view.EtaWeeks == nil {
			etaKnown = false
		} else if overallEta == nil || *view.EtaWeeks > *overallEta {
			overallEta = view.EtaWeeks
		}

		if scoring.IsAtRisk(view.Trend, view.Average, view.CurrentLevel, goal, now) {
			overview.AtRisk = true
		}
	}

	if etaKnown {
		overview.EtaWeeks = overallEta
	}

	overview.Overall = scoring.CalculateOverallScore(skillAvgs)
	if overview.Overall != nil {
		overview.Band = scoring.ScoreToBand(*overview.Overall)
	}
	return overview, nil
}

// SkillDetail returns one skill's projection plus its recent score history.
func (s *ProgressService) SkillDetail(userID string, skill model.Skill) (*SkillProgressView, []model.UserSkillScore, error) {
	goal, err := s.GoalRepo.FindByUserID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		goal = nil
	} else if err != nil {
		return nil, nil, err
	}

	view, err := s.skillView(userID, skill, goal)
	if err != nil {
		return nil, nil, err
	}
	recent, err := s.ProgressRepo.RecentSkillScores(userID, skill, scoring.WindowSize)
	if err != nil {
		return nil, nil, err
	}
	return view, recent, nil
}

func (s *ProgressService) skillView(userID string, skill model.Skill, goal *model.UserGoal) (*SkillProgressView, error) {
	recent, err := s.ProgressRepo.RecentSkillScores(userID, skill, scoring.WindowSize)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, len(recent))
	points := make([]scoring.ScorePoint, len(recent))
	for i, r := range recent {
		scores[i] = r.Score
		points[i] = scoring.ScorePoint{Score: r.Score, CreatedAt: r.CreatedAt}
	}

	avg, deviation := scoring.ComputeStats(scores)
	trend := scoring.ComputeTrend(scores, deviation)

	view := &SkillProgressView{
		Skill:     skill,
		Average:   avg,
		Deviation: deviation,
		Trend:     trend,
	}

	if goal != nil {
		if target := scoring.BandMinScore(goal.TargetBand); target != nil {
			view.EtaWeeks = scoring.ComputeEta(points, *target)
		}
	}

	progress, err := s.ProgressRepo.FindProgress(userID, skill)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		view.ScaffoldLevel = 1
		view.StreakDirection = model.StreakNeutral
		return view, nil
	} else if err != nil {
		return nil, err
	}

	view.CurrentLevel = progress.CurrentLevel
	view.ScaffoldLevel = progress.ScaffoldLevel
	view.StreakCount = progress.StreakCount
	view.StreakDirection = progress.StreakDirection
	view.AttemptCount = progress.AttemptCount
	return view, nil
}

// AtRiskStudent is one row of the instructor dashboard.
type AtRiskStudent struct {
	UserID string              `json:"userId"`
	Name   string              `json:"name"`
	Email  string              `json:"email"`
	Skills []SkillProgressView `json:"skills"`
}

// ListAtRisk sweeps learners with a downward streak and keeps those whose
// overview confirms the risk signal.
func (s *ProgressService) ListAtRisk(limit int) ([]AtRiskStudent, error) {
	ids, err := s.ProgressRepo.ListDecliningUsers(limit)
	if err != nil {
		return nil, err
	}

	var out []AtRiskStudent
	for _, id := range ids {
		overview, err := s.Overview(id)
		if err != nil {
			logger.Log.Error("at-risk overview failed", zap.String("user_id", id), zap.Error(err))
			continue
		}
		if !overview.AtRisk {
			continue
		}
		user, err := s.UserRepo.FindByID(id)
		if err != nil {
			continue
		}
		out = append(out, AtRiskStudent{
			UserID: id,
			Name:   user.Name,
			Email:  user.Email,
			Skills: overview.Skills,
		})
	}
	return out, nil
}
