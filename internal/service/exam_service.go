package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"vstep_exam_backend/internal/model"
	"vstep_exam_backend/internal/repository"
	"vstep_exam_backend/internal/scoring"
	"vstep_exam_backend/internal/util"
	"vstep_exam_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ExamService 整卷考试编排：开卷、自动保存、交卷判分。
type ExamService struct {
	DB             *gorm.DB
	ExamRepo       *repository.ExamRepository
	QuestionRepo   *repository.QuestionRepository
	SubmissionRepo *repository.SubmissionRepository
	Dispatch       *DispatchService
	Progress       *ProgressService
}

func NewExamService(
	db *gorm.DB,
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	submissionRepo *repository.SubmissionRepository,
	dispatch *DispatchService,
	progress *ProgressService,
) *ExamService {
	return &ExamService{
		DB:             db,
		ExamRepo:       examRepo,
		QuestionRepo:   questionRepo,
		SubmissionRepo: submissionRepo,
		Dispatch:       dispatch,
		Progress:       progress,
	}
}

// Start opens a session, or returns the existing in-progress one. A
// learner holds at most one live session per exam.
func (s *ExamService) Start(userID, examID string) (*model.ExamSession, error) {
	exam, err := s.QuestionRepo.FindExamByID(examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NewNotFound("exam not found")
		}
		return nil, err
	}
	if !exam.IsActive {
		return nil, util.NewBadRequest("exam is not active")
	}

	existing, err := s.ExamRepo.FindActiveSession(userID, examID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	session := &model.ExamSession{
		UserID:    userID,
		ExamID:    examID,
		Status:    model.SessionInProgress,
		StartedAt: time.Now(),
	}
	if err := s.ExamRepo.CreateSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

type SessionAnswer struct {
	QuestionID string          `json:"questionId" binding:"required"`
	Answer     json.RawMessage `json:"answer" binding:"required"`
}

// SaveAnswer upserts one answer while the session is live.
func (s *ExamService) SaveAnswer(sessionID, userID string, answer *SessionAnswer) error {
	return s.SaveAnswers(sessionID, userID, []SessionAnswer{*answer})
}

// SaveAnswers is the autosave path. All answers are validated against the
// blueprint before any row is written.
func (s *ExamService) SaveAnswers(sessionID, userID string, answers []SessionAnswer) error {
	session, exam, err := s.liveSession(sessionID, userID)
	if err != nil {
		return err
	}

	blueprint, err := decodeBlueprint(exam)
	if err != nil {
		return err
	}
	allowed := blueprint.QuestionIDs()

	ids := make([]string, 0, len(answers))
	for _, a := range answers {
		if !allowed[a.QuestionID] {
			return util.NewBadRequest("question does not belong to this exam")
		}
		ids = append(ids, a.QuestionID)
	}

	questions, err := s.QuestionRepo.FindByIDs(ids)
	if err != nil {
		return err
	}
	skills := make(map[string]model.Skill, len(questions))
	for _, q := range questions {
		skills[q.ID] = q.Skill
	}

	for _, a := range answers {
		skill, ok := skills[a.QuestionID]
		if !ok {
			return util.NewBadRequest("question does not belong to this exam")
		}
		if err := scoring.ValidateAnswer(skill, a.Answer); err != nil {
			return util.NewBadRequest(err.Error())
		}
	}

	for _, a := range answers {
		if err := s.ExamRepo.UpsertAnswer(&model.ExamAnswer{
			SessionID:  session.ID,
			QuestionID: a.QuestionID,
			Answer:     a.Answer,
		}); err != nil {
			return err
		}
	}
	return nil
}

var errSessionClosed = errors.New("session closed concurrently")

// Submit grades the whole session in one transaction: objective sections
// are scored immediately, subjective answers become child submissions that
// flow through the normal grading queue.
func (s *ExamService) Submit(ctx context.Context, sessionID, userID string) (*model.ExamSession, error) {
	session, _, err := s.liveSession(sessionID, userID)
	if err != nil {
		return nil, err
	}

	var childIDs []string
	var batch *scoring.BatchResult

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		examRepo := s.ExamRepo.WithTx(tx)

		answers, err := examRepo.ListAnswers(session.ID)
		if err != nil {
			return err
		}
		if len(answers) == 0 {
			return util.NewBadRequest("cannot submit a session without answers")
		}

		ids := make([]string, 0, len(answers))
		for _, a := range answers {
			ids = append(ids, a.QuestionID)
		}
		questions, err := s.QuestionRepo.FindByIDs(ids)
		if err != nil {
			return err
		}
		infos := make(map[string]scoring.QuestionInfo, len(questions))
		for _, q := range questions {
			infos[q.ID] = scoring.QuestionInfo{Skill: q.Skill, AnswerKey: q.AnswerKey}
		}

		entries := make([]scoring.AnswerEntry, len(answers))
		for i, a := range answers {
			entries[i] = scoring.AnswerEntry{QuestionID: a.QuestionID, Answer: a.Answer}
		}

		batch, err = scoring.GradeBatch(entries, infos)
		if err != nil {
			var unknown *scoring.UnknownQuestionError
			if errors.As(err, &unknown) {
				return util.NewBadRequest(unknown.Error())
			}
			return err
		}

		for _, a := range answers {
			if correct, ok := batch.Correctness[a.QuestionID]; ok {
				if err := examRepo.UpdateAnswerCorrectness(a.ID, correct); err != nil {
					return err
				}
			}
		}

		for _, subjective := range batch.Subjective {
			child := &model.Submission{
				UserID:     userID,
				QuestionID: subjective.QuestionID,
				Skill:      subjective.Skill,
				Status:     model.StatusPending,
			}
			if err := tx.Create(child).Error; err != nil {
				return err
			}
			if err := tx.Create(&model.SubmissionDetail{
				SubmissionID: child.ID,
				Answer:       subjective.Answer,
			}).Error; err != nil {
				return err
			}
			if err := examRepo.CreateExamSubmission(&model.ExamSubmission{
				SessionID:    session.ID,
				SubmissionID: child.ID,
				Skill:        subjective.Skill,
			}); err != nil {
				return err
			}
			childIDs = append(childIDs, child.ID)
		}

		now := time.Now()
		updates := map[string]interface{}{
			"listening_score": batch.ListeningScore(),
			"reading_score":   batch.ReadingScore(),
		}
		target := model.SessionCompleted
		if len(childIDs) > 0 {
			target = model.SessionSubmitted
		} else {
			updates["completed_at"] = now
		}

		rows, err := examRepo.CloseSession(session.ID, target, updates)
		if err != nil {
			return err
		}
		if rows == 0 {
			return errSessionClosed
		}
		return nil
	})

	if errors.Is(err, errSessionClosed) {
		// Concurrent submit already settled the session; report its state.
		return s.ExamRepo.FindSessionByID(session.ID)
	}
	if err != nil {
		return nil, err
	}

	// Queue the subjective children only after the transaction commits.
	if len(childIDs) > 0 {
		if err := s.Dispatch.Enqueue(ctx, childIDs...); err != nil {
			logger.Log.Error("failed to enqueue exam child submissions",
				zap.String("session_id", session.ID), zap.Error(err))
		} else {
			for _, id := range childIDs {
				if _, err := s.SubmissionRepo.UpdateStatus(id, model.StatusPending, model.StatusQueued); err != nil {
					logger.Log.Error("failed to mark exam child queued",
						zap.String("submission_id", id), zap.Error(err))
				}
			}
		}
	}

	if score := batch.ListeningScore(); score != nil {
		if err := s.Progress.RecordScore(userID, model.SkillListening, "", *score); err != nil {
			logger.Log.Error("failed to record listening score", zap.Error(err))
		}
	}
	if score := batch.ReadingScore(); score != nil {
		if err := s.Progress.RecordScore(userID, model.SkillReading, "", *score); err != nil {
			logger.Log.Error("failed to record reading score", zap.Error(err))
		}
	}

	return s.ExamRepo.FindSessionByID(session.ID)
}

// SessionView bundles a session with its answers and child links.
type SessionView struct {
	model.ExamSession
	Answers     []model.ExamAnswer     `json:"answers"`
	Submissions []model.ExamSubmission `json:"submissions"`
}

func (s *ExamService) GetSession(sessionID string, actor *util.Claims) (*SessionView, error) {
	session, err := s.ExamRepo.FindSessionByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != actor.UserID && actor.Role == model.Student {
		return nil, util.NewForbidden("not your session")
	}

	answers, err := s.ExamRepo.ListAnswers(sessionID)
	if err != nil {
		return nil, err
	}
	links, err := s.ExamRepo.ListExamSubmissions(sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionView{ExamSession: *session, Answers: answers, Submissions: links}, nil
}

func (s *ExamService) ListSessions(userID string, page, limit int) ([]model.ExamSession, int64, error) {
	return s.ExamRepo.ListSessionsByUser(userID, page, limit)
}

// OnChildCompleted fires after a child submission reaches completed. Once
// every child of a submitted session has a score, the subjective section
// averages land and the session completes.
func (s *ExamService) OnChildCompleted(submissionID string) error {
	link, err := s.ExamRepo.FindSessionBySubmission(submissionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil // standalone practice submission
	}
	if err != nil {
		return err
	}

	session, err := s.ExamRepo.FindSessionByID(link.SessionID)
	if err != nil {
		return err
	}
	if session.Status != model.SessionSubmitted {
		return nil
	}

	links, err := s.ExamRepo.ListExamSubmissions(session.ID)
	if err != nil {
		return err
	}

	bySkill := make(map[model.Skill][]float64)
	for _, l := range links {
		child, err := s.SubmissionRepo.FindByID(l.SubmissionID)
		if err != nil {
			return err
		}
		if child.Status != model.StatusCompleted || child.Score == nil {
			return nil // still waiting on review
		}
		bySkill[l.Skill] = append(bySkill[l.Skill], *child.Score)
	}

	updates := map[string]interface{}{"completed_at": time.Now()}
	if scores, ok := bySkill[model.SkillWriting]; ok {
		updates["writing_score"] = scoring.RoundHalf(meanOf(scores))
	}
	if scores, ok := bySkill[model.SkillSpeaking]; ok {
		updates["speaking_score"] = scoring.RoundHalf(meanOf(scores))
	}

	_, err = s.ExamRepo.CompleteSession(session.ID, updates)
	return err
}

func meanOf(scores []float64) float64 {
	sum := 0.0
	for _, v := range scores {
		sum += v
	}
	return sum / float64(len(scores))
}

// liveSession loads a session and enforces ownership plus liveness.
func (s *ExamService) liveSession(sessionID, userID string) (*model.ExamSession, *model.Exam, error) {
	session, err := s.ExamRepo.FindSessionByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, util.NewNotFound("session not found")
		}
		return nil, nil, err
	}
	if session.UserID != userID {
		return nil, nil, util.NewForbidden("not your session")
	}
	if session.Status != model.SessionInProgress {
		return nil, nil, util.NewConflict("session is not in progress")
	}

	exam, err := s.QuestionRepo.FindExamByID(session.ExamID)
	if err != nil {
		return nil, nil, err
	}
	return session, exam, nil
}

func decodeBlueprint(exam *model.Exam) (*model.ExamBlueprint, error) {
	var bp model.ExamBlueprint
	if len(exam.Blueprint) == 0 {
		return nil, util.NewBadRequest("exam has no blueprint")
	}
	if err := json.Unmarshal(exam.Blueprint, &bp); err != nil {
		return nil, util.NewBadRequest("malformed exam blueprint")
	}
	return &bp, nil
}
