package scoring

import (
	"fmt"

	"vstep_exam_backend/internal/model"
)

// InvalidTransitionError names both ends of a rejected status change.
type InvalidTransitionError struct {
	From model.SubmissionStatus
	To   model.SubmissionStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition submission from %q to %q", e.From, e.To)
}

// submissionTransitions 提交状态机邻接表。completed/failed 为终态。
var submissionTransitions = map[model.SubmissionStatus][]model.SubmissionStatus{
	model.StatusPending:       {model.StatusQueued, model.StatusFailed},
	model.StatusQueued:        {model.StatusProcessing},
	model.StatusProcessing:    {model.StatusCompleted, model.StatusReviewPending, model.StatusFailed},
	model.StatusReviewPending: {model.StatusCompleted},
	model.StatusCompleted:     {},
	model.StatusFailed:        {},
}

// CanTransition is a pure adjacency lookup with no side effects.
func CanTransition(from, to model.SubmissionStatus) bool {
	for _, next := range submissionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an InvalidTransitionError for any edge not in
// the adjacency table. Called before every persisted status change.
func ValidateTransition(from, to model.SubmissionStatus) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// NextStates lists the legal targets from a status.
func NextStates(from model.SubmissionStatus) []model.SubmissionStatus {
	return submissionTransitions[from]
}

// GradableStatuses are the states a direct grade may act on.
var GradableStatuses = []model.SubmissionStatus{
	model.StatusPending,
	model.StatusQueued,
	model.StatusProcessing,
	model.StatusReviewPending,
}
