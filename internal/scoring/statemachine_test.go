package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vstep_exam_backend/internal/model"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(model.StatusPending, model.StatusQueued))
	assert.True(t, CanTransition(model.StatusPending, model.StatusFailed))
	assert.True(t, CanTransition(model.StatusQueued, model.StatusProcessing))
	assert.True(t, CanTransition(model.StatusProcessing, model.StatusCompleted))
	assert.True(t, CanTransition(model.StatusProcessing, model.StatusReviewPending))
	assert.True(t, CanTransition(model.StatusProcessing, model.StatusFailed))
	assert.True(t, CanTransition(model.StatusReviewPending, model.StatusCompleted))

	// Skipping the queue is not an edge.
	assert.False(t, CanTransition(model.StatusPending, model.StatusProcessing))
	assert.False(t, CanTransition(model.StatusPending, model.StatusCompleted))
	assert.False(t, CanTransition(model.StatusQueued, model.StatusCompleted))
	assert.False(t, CanTransition(model.StatusReviewPending, model.StatusFailed))
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	assert.Empty(t, NextStates(model.StatusCompleted))
	assert.Empty(t, NextStates(model.StatusFailed))

	for _, to := range []model.SubmissionStatus{
		model.StatusPending, model.StatusQueued, model.StatusProcessing,
		model.StatusReviewPending, model.StatusCompleted, model.StatusFailed,
	} {
		assert.False(t, CanTransition(model.StatusCompleted, to))
		assert.False(t, CanTransition(model.StatusFailed, to))
	}
}

func TestValidateTransitionNamesBothStates(t *testing.T) {
	err := ValidateTransition(model.StatusCompleted, model.StatusPending)
	require.Error(t, err)

	var transErr *InvalidTransitionError
	require.ErrorAs(t, err, &transErr)
	assert.Equal(t, model.StatusCompleted, transErr.From)
	assert.Equal(t, model.StatusPending, transErr.To)
	assert.Contains(t, err.Error(), `"completed"`)
	assert.Contains(t, err.Error(), `"pending"`)

	require.NoError(t, ValidateTransition(model.StatusPending, model.StatusQueued))
}
