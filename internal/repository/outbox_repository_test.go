package repository

import (
	"encoding/json"
	"testing"
	"time"

	"vstep_exam_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enqueueEvent(t *testing.T, repo *OutboxRepository, submissionID string) *model.OutboxEvent {
	t.Helper()
	event := &model.OutboxEvent{
		SubmissionID: submissionID,
		MessageType:  model.MessageReviewRequested,
		Payload:      json.RawMessage(`{"submissionId":"` + submissionID + `"}`),
	}
	require.NoError(t, repo.Enqueue(event))
	return event
}

func TestOutboxClaimBatch(t *testing.T) {
	db := openTestDB(t)
	repo := NewOutboxRepository(db)
	student := seedUser(t, db, model.Student)
	sub := seedSubmission(t, db, student.ID, model.SkillWriting, model.StatusReviewPending)

	first := enqueueEvent(t, repo, sub.ID)
	second := enqueueEvent(t, repo, sub.ID)

	now := time.Now()
	cutoff := now.Add(-50 * time.Second)

	events, err := repo.ClaimBatch("publisher-a", 10, now, cutoff)
	require.NoError(t, err)
	require.Len(t, events, 2)
	claimed := map[string]bool{events[0].ID: true, events[1].ID: true}
	assert.True(t, claimed[first.ID])
	assert.True(t, claimed[second.ID])
	for _, e := range events {
		assert.Equal(t, model.OutboxProcessing, e.Status)
		require.NotNil(t, e.LockedBy)
		assert.Equal(t, "publisher-a", *e.LockedBy)
	}

	// 另一个发布器在锁有效期内抢不到
	events, err = repo.ClaimBatch("publisher-b", 10, now, cutoff)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestOutboxStaleLockReclaimed(t *testing.T) {
	db := openTestDB(t)
	repo := NewOutboxRepository(db)
	student := seedUser(t, db, model.Student)
	sub := seedSubmission(t, db, student.ID, model.SkillSpeaking, model.StatusReviewPending)
	enqueueEvent(t, repo, sub.ID)

	// publisher-a 上锁后宕机
	stale := time.Now().Add(-5 * time.Minute)
	_, err := repo.ClaimBatch("publisher-a", 10, stale, stale.Add(-time.Minute))
	require.NoError(t, err)

	now := time.Now()
	events, err := repo.ClaimBatch("publisher-b", 10, now, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].LockedBy)
	assert.Equal(t, "publisher-b", *events[0].LockedBy)
}

func TestOutboxPublishLifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewOutboxRepository(db)
	student := seedUser(t, db, model.Student)
	sub := seedSubmission(t, db, student.ID, model.SkillWriting, model.StatusReviewPending)
	event := enqueueEvent(t, repo, sub.ID)

	now := time.Now()
	_, err := repo.ClaimBatch("publisher-a", 10, now, now.Add(-time.Minute))
	require.NoError(t, err)

	require.NoError(t, repo.MarkPublished(event.ID, now))

	var got model.OutboxEvent
	require.NoError(t, db.First(&got, "id = ?", event.ID).Error)
	assert.Equal(t, model.OutboxPublished, got.Status)
	assert.NotNil(t, got.PublishedAt)
	assert.Nil(t, got.LockedBy)

	pending, err := repo.CountByStatus(model.OutboxPending)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestOutboxMarkFailedRetriesThenGivesUp(t *testing.T) {
	db := openTestDB(t)
	repo := NewOutboxRepository(db)
	student := seedUser(t, db, model.Student)
	sub := seedSubmission(t, db, student.ID, model.SkillWriting, model.StatusReviewPending)
	event := enqueueEvent(t, repo, sub.ID)

	maxAttempts := 3
	for i := 1; i < maxAttempts; i++ {
		require.NoError(t, repo.MarkFailed(event.ID, maxAttempts, "stream unavailable"))

		var got model.OutboxEvent
		require.NoError(t, db.First(&got, "id = ?", event.ID).Error)
		assert.Equal(t, model.OutboxPending, got.Status, "attempt %d should return to pending", i)
		assert.Equal(t, i, got.Attempts)
		assert.Nil(t, got.LockedBy)
	}

	require.NoError(t, repo.MarkFailed(event.ID, maxAttempts, "stream unavailable"))

	var got model.OutboxEvent
	require.NoError(t, db.First(&got, "id = ?", event.ID).Error)
	assert.Equal(t, model.OutboxFailed, got.Status)
	assert.Equal(t, maxAttempts, got.Attempts)
	assert.Equal(t, "stream unavailable", got.ErrorMessage)
}
