package repository

import (
	"testing"
	"time"

	"vstep_exam_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimProtocol(t *testing.T) {
	db := openTestDB(t)
	repo := NewSubmissionRepository(db)
	student := seedUser(t, db, model.Student)
	sub := seedSubmission(t, db, student.ID, model.SkillWriting, model.StatusReviewPending)

	now := time.Now()
	cutoff := now.Add(-15 * time.Minute)

	// 评阅人 A 抢到锁
	rows, err := repo.Claim(sub.ID, "reviewer-a", now, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	// B 在 A 持锁期间抢锁失败
	rows, err = repo.Claim(sub.ID, "reviewer-b", now, cutoff)
	require.NoError(t, err)
	assert.Zero(t, rows)

	// A 重复认领自己持有的锁是幂等的
	rows, err = repo.Claim(sub.ID, "reviewer-a", now, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	// A 释放后 B 才能认领
	require.NoError(t, repo.Release(sub.ID))
	rows, err = repo.Claim(sub.ID, "reviewer-b", now, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	got, err := repo.FindByID(sub.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ClaimedBy)
	assert.Equal(t, "reviewer-b", *got.ClaimedBy)
}

func TestClaimExpiredLockTransfers(t *testing.T) {
	db := openTestDB(t)
	repo := NewSubmissionRepository(db)
	student := seedUser(t, db, model.Student)
	sub := seedSubmission(t, db, student.ID, model.SkillSpeaking, model.StatusReviewPending)

	// A 的锁停留在 20 分钟前
	stale := time.Now().Add(-20 * time.Minute)
	rows, err := repo.Claim(sub.ID, "reviewer-a", stale, stale.Add(-15*time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), rows)

	now := time.Now()
	rows, err = repo.Claim(sub.ID, "reviewer-b", now, now.Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows, "expired claim should transfer")
}

func TestClaimOnlyWhileReviewPending(t *testing.T) {
	db := openTestDB(t)
	repo := NewSubmissionRepository(db)
	student := seedUser(t, db, model.Student)
	sub := seedSubmission(t, db, student.ID, model.SkillWriting, model.StatusCompleted)

	now := time.Now()
	rows, err := repo.Claim(sub.ID, "reviewer-a", now, now.Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, rows)
}

func TestFinalizeReviewRequiresLiveClaim(t *testing.T) {
	db := openTestDB(t)
	repo := NewSubmissionRepository(db)
	student := seedUser(t, db, model.Student)
	sub := seedSubmission(t, db, student.ID, model.SkillWriting, model.StatusReviewPending)

	now := time.Now()
	cutoff := now.Add(-15 * time.Minute)

	// 未持锁的评阅人写不进去
	rows, err := repo.FinalizeReview(sub.ID, "reviewer-a", false, cutoff, 7.5, model.BandB2, false, now)
	require.NoError(t, err)
	assert.Zero(t, rows)

	rows, err = repo.Claim(sub.ID, "reviewer-a", now, cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(1), rows)

	// 持锁的另一人仍然写不进去
	rows, err = repo.FinalizeReview(sub.ID, "reviewer-b", false, cutoff, 7.5, model.BandB2, false, now)
	require.NoError(t, err)
	assert.Zero(t, rows)

	rows, err = repo.FinalizeReview(sub.ID, "reviewer-a", false, cutoff, 7.5, model.BandB2, true, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	got, err := repo.FindByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	require.NotNil(t, got.Score)
	assert.Equal(t, 7.5, *got.Score)
	assert.Equal(t, model.BandB2, got.Band)
	assert.Equal(t, model.GradingHuman, got.GradingMode)
	assert.True(t, got.AuditFlag)
	assert.Nil(t, got.ClaimedBy)
	assert.Nil(t, got.ClaimedAt)
	require.NotNil(t, got.ReviewerID)
	assert.Equal(t, "reviewer-a", *got.ReviewerID)
}

func TestFinalizeReviewAdminBypassesClaim(t *testing.T) {
	db := openTestDB(t)
	repo := NewSubmissionRepository(db)
	student := seedUser(t, db, model.Student)
	sub := seedSubmission(t, db, student.ID, model.SkillSpeaking, model.StatusReviewPending)

	now := time.Now()
	cutoff := now.Add(-15 * time.Minute)

	rows, err := repo.Claim(sub.ID, "reviewer-a", now, cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(1), rows)

	// 管理员无视他人持有的锁
	rows, err = repo.FinalizeReview(sub.ID, "admin-1", true, cutoff, 8.0, model.BandB2, false, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
}

func TestUpdateStatusIsConditional(t *testing.T) {
	db := openTestDB(t)
	repo := NewSubmissionRepository(db)
	student := seedUser(t, db, model.Student)
	sub := seedSubmission(t, db, student.ID, model.SkillListening, model.StatusPending)

	rows, err := repo.UpdateStatus(sub.ID, model.StatusPending, model.StatusQueued)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	// 同一迁移第二次执行丢失竞争
	rows, err = repo.UpdateStatus(sub.ID, model.StatusPending, model.StatusQueued)
	require.NoError(t, err)
	assert.Zero(t, rows)

	rows, err = repo.StartProcessing(sub.ID, []model.SubmissionStatus{model.StatusQueued})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = repo.StartProcessing(sub.ID, []model.SubmissionStatus{model.StatusQueued})
	require.NoError(t, err)
	assert.Zero(t, rows, "duplicate task must not re-enter processing")
}

func TestGradeOnlyGradableStates(t *testing.T) {
	db := openTestDB(t)
	repo := NewSubmissionRepository(db)
	student := seedUser(t, db, model.Student)

	gradable := []model.SubmissionStatus{
		model.StatusPending, model.StatusQueued, model.StatusProcessing, model.StatusReviewPending,
	}
	now := time.Now()

	sub := seedSubmission(t, db, student.ID, model.SkillReading, model.StatusQueued)
	rows, err := repo.Grade(sub.ID, gradable, 6.5, model.BandB2, "teacher-1", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	// 已完成的不可再判
	rows, err = repo.Grade(sub.ID, gradable, 9.0, model.BandC1, "teacher-1", now)
	require.NoError(t, err)
	assert.Zero(t, rows)

	failed := seedSubmission(t, db, student.ID, model.SkillReading, model.StatusFailed)
	rows, err = repo.Grade(failed.ID, gradable, 6.5, model.BandB2, "teacher-1", now)
	require.NoError(t, err)
	assert.Zero(t, rows)
}

func TestListReviewQueueOrdering(t *testing.T) {
	db := openTestDB(t)
	repo := NewSubmissionRepository(db)
	student := seedUser(t, db, model.Student)

	mk := func(priority model.ReviewPriority, createdAt time.Time) *model.Submission {
		sub := seedSubmission(t, db, student.ID, model.SkillWriting, model.StatusReviewPending)
		require.NoError(t, db.Model(sub).Updates(map[string]interface{}{
			"review_priority": priority,
			"created_at":      createdAt,
		}).Error)
		return sub
	}

	base := time.Now().Add(-time.Hour)
	oldLow := mk(model.PriorityLow, base)
	newHigh := mk(model.PriorityHigh, base.Add(30*time.Minute))
	oldHigh := mk(model.PriorityHigh, base.Add(10*time.Minute))
	medium := mk(model.PriorityMedium, base.Add(5*time.Minute))
	none := mk(model.PriorityNone, base)

	subs, total, err := repo.ListReviewQueue("", "", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, subs, 5)

	// high 按提交时间升序在前，其后 medium、low，最后无优先级
	assert.Equal(t, oldHigh.ID, subs[0].ID)
	assert.Equal(t, newHigh.ID, subs[1].ID)
	assert.Equal(t, medium.ID, subs[2].ID)
	assert.Equal(t, oldLow.ID, subs[3].ID)
	assert.Equal(t, none.ID, subs[4].ID)

	// 按优先级过滤
	subs, total, err = repo.ListReviewQueue("", model.PriorityHigh, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, subs, 2)
}
