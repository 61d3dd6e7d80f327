package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vstep_exam_backend/internal/model"
)

func TestComputeStats(t *testing.T) {
	avg, dev := ComputeStats(nil)
	assert.Nil(t, avg)
	assert.Nil(t, dev)

	avg, dev = ComputeStats([]float64{7.0})
	require.NotNil(t, avg)
	assert.Equal(t, 7.0, *avg)
	assert.Nil(t, dev)

	avg, dev = ComputeStats([]float64{8, 4, 7, 5})
	require.NotNil(t, avg)
	require.NotNil(t, dev)
	assert.Equal(t, 6.0, *avg)
	assert.InDelta(t, 1.8257, *dev, 0.0001)
}

func TestComputeTrend(t *testing.T) {
	dev := func(scores []float64) *float64 {
		_, d := ComputeStats(scores)
		return d
	}

	t.Run("insufficient data below three samples", func(t *testing.T) {
		assert.Equal(t, TrendInsufficientData, ComputeTrend(nil, nil))
		s := []float64{6, 6.5}
		assert.Equal(t, TrendInsufficientData, ComputeTrend(s, dev(s)))
	})

	t.Run("high deviation is inconsistent", func(t *testing.T) {
		s := []float64{8, 4, 7, 5}
		assert.Equal(t, TrendInconsistent, ComputeTrend(s, dev(s)))

		s = []float64{9, 3, 8, 4, 9, 3}
		assert.Equal(t, TrendInconsistent, ComputeTrend(s, dev(s)))
	})

	t.Run("small steady window is stable", func(t *testing.T) {
		s := []float64{6, 6.5, 6}
		assert.Equal(t, TrendStable, ComputeTrend(s, dev(s)))
	})

	t.Run("newest half up by delta is improving", func(t *testing.T) {
		// newest first: recent mean 7.0, previous mean 6.0
		s := []float64{7, 7, 7, 6, 6, 6}
		assert.Equal(t, TrendImproving, ComputeTrend(s, dev(s)))
	})

	t.Run("newest half down by delta is declining", func(t *testing.T) {
		s := []float64{5.5, 5.5, 5.5, 6.5, 6, 6.5}
		assert.Equal(t, TrendDeclining, ComputeTrend(s, dev(s)))
	})

	t.Run("gap under delta is stable", func(t *testing.T) {
		s := []float64{6.5, 6, 6.5, 6, 6.5, 6}
		assert.Equal(t, TrendStable, ComputeTrend(s, dev(s)))
	})
}

func TestNextStreak(t *testing.T) {
	dir, count := NextStreak(model.StreakNeutral, 0, TrendImproving)
	assert.Equal(t, model.StreakUp, dir)
	assert.Equal(t, 1, count)

	dir, count = NextStreak(model.StreakUp, 1, TrendImproving)
	assert.Equal(t, model.StreakUp, dir)
	assert.Equal(t, 2, count)

	// A direction flip restarts the streak.
	dir, count = NextStreak(model.StreakUp, 4, TrendDeclining)
	assert.Equal(t, model.StreakDown, dir)
	assert.Equal(t, 1, count)

	dir, count = NextStreak(model.StreakDown, 2, TrendStable)
	assert.Equal(t, model.StreakNeutral, dir)
	assert.Equal(t, 1, count)

	dir, count = NextStreak(model.StreakNeutral, 3, TrendInsufficientData)
	assert.Equal(t, model.StreakNeutral, dir)
	assert.Equal(t, 4, count)
}

func TestAdjustScaffold(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	t.Run("raises after sustained high streak", func(t *testing.T) {
		assert.Equal(t, 3, AdjustScaffold(2, f(8.5), model.StreakUp, 2, 5))
		assert.Equal(t, 5, AdjustScaffold(5, f(9.0), model.StreakUp, 4, 10)) // capped
	})

	t.Run("lowers after sustained low streak", func(t *testing.T) {
		assert.Equal(t, 2, AdjustScaffold(3, f(4.5), model.StreakDown, 2, 5))
		assert.Equal(t, 1, AdjustScaffold(1, f(3.0), model.StreakDown, 3, 5)) // floored
	})

	t.Run("holds without a streak or with a middling mean", func(t *testing.T) {
		assert.Equal(t, 2, AdjustScaffold(2, f(8.5), model.StreakUp, 1, 5))
		assert.Equal(t, 2, AdjustScaffold(2, f(7.0), model.StreakUp, 3, 5))
		assert.Equal(t, 2, AdjustScaffold(2, f(4.0), model.StreakUp, 3, 5))
		assert.Equal(t, 2, AdjustScaffold(2, f(9.0), model.StreakUp, 2, 2)) // too few samples
		assert.Equal(t, 2, AdjustScaffold(2, nil, model.StreakUp, 2, 5))
	})
}

func points(spec ...float64) []ScorePoint {
	// spec is (score, daysAgo) pairs, newest first.
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	var out []ScorePoint
	for i := 0; i < len(spec); i += 2 {
		out = append(out, ScorePoint{
			Score:     spec[i],
			CreatedAt: now.AddDate(0, 0, -int(spec[i+1])),
		})
	}
	return out
}

func TestComputeEta(t *testing.T) {
	t.Run("nil without enough signal", func(t *testing.T) {
		assert.Nil(t, ComputeEta(nil, 8.0))
		assert.Nil(t, ComputeEta(points(6, 0, 6.5, 7), 8.0))
		assert.Nil(t, ComputeEta(points(6, 0, 5.5, 7, 5, 14), 0))
		assert.Nil(t, ComputeEta(points(6, 0, 5.5, 7, 5, 14), -1))
	})

	t.Run("zero when mean already meets target", func(t *testing.T) {
		got := ComputeEta(points(8.5, 0, 8, 7, 8.5, 14), 8.0)
		require.NotNil(t, got)
		assert.Equal(t, 0, *got)
	})

	t.Run("nil on flat or declining slope", func(t *testing.T) {
		assert.Nil(t, ComputeEta(points(6, 0, 6, 7, 6, 14), 8.0))
		assert.Nil(t, ComputeEta(points(5, 0, 5.5, 7, 6, 14), 8.0))
	})

	t.Run("nil when timestamps have no spread", func(t *testing.T) {
		assert.Nil(t, ComputeEta(points(7, 0, 6, 0, 5, 0), 8.0))
	})

	t.Run("projects weeks from the fitted slope", func(t *testing.T) {
		// +0.5 per week exactly: mean 6.0, gap to 8.0 is 2.0 → 4 weeks.
		got := ComputeEta(points(6.5, 0, 6, 7, 5.5, 14), 8.0)
		require.NotNil(t, got)
		assert.Equal(t, 4, *got)

		// +1.0 per week: mean 6.0, gap 2.0 → 2 weeks.
		got = ComputeEta(points(7, 0, 6, 7, 5, 14), 8.0)
		require.NotNil(t, got)
		assert.Equal(t, 2, *got)

		// Fractional weeks round up.
		got = ComputeEta(points(6.5, 0, 6, 7, 5.5, 14), 7.75)
		require.NotNil(t, got)
		assert.Equal(t, 4, *got)
	})
}

func TestIsAtRisk(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	deadline := func(days int) *time.Time {
		d := now.AddDate(0, 0, days)
		return &d
	}

	assert.True(t, IsAtRisk(TrendDeclining, f(7.0), model.BandB2, nil, now))
	assert.True(t, IsAtRisk(TrendStable, f(4.5), model.BandB1, nil, now))
	assert.False(t, IsAtRisk(TrendStable, f(7.0), model.BandB2, nil, now))
	assert.False(t, IsAtRisk(TrendImproving, f(8.0), model.BandB2, nil, now))

	nearGoal := &model.UserGoal{TargetBand: model.BandC1, Deadline: deadline(20)}
	farGoal := &model.UserGoal{TargetBand: model.BandC1, Deadline: deadline(90)}

	assert.True(t, IsAtRisk(TrendStable, f(7.0), model.BandB2, nearGoal, now))
	assert.False(t, IsAtRisk(TrendStable, f(7.0), model.BandB2, farGoal, now))

	// Already at the target band: the deadline no longer matters.
	assert.False(t, IsAtRisk(TrendStable, f(9.0), model.BandC1, nearGoal, now))

	// No band yet counts as below any target.
	assert.True(t, IsAtRisk(TrendStable, f(5.5), model.Band(""), nearGoal, now))
}
