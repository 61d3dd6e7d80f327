package scoring

import (
	"math"
	"time"

	"vstep_exam_backend/internal/model"
)

// Trend classifies a learner's recent score trajectory for one skill.
type Trend string

const (
	TrendImproving        Trend = "improving"
	TrendStable           Trend = "stable"
	TrendDeclining        Trend = "declining"
	TrendInconsistent     Trend = "inconsistent"
	TrendInsufficientData Trend = "insufficient_data"
)

// WindowSize 趋势分析只看最近 N 次成绩。
const WindowSize = 10

const (
	// HighDeviation marks a score spread too noisy to call a direction.
	HighDeviation = 1.5
	// TrendDelta is the minimum half-window gap that counts as movement.
	TrendDelta = 0.5

	ScaffoldMin = 1
	ScaffoldMax = 5
	// Scaffold only moves after the same direction holds this many updates.
	ScaffoldStreak = 2

	scaffoldRaiseMean = 8.0
	scaffoldLowerMean = 5.0
)

// ComputeStats returns the mean and sample standard deviation of scores.
// Mean is nil for an empty slice; deviation is nil below two samples.
func ComputeStats(scores []float64) (avg *float64, deviation *float64) {
	n := len(scores)
	if n == 0 {
		return nil, nil
	}

	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(n)
	avg = &mean

	if n < 2 {
		return avg, nil
	}

	sq := 0.0
	for _, s := range scores {
		d := s - mean
		sq += d * d
	}
	sd := math.Sqrt(sq / float64(n-1))
	deviation = &sd
	return avg, deviation
}

// ComputeTrend classifies scores ordered newest first.
//
// Fewer than 3 samples is insufficient data. With 6 or more samples and a
// known deviation, a spread of HighDeviation or above is inconsistent;
// otherwise the mean of the newest 3 is compared against the mean of the
// next 3 and a gap of TrendDelta either way decides the direction. Between
// 3 and 5 samples only the inconsistent check applies.
func ComputeTrend(scores []float64, deviation *float64) Trend {
	n := len(scores)
	if n < 3 {
		return TrendInsufficientData
	}

	if deviation != nil && *deviation >= HighDeviation {
		return TrendInconsistent
	}

	if n < 6 {
		return TrendStable
	}

	recent := mean(scores[:3])
	previous := mean(scores[3:6])
	delta := recent - previous

	switch {
	case delta >= TrendDelta:
		return TrendImproving
	case delta <= -TrendDelta:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func mean(scores []float64) float64 {
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

// TrendDirection maps a trend onto a streak direction.
func TrendDirection(trend Trend) model.StreakDirection {
	switch trend {
	case TrendImproving:
		return model.StreakUp
	case TrendDeclining:
		return model.StreakDown
	default:
		return model.StreakNeutral
	}
}

// NextStreak extends the streak when the direction holds, otherwise
// restarts it at 1 in the new direction.
func NextStreak(prevDir model.StreakDirection, prevCount int, trend Trend) (model.StreakDirection, int) {
	dir := TrendDirection(trend)
	if dir == prevDir {
		return dir, prevCount + 1
	}
	return dir, 1
}

// AdjustScaffold nudges the scaffold level after a sustained streak.
// The level only rises on a held up-streak with a high window mean, and
// only drops on a held down-streak with a low window mean. Anything else
// leaves it alone. Fewer than 3 window samples never moves it.
func AdjustScaffold(current int, avg *float64, dir model.StreakDirection, streak int, sampleCount int) int {
	if sampleCount < 3 || avg == nil {
		return clampScaffold(current)
	}

	if *avg > scaffoldRaiseMean && dir == model.StreakUp && streak >= ScaffoldStreak {
		return clampScaffold(current + 1)
	}
	if *avg < scaffoldLowerMean && dir == model.StreakDown && streak >= ScaffoldStreak {
		return clampScaffold(current - 1)
	}
	return clampScaffold(current)
}

func clampScaffold(level int) int {
	if level < ScaffoldMin {
		return ScaffoldMin
	}
	if level > ScaffoldMax {
		return ScaffoldMax
	}
	return level
}

// ScorePoint pairs a score with when it was earned.
type ScorePoint struct {
	Score     float64
	CreatedAt time.Time
}

// ComputeEta estimates the weeks until the window mean reaches target,
// from a least-squares fit of score against elapsed days. Points arrive
// newest first. Returns nil when there is no usable signal: under 3
// points, a non-positive target, a flat or negative slope, or timestamps
// with no spread. Returns 0 when the mean already meets the target.
func ComputeEta(points []ScorePoint, target float64) *int {
	if len(points) < 3 || target <= 0 {
		return nil
	}

	scores := make([]float64, len(points))
	for i, p := range points {
		scores[i] = p.Score
	}
	avg := mean(scores)
	if avg >= target {
		zero := 0
		return &zero
	}

	// Chronological order for the regression.
	n := len(points)
	origin := points[n-1].CreatedAt
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		p := points[n-1-i]
		xs[i] = p.CreatedAt.Sub(origin).Hours() / 24
		ys[i] = p.Score
	}

	var sumX, sumY, sumXY, sumXX float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := float64(n)*sumXX - sumX*sumX
	if denom == 0 {
		return nil
	}
	slope := (float64(n)*sumXY - sumX*sumY) / denom
	if slope <= 0 || math.IsNaN(slope) || math.IsInf(slope, 0) {
		return nil
	}

	days := (target - avg) / slope
	weeks := int(math.Ceil(days / 7))
	if weeks < 0 {
		weeks = 0
	}
	return &weeks
}

// AtRiskWithin is the goal-deadline horizon that flags a learner at risk.
const AtRiskWithin = 30 * 24 * time.Hour

// IsAtRisk flags a learner whose trajectory threatens their goal: a
// declining trend, a low window mean, or a near deadline while still
// below the target band's threshold.
func IsAtRisk(trend Trend, avg *float64, current model.Band, goal *model.UserGoal, now time.Time) bool {
	if trend == TrendDeclining {
		return true
	}
	if avg != nil && *avg < scaffoldLowerMean {
		return true
	}
	if goal != nil && goal.Deadline != nil && goal.Deadline.Sub(now) <= AtRiskWithin {
		cur := BandMinScore(current)
		tgt := BandMinScore(goal.TargetBand)
		if tgt != nil && (cur == nil || *cur < *tgt) {
			return true
		}
	}
	return false
}
