// Package scoring holds the pure grading primitives: answer normalization,
// score conversion, band mapping and the submission status machine. No I/O.
package scoring

import (
	"math"
	"strings"

	"vstep_exam_backend/internal/model"
)

// VSTEP band thresholds on the 0-10 scale.
const (
	BandThresholdC1 = 8.5
	BandThresholdB2 = 6.0
	BandThresholdB1 = 4.0
)

// NormalizeAnswer 比较前去除首尾空白并统一小写。
func NormalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// RoundHalf rounds to the nearest 0.5.
func RoundHalf(v float64) float64 {
	return math.Round(v*2) / 2
}

// CalculateScore converts a correct/total ratio to the 0-10 scale in 0.5
// increments. A zero total yields nil, never a zero score.
func CalculateScore(correct, total int) *float64 {
	if total == 0 {
		return nil
	}
	score := RoundHalf(float64(correct) / float64(total) * 10)
	return &score
}

// ScoreToBand maps a 0-10 score to a VSTEP.3-5 band. Scores below 4.0 are
// below B1 and map to the empty band.
func ScoreToBand(score float64) model.Band {
	switch {
	case score < 0:
		return ""
	case score >= BandThresholdC1:
		return model.BandC1
	case score >= BandThresholdB2:
		return model.BandB2
	case score >= BandThresholdB1:
		return model.BandB1
	default:
		return ""
	}
}

// BandMinScore returns the minimum score of a band, nil for the empty band.
func BandMinScore(b model.Band) *float64 {
	var v float64
	switch b {
	case model.BandC1:
		v = BandThresholdC1
	case model.BandB2:
		v = BandThresholdB2
	case model.BandB1:
		v = BandThresholdB1
	default:
		return nil
	}
	return &v
}

// CalculateOverallScore averages per-skill scores, rounded to the nearest
// 0.5. Returns nil when empty or when any skill score is still missing.
func CalculateOverallScore(scores []*float64) *float64 {
	if len(scores) == 0 {
		return nil
	}
	sum := 0.0
	for _, s := range scores {
		if s == nil {
			return nil
		}
		sum += *s
	}
	avg := RoundHalf(sum / float64(len(scores)))
	return &avg
}
