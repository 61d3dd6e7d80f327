package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vstep_exam_backend/internal/model"
)

func TestNormalizeAnswer(t *testing.T) {
	assert.Equal(t, "a", NormalizeAnswer("  A "))
	assert.Equal(t, "paris", NormalizeAnswer("Paris"))
	assert.Equal(t, "", NormalizeAnswer("   "))
}

func TestCalculateScore(t *testing.T) {
	assert.Nil(t, CalculateScore(0, 0))
	assert.Nil(t, CalculateScore(3, 0))

	score := CalculateScore(1, 2)
	require.NotNil(t, score)
	assert.Equal(t, 5.0, *score)

	score = CalculateScore(2, 2)
	require.NotNil(t, score)
	assert.Equal(t, 10.0, *score)

	score = CalculateScore(0, 5)
	require.NotNil(t, score)
	assert.Equal(t, 0.0, *score)

	// 2/3 = 6.666... rounds to 6.5
	score = CalculateScore(2, 3)
	require.NotNil(t, score)
	assert.Equal(t, 6.5, *score)

	// 7/9 = 7.777... rounds to 8.0
	score = CalculateScore(7, 9)
	require.NotNil(t, score)
	assert.Equal(t, 8.0, *score)
}

func TestScoreToBand(t *testing.T) {
	assert.Equal(t, model.Band(""), ScoreToBand(-1))
	assert.Equal(t, model.Band(""), ScoreToBand(0))
	assert.Equal(t, model.Band(""), ScoreToBand(3.5))
	assert.Equal(t, model.BandB1, ScoreToBand(4.0))
	assert.Equal(t, model.BandB1, ScoreToBand(5.5))
	assert.Equal(t, model.BandB2, ScoreToBand(6.0))
	assert.Equal(t, model.BandB2, ScoreToBand(8.0))
	assert.Equal(t, model.BandC1, ScoreToBand(8.5))
	assert.Equal(t, model.BandC1, ScoreToBand(10.0))
}

func TestBandMinScore(t *testing.T) {
	assert.Nil(t, BandMinScore(""))

	v := BandMinScore(model.BandB1)
	require.NotNil(t, v)
	assert.Equal(t, 4.0, *v)

	v = BandMinScore(model.BandC1)
	require.NotNil(t, v)
	assert.Equal(t, 8.5, *v)
}

func TestCalculateOverallScore(t *testing.T) {
	assert.Nil(t, CalculateOverallScore(nil))
	assert.Nil(t, CalculateOverallScore([]*float64{}))

	f := func(v float64) *float64 { return &v }

	// Any missing skill leaves the overall unset.
	assert.Nil(t, CalculateOverallScore([]*float64{f(6.0), nil, f(7.0), f(8.0)}))

	got := CalculateOverallScore([]*float64{f(6.0), f(7.0), f(8.0), f(9.0)})
	require.NotNil(t, got)
	assert.Equal(t, 7.5, *got)

	// 6.0+6.5+7.0 avg = 6.5
	got = CalculateOverallScore([]*float64{f(6.0), f(6.5), f(7.0)})
	require.NotNil(t, got)
	assert.Equal(t, 6.5, *got)

	// 5.0+5.5+5.5 avg = 5.333... rounds to 5.5
	got = CalculateOverallScore([]*float64{f(5.0), f(5.5), f(5.5)})
	require.NotNil(t, got)
	assert.Equal(t, 5.5, *got)
}
