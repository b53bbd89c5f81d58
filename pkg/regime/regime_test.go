package regime

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

func sumProbabilities(p [NumRegimes]float64) float64 {
	return p[0] + p[1] + p[2]
}

func TestRegimeString(t *testing.T) {
	assert.Equal(t, "normal", Normal.String())
	assert.Equal(t, "stress", Stress.String())
	assert.Equal(t, "crisis", Crisis.String())
	assert.Equal(t, "regime(7)", Regime(7).String())
}

func TestTransitionRowsAreStochastic(t *testing.T) {
	for r := Normal; r < NumRegimes; r++ {
		assert.InDelta(t, 1.0, sumProbabilities(DefaultTransition.Row(r)), 1e-12, r.String())
	}
	assert.InDelta(t, 1.0, sumProbabilities(DefaultPrior), 1e-12)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		volPercentile float64
		corrStd       float64
		expected      Regime
	}{
		{name: "Calm", volPercentile: 0.5, corrStd: 0.05, expected: Normal},
		{name: "Elevated vol", volPercentile: 0.85, corrStd: 0.05, expected: Stress},
		{name: "Unstable correlation", volPercentile: 0.2, corrStd: 0.2, expected: Stress},
		{name: "Extreme vol", volPercentile: 1.0, corrStd: 0, expected: Crisis},
		{name: "Broken correlation", volPercentile: 0.1, corrStd: 0.31, expected: Crisis},
		{name: "Boundaries are exclusive", volPercentile: 0.80, corrStd: 0.15, expected: Normal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.volPercentile, tt.corrStd))
		})
	}
}

func TestEvidence(t *testing.T) {
	assert.Equal(t, 2.0, Evidence(Crisis, 1.0))
	assert.InDelta(t, 1.2, Evidence(Stress, 0.8), 1e-12)
	assert.Equal(t, 1.0, Evidence(Normal, 0.3))
}

func TestNewDetectorInvalidWindow(t *testing.T) {
	_, err := NewDetector(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, stats.ErrCapacity))
}

func TestDetectorWarmup(t *testing.T) {
	d, err := NewDetector(20)
	require.NoError(t, err)

	assert.Equal(t, Normal, d.Current())
	assert.Equal(t, DefaultPrior, d.Probabilities())
	assert.Equal(t, 1.0, d.Confidence())

	// 首个 tick 没有上一价格，不产生波动率样本
	d.Update(100, 50, 0.9)
	assert.Equal(t, 0, d.VolatilitySamples())

	for i := 1; i < MinVolatilitySamples; i++ {
		d.Update(100+float64(i), 50+float64(i%3), 0.9)
	}
	assert.Equal(t, MinVolatilitySamples-1, d.VolatilitySamples())
	assert.Equal(t, DefaultPrior, d.Probabilities(), "no update before enough samples")
}

// feedCrisis 驱动检测器：相关系数剧烈摆动使 corr_std > 0.3
func feedCrisis(d *Detector, ticks int) {
	p1, p2 := 100.0, 50.0
	for i := 0; i < ticks; i++ {
		corr := 0.9
		if i%2 == 1 {
			corr = -0.9
		}
		p1 *= 1 + 0.01*float64(i%4)
		p2 *= 1 - 0.005*float64(i%3)
		d.Update(p1, p2, corr)
	}
}

func TestDetectorCrisisCandidateFromNormal(t *testing.T) {
	d, err := NewDetector(20)
	require.NoError(t, err)

	feedCrisis(d, MinVolatilitySamples+1)
	require.Equal(t, MinVolatilitySamples, d.VolatilitySamples())

	volPct, corrStd := d.Indicators()
	assert.Greater(t, corrStd, 0.3)
	assert.Greater(t, volPct, 0.0)
	assert.Equal(t, Crisis, d.Candidate())

	// posterior = Normal row scaled by a scalar evidence, renormalised
	probs := d.Probabilities()
	row := DefaultTransition.Row(Normal)
	for i := range probs {
		assert.InDelta(t, row[i], probs[i], 1e-12)
	}
	assert.Equal(t, Normal, d.Current())
	assert.InDelta(t, 0.95, d.Confidence(), 1e-12)
	assert.InDelta(t, 1.0, sumProbabilities(probs), 1e-9)
}

func TestDetectorArgmaxFromCrisis(t *testing.T) {
	d, err := NewDetector(20)
	require.NoError(t, err)
	d.current = Crisis

	feedCrisis(d, MinVolatilitySamples+1)

	// Crisis row [.20 .50 .30] → Stress wins
	assert.Equal(t, Stress, d.Current())
	assert.Equal(t, 0, d.TicksSinceChange())
	assert.InDelta(t, 0.5, d.Confidence(), 1e-12)
	assert.True(t, d.RegimeChanged(0.4))
	assert.False(t, d.RegimeChanged(0.6))

	// Stress row [.60 .30 .10] → back to Normal on the next tick
	feedCrisis(d, 1)
	assert.Equal(t, Normal, d.Current())
}

func TestDetectorZeroEvidenceSkipsUpdate(t *testing.T) {
	d, err := NewDetector(20)
	require.NoError(t, err)

	// 价格不变 → 波动率全为 0 → vol_percentile = 0；相关性摆动 → Crisis 候选
	for i := 0; i <= MinVolatilitySamples; i++ {
		corr := 0.8
		if i%2 == 1 {
			corr = -0.8
		}
		d.Update(100, 50, corr)
	}

	volPct, _ := d.Indicators()
	require.Equal(t, 0.0, volPct)
	require.Equal(t, Crisis, d.Candidate())

	// evidence = 0 → posterior 总和为 0，概率保持不变
	assert.Equal(t, DefaultPrior, d.Probabilities())
	assert.Equal(t, Normal, d.Current())
	assert.InDelta(t, 0.8, d.Confidence(), 1e-12)
}

func TestDetectorTicksSinceChange(t *testing.T) {
	d, err := NewDetector(20)
	require.NoError(t, err)

	feedCrisis(d, MinVolatilitySamples+4)
	assert.Equal(t, Normal, d.Current())
	assert.Equal(t, 4, d.TicksSinceChange())
	assert.True(t, d.RegimeChanged(0.9))

	feedCrisis(d, 1)
	assert.Equal(t, 5, d.TicksSinceChange())
	assert.False(t, d.RegimeChanged(0.0))
}

func TestDetectorProbabilitiesStayNormalized(t *testing.T) {
	d, err := NewDetector(15)
	require.NoError(t, err)

	p1, p2 := 100.0, 80.0
	for i := 0; i < 200; i++ {
		f := float64(i)
		p1 *= 1 + 0.02*math.Sin(f*0.37)
		p2 *= 1 + 0.015*math.Cos(f*0.91)
		d.Update(p1, p2, math.Sin(f*0.23))

		probs := d.Probabilities()
		assert.InDelta(t, 1.0, sumProbabilities(probs), 1e-9)
		for _, p := range probs {
			assert.GreaterOrEqual(t, p, 0.0)
		}
	}
}
