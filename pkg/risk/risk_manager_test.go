package risk

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/quantlink-statarb/pkg/regime"
	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(nil)
	require.NoError(t, err)
	return m
}

func TestManager_Creation(t *testing.T) {
	m := newTestManager(t)

	snap := m.Snapshot()
	assert.Equal(t, 0.15, snap.TargetVolatility)
	assert.Equal(t, 0.15, snap.BaseTargetVolatility)
	// 当前波动率初始化为目标值
	assert.Equal(t, 0.15, snap.CurrentVolatility)
	assert.Equal(t, 1.0, snap.VolatilityScalar)
	assert.Equal(t, DefaultConfig(), m.Config())
}

func TestManager_CreationErrors(t *testing.T) {
	_, err := NewManager(&Config{TargetVolatility: 0, ReturnsWindow: 50, MaxPositionLimit: 1, RiskPerTrade: 0.02})
	assert.Error(t, err)

	_, err = NewManager(&Config{TargetVolatility: 0.15, ReturnsWindow: 0, MaxPositionLimit: 1, RiskPerTrade: 0.02})
	require.Error(t, err)
	assert.True(t, errors.Is(err, stats.ErrCapacity))
}

func TestSizePosition(t *testing.T) {
	tests := []struct {
		name     string
		current  float64
		heat     float64
		strength float64
		account  float64
		limit    float64
		expected float64
	}{
		{
			name:     "Neutral scalar full strength",
			current:  0.15,
			strength: 3.0,
			account:  1000000,
			expected: 20000, // 1,000,000 * 0.02
		},
		{
			name:     "Strength is absolute and capped at 1",
			current:  0.15,
			strength: -9.0,
			account:  1000000,
			expected: 20000,
		},
		{
			name:     "Strength floor 0.1",
			current:  0.15,
			strength: 0.01,
			account:  1000000,
			expected: 2000,
		},
		{
			name:     "Half volatility doubles size",
			current:  0.075,
			strength: 3.0,
			account:  1000000,
			expected: 40000,
		},
		{
			name:     "Position limit caps size",
			current:  0.15,
			strength: 3.0,
			account:  1000000,
			limit:    5000,
			expected: 5000,
		},
		{
			name:     "Heat above 0.5 derates",
			current:  0.15,
			heat:     0.8,
			strength: 3.0,
			account:  1000000,
			expected: 20000 * 0.2,
		},
		{
			name:     "Heat at 0.5 does not derate",
			current:  0.15,
			heat:     0.5,
			strength: 3.0,
			account:  1000000,
			expected: 20000,
		},
		{
			name:     "Scalar above 5 clamps and overrides heat",
			current:  0.015,
			heat:     0.9,
			strength: 3.0,
			account:  1000000,
			expected: 20000 * 5,
		},
		{
			name:     "Clamp override still respects the limit",
			current:  0.015,
			strength: 3.0,
			account:  1000000,
			limit:    50000,
			expected: 50000,
		},
		{
			name:     "Scalar below 0.1 clamps",
			current:  3.0,
			strength: 3.0,
			account:  1000000,
			expected: 20000 * 0.1,
		},
		{
			name:     "Non-positive current volatility uses scalar 1",
			current:  0,
			strength: 3.0,
			account:  1000000,
			expected: 20000,
		},
		{
			name:     "Non-positive account",
			current:  0.15,
			strength: 3.0,
			account:  0,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tt.limit > 0 {
				cfg.MaxPositionLimit = tt.limit
			}
			m, err := NewManager(&cfg)
			require.NoError(t, err)
			m.SetCurrentVolatility(tt.current)
			m.SetPortfolioHeat(tt.heat)

			size := m.SizePosition(tt.strength, tt.account)
			assert.InDelta(t, tt.expected, size, 1e-6)
			if tt.account > 0 {
				assert.InDelta(t, tt.expected, m.PositionSize(), 1e-6)
			}
		})
	}
}

func TestSizePosition_NeverExceedsLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPositionLimit = 15000
	m, err := NewManager(&cfg)
	require.NoError(t, err)

	for _, vol := range []float64{0.05, 0.1, 0.15, 0.3, 1.0} {
		for _, z := range []float64{0, 0.5, 1, 2, 3, 10} {
			m.SetCurrentVolatility(vol)
			size := m.SizePosition(z, 1000000)
			assert.LessOrEqual(t, size, cfg.MaxPositionLimit, "vol=%v z=%v", vol, z)
		}
	}
}

func TestUpdateVolatilityEstimate(t *testing.T) {
	m := newTestManager(t)

	// 少于 5 个样本时不更新
	for i := 0; i < 4; i++ {
		m.UpdateVolatilityEstimate(0.01)
	}
	assert.Equal(t, 0.15, m.Snapshot().CurrentVolatility)

	// 第 5 个样本：首次估计不做平滑
	m.UpdateVolatilityEstimate(0.01)
	first := math.Sqrt(0.0001 * TradingDays)
	assert.InDelta(t, first, m.Snapshot().CurrentVolatility, 1e-12)

	// 之后按 0.94 衰减平滑
	m.UpdateVolatilityEstimate(0.03)
	raw := math.Sqrt((5*0.0001 + 0.0009) / 6 * TradingDays)
	assert.InDelta(t, 0.94*first+0.06*raw, m.Snapshot().CurrentVolatility, 1e-12)
}

func TestUpdateVolatilityEstimate_StateIsPerInstance(t *testing.T) {
	a := newTestManager(t)
	b := newTestManager(t)

	for i := 0; i < 8; i++ {
		a.UpdateVolatilityEstimate(0.05)
	}
	for i := 0; i < 5; i++ {
		b.UpdateVolatilityEstimate(0.01)
	}

	// b 的首次估计不受 a 的平滑状态影响
	assert.InDelta(t, math.Sqrt(0.0001*TradingDays), b.Snapshot().CurrentVolatility, 1e-12)
}

func TestUpdatePortfolioRisk(t *testing.T) {
	m := newTestManager(t)

	returns := []float64{0.01, 0.02, -0.03, -0.01, 0.02, 0.01, -0.02, 0.03, 0.01, -0.01}
	for i, r := range returns {
		m.UpdatePortfolioRisk(r)
		if i < len(returns)-1 {
			assert.Equal(t, 0.0, m.Snapshot().SharpeRatio)
		}
	}

	snap := m.Snapshot()
	mean := stats.Mean(returns)
	std := stats.StdDev(returns)
	assert.InDelta(t, mean/std*math.Sqrt(TradingDays), snap.SharpeRatio, 1e-9)

	// 累计: .01 .03 0 -.01 .01 .02 0 .03 .04 .03 → 峰值 .03 到 -.01，回撤 .04
	assert.InDelta(t, 0.04, snap.MaxDrawdown, 1e-12)
	assert.InDelta(t, math.Min(std*10, 1), snap.PortfolioHeat, 1e-12)
	assert.GreaterOrEqual(t, snap.PortfolioHeat, 0.0)
	assert.LessOrEqual(t, snap.PortfolioHeat, 1.0)
}

func TestUpdatePortfolioRisk_HeatClamped(t *testing.T) {
	m := newTestManager(t)
	for i := 0; i < 12; i++ {
		r := 0.5
		if i%2 == 0 {
			r = -0.5
		}
		m.UpdatePortfolioRisk(r)
	}
	assert.Equal(t, 1.0, m.Snapshot().PortfolioHeat)
}

func TestRegimeAdjustedTargetVol(t *testing.T) {
	m := newTestManager(t)

	assert.InDelta(t, 0.15, m.RegimeAdjustedTargetVol(regime.Normal), 1e-12)
	assert.InDelta(t, 0.1125, m.RegimeAdjustedTargetVol(regime.Stress), 1e-12)
	assert.InDelta(t, 0.075, m.RegimeAdjustedTargetVol(regime.Crisis), 1e-12)
}

func TestApplyRegimeDoesNotCompound(t *testing.T) {
	m := newTestManager(t)

	for i := 0; i < 10; i++ {
		m.ApplyRegime(regime.Crisis)
	}
	assert.InDelta(t, 0.075, m.Snapshot().TargetVolatility, 1e-12)

	m.ApplyRegime(regime.Normal)
	assert.InDelta(t, 0.15, m.Snapshot().TargetVolatility, 1e-12)
}

func TestVolatilityAdjustedSize(t *testing.T) {
	tests := []struct {
		name       string
		base       float64
		currentVol float64
		targetVol  float64
		expected   float64
	}{
		{name: "Equal vols", base: 100, currentVol: 0.2, targetVol: 0.2, expected: 100},
		{name: "Double", base: 100, currentVol: 0.1, targetVol: 0.2, expected: 200},
		{name: "Upper clamp", base: 100, currentVol: 0.01, targetVol: 0.2, expected: 300},
		{name: "Lower clamp", base: 100, currentVol: 1.0, targetVol: 0.1, expected: 30},
		{name: "Invalid vols", base: 100, currentVol: 0, targetVol: 0.2, expected: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, VolatilityAdjustedSize(tt.base, tt.currentVol, tt.targetVol), 1e-9)
		})
	}
}
