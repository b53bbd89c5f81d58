// Package hedge estimates the dynamic hedge ratio of a pair and the half-life
// of its spread's mean reversion.
package hedge

import (
	"math"

	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

const (
	// DefaultRatio 数据不足时使用 1:1 对冲
	DefaultRatio = 1.0
	// MinRatio / MaxRatio 对冲比例的合理范围
	MinRatio = 0.1
	MaxRatio = 5.0
	// MinLookback 最小回看窗口
	MinLookback = 5
	// DefaultLookback 追踪器默认使用的回看窗口
	DefaultLookback = 20

	// DefaultHalfLife 非均值回归时的默认半衰期
	DefaultHalfLife = 20.0
	MinHalfLife     = 1.0
	MaxHalfLife     = 100.0
	// MinHalfLifeSamples 拟合 AR(1) 所需的最少样本
	MinHalfLifeSamples = 10

	minReturnVariance = 1e-8
)

// Ratio 计算最近 lookback 个价格对数收益率的 OLS beta
// beta = cov(r1, r2) / var(r2), clamped to [MinRatio, MaxRatio].
// Returns DefaultRatio when the windows differ in size, either window holds
// fewer than lookback prices, or lookback < MinLookback.
func Ratio(price1, price2 *stats.Window, lookback int) float64 {
	n := price1.Len()
	if n != price2.Len() || n < lookback || lookback < MinLookback {
		return DefaultRatio
	}

	start := n - lookback
	m := lookback - 1
	var mean1, mean2 float64
	r1 := make([]float64, m)
	r2 := make([]float64, m)
	for i := 0; i < m; i++ {
		r1[i] = math.Log(price1.At(start+i+1) / price1.At(start+i))
		r2[i] = math.Log(price2.At(start+i+1) / price2.At(start+i))
		mean1 += r1[i]
		mean2 += r2[i]
	}
	mean1 /= float64(m)
	mean2 /= float64(m)

	var cov, var2 float64
	for i := 0; i < m; i++ {
		d1 := r1[i] - mean1
		d2 := r2[i] - mean2
		cov += d1 * d2
		var2 += d2 * d2
	}

	ratio := DefaultRatio
	if var2 > minReturnVariance {
		ratio = cov / var2
	}
	return stats.Clamp(ratio, MinRatio, MaxRatio)
}

// HalfLife 通过 AR(1) 拟合 spread[t] = α + β·spread[t-1] 估计半衰期
// half-life = -ln(2) / ln(β), clamped to [MinHalfLife, MaxHalfLife].
// β outside (0, 1), a degenerate regression, or fewer than
// MinHalfLifeSamples points yield DefaultHalfLife.
func HalfLife(spread *stats.Window) float64 {
	n := spread.Len()
	if n < MinHalfLifeSamples {
		return DefaultHalfLife
	}

	lagged := make([]float64, n-1)
	current := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		lagged[i] = spread.At(i)
		current[i] = spread.At(i + 1)
	}

	beta := stats.OLSSlope(current, lagged)
	if beta <= 0 || beta >= 1 {
		return DefaultHalfLife
	}
	return stats.Clamp(-math.Ln2/math.Log(beta), MinHalfLife, MaxHalfLife)
}
