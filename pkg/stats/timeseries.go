// Package stats provides the rolling window and the statistical kernel used by
// the pair signal pipeline.
//
// Every function resolves degenerate input to a documented fallback instead of
// returning an error: empty input yields 0, zero variance yields 0, and so on.
package stats

import (
	"math"
)

// degenerateDenominator 回归分母小于该值时视为 x 无方差
const degenerateDenominator = 1e-10

// Summary 窗口统计结果
type Summary struct {
	Mean     float64
	Std      float64
	Variance float64
	Count    int
}

// Summarize 一次遍历计算均值、样本方差和标准差
func Summarize(data []float64) Summary {
	n := len(data)
	if n == 0 {
		return Summary{}
	}
	mean := Mean(data)
	if n == 1 {
		return Summary{Mean: mean, Count: 1}
	}

	var variance float64
	for _, val := range data {
		diff := val - mean
		variance += diff * diff
	}
	variance /= float64(n - 1)

	return Summary{
		Mean:     mean,
		Std:      math.Sqrt(variance),
		Variance: variance,
		Count:    n,
	}
}

// Mean 计算均值
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}

	var sum float64
	for _, val := range data {
		sum += val
	}
	return sum / float64(len(data))
}

// Variance 计算样本方差（n-1），数据点不足 2 个时返回 0
func Variance(data []float64) float64 {
	return Summarize(data).Variance
}

// StdDev 计算样本标准差
func StdDev(data []float64) float64 {
	return Summarize(data).Std
}

// ZScore 计算 Z-Score
// z = (x - μ) / σ, σ == 0 时返回 0
func ZScore(value, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	return (value - mean) / std
}

// Correlation 计算 Pearson 相关系数
// r = Σ[(xi - x̄)(yi - ȳ)] / sqrt[Σ(xi - x̄)² * Σ(yi - ȳ)²]
// Returns 0 unless both series have the same length ≥ 2 and non-zero variance.
func Correlation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0
	}

	meanX := Mean(x)
	meanY := Mean(y)

	var numerator, varX, varY float64
	for i := range x {
		diffX := x[i] - meanX
		diffY := y[i] - meanY
		numerator += diffX * diffY
		varX += diffX * diffX
		varY += diffY * diffY
	}

	if varX == 0 || varY == 0 {
		return 0
	}

	return numerator / math.Sqrt(varX*varY)
}

// Covariance 计算样本协方差
// cov(X,Y) = Σ[(xi - x̄)(yi - ȳ)] / (n - 1)
func Covariance(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0
	}

	meanX := Mean(x)
	meanY := Mean(y)

	var covariance float64
	for i := range x {
		covariance += (x[i] - meanX) * (y[i] - meanY)
	}

	return covariance / float64(len(x)-1)
}

// OLSSlope 计算 y 对 x 的最小二乘斜率
// Returns 0 when the lengths differ, fewer than 2 points exist, or x has
// (near-)zero variance.
func OLSSlope(y, x []float64) float64 {
	slope, _, ok := regress(y, x)
	if !ok {
		return 0
	}
	return slope
}

// LinearRegression 计算线性回归 y = slope * x + intercept
// When x is degenerate the slope is 0 and the intercept is mean(y).
func LinearRegression(x, y []float64) (slope, intercept float64) {
	slope, intercept, ok := regress(y, x)
	if !ok {
		return 0, Mean(y)
	}
	return slope, intercept
}

func regress(y, x []float64) (slope, intercept float64, ok bool) {
	n := len(x)
	if n != len(y) || n < 2 {
		return 0, 0, false
	}

	var sumX, sumY, sumXY, sumX2 float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumX2 += x[i] * x[i]
	}

	nf := float64(n)
	denominator := nf*sumX2 - sumX*sumX
	if math.Abs(denominator) < degenerateDenominator {
		return 0, 0, false
	}

	slope = (nf*sumXY - sumX*sumY) / denominator
	intercept = sumY/nf - slope*sumX/nf
	return slope, intercept, true
}

// LogReturns 计算对数收益率序列，长度为 len(prices)-1
// Non-positive prices produce a 0 return for the affected step.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i] > 0 && prices[i-1] > 0 {
			out[i-1] = math.Log(prices[i] / prices[i-1])
		}
	}
	return out
}

// Clamp 将 v 限制在 [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
