// Package cointegration implements the simplified mean-reversion statistics
// used to qualify a pair.
//
// Every estimator returns 0.0 below its minimum sample count. A zero result
// means "untested" and must not be read as "not cointegrated"; callers compare
// non-zero statistics against a critical value with IsCointegrated.
package cointegration

import (
	"math"

	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

// 各检验的最小样本数
const (
	MinEngleGrangerSamples    = 10
	MinThresholdSamples       = 10
	MinThresholdPoints        = 5
	MinFractionalSamples      = 30
	MinErrorCorrectionSamples = 15
	MinJohansenSamples        = 20
	degenerateRegressionBelow = 1e-10
)

// EngleGranger 简化的 Engle-Granger 检验
// y 对 x 做 OLS 回归，statistic = mean(residual) / std(residual) * sqrt(n)。
// This is a stationarity proxy, not an ADF test.
func EngleGranger(y, x []float64) float64 {
	n := len(x)
	if n != len(y) || n < MinEngleGrangerSamples {
		return 0
	}

	beta := stats.OLSSlope(y, x)
	alpha := stats.Mean(y) - beta*stats.Mean(x)

	residuals := make([]float64, n)
	for i := range x {
		residuals[i] = y[i] - (alpha + beta*x[i])
	}

	s := stats.Summarize(residuals)
	if s.Std == 0 {
		return 0
	}
	return s.Mean / s.Std * math.Sqrt(float64(n))
}

// IsCointegrated 判定规则：statistic < critical 时拒绝原假设
func IsCointegrated(statistic, critical float64) bool {
	return statistic < critical
}

// slope 计算 y 对 x 的回归斜率，分母退化时 ok=false
func slope(sumX, sumY, sumXY, sumX2 float64, n int) (float64, bool) {
	nf := float64(n)
	den := nf*sumX2 - sumX*sumX
	if math.Abs(den) < degenerateRegressionBelow {
		return 0, false
	}
	return (nf*sumXY - sumX*sumY) / den, true
}
