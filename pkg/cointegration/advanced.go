package cointegration

import (
	"math"
)

// Threshold 门限协整检验
// Regresses spread[t] on spread[t-1] using only the lags whose magnitude exceeds
// threshold. statistic = |β - 1| * sqrt(count).
func Threshold(spread []float64, threshold float64) float64 {
	n := len(spread)
	if n < MinThresholdSamples {
		return 0
	}

	var sumX, sumY, sumXY, sumX2 float64
	count := 0
	for i := 1; i < n; i++ {
		x := spread[i-1]
		if math.Abs(x) <= threshold {
			continue
		}
		y := spread[i]
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
		count++
	}

	if count < MinThresholdPoints {
		return 0
	}

	beta, ok := slope(sumX, sumY, sumXY, sumX2, count)
	if !ok {
		return 0
	}
	return math.Abs(beta-1) * math.Sqrt(float64(count))
}

// Fractional 分数协整检验（R/S 统计量估计 Hurst 指数）
// d = H - 0.5, statistic = |d| * sqrt(n)
func Fractional(price1, price2 []float64) float64 {
	n := len(price1)
	if n != len(price2) || n < MinFractionalSamples {
		return 0
	}

	spread := make([]float64, n)
	var mean float64
	for i := range price1 {
		spread[i] = math.Log(price1[i]) - math.Log(price2[i])
		mean += spread[i]
	}
	mean /= float64(n)

	// 累积离差序列
	var cum, sumSq float64
	maxCum, minCum := math.Inf(-1), math.Inf(1)
	for _, s := range spread {
		dev := s - mean
		cum += dev
		sumSq += dev * dev
		maxCum = math.Max(maxCum, cum)
		minCum = math.Min(minCum, cum)
	}

	std := math.Sqrt(sumSq / float64(n-1))
	var rs float64
	if std > 0 {
		rs = (maxCum - minCum) / std
	}

	hurst := 0.5
	if rs > 0 {
		hurst = math.Log(rs) / math.Log(float64(n))
	}
	return math.Abs(hurst-0.5) * math.Sqrt(float64(n))
}

// ErrorCorrection 误差修正模型检验
// Regresses Δprice1[t] on spread[t-1] to get γ. statistic = |γ| * sqrt(n-1).
func ErrorCorrection(price1, price2, spread []float64) float64 {
	n := len(spread)
	if n < MinErrorCorrectionSamples || len(price1) != n || len(price2) != n {
		return 0
	}

	var sumX, sumY, sumXY, sumX2 float64
	for i := 0; i < n-1; i++ {
		dy := price1[i+1] - price1[i]
		x := spread[i]
		sumX += x
		sumY += dy
		sumXY += x * dy
		sumX2 += x * x
	}

	gamma, ok := slope(sumX, sumY, sumXY, sumX2, n-1)
	if !ok {
		return 0
	}
	return math.Abs(gamma) * math.Sqrt(float64(n-1))
}

// Johansen 简化的两资产 Johansen 迹统计量
// Uses the 2x2 covariance of log returns (n-2 divisor):
//
//	stat = -n * ln(1 - (trace - sqrt(trace² - 4·det)) / 2)
//
// Results that are not finite collapse to 0.
func Johansen(price1, price2 []float64) float64 {
	n := len(price1)
	if n != len(price2) || n < MinJohansenSamples {
		return 0
	}

	m := n - 1
	r1 := make([]float64, m)
	r2 := make([]float64, m)
	var mean1, mean2 float64
	for i := 0; i < m; i++ {
		r1[i] = math.Log(price1[i+1] / price1[i])
		r2[i] = math.Log(price2[i+1] / price2[i])
		mean1 += r1[i]
		mean2 += r2[i]
	}
	mean1 /= float64(m)
	mean2 /= float64(m)

	var cov [2][2]float64
	for i := 0; i < m; i++ {
		d1 := r1[i] - mean1
		d2 := r2[i] - mean2
		cov[0][0] += d1 * d1
		cov[0][1] += d1 * d2
		cov[1][1] += d2 * d2
	}
	div := float64(n - 2)
	cov[0][0] /= div
	cov[0][1] /= div
	cov[1][1] /= div
	cov[1][0] = cov[0][1]

	trace := cov[0][0] + cov[1][1]
	det := cov[0][0]*cov[1][1] - cov[0][1]*cov[1][0]

	stat := -float64(n) * math.Log(1-(trace-math.Sqrt(trace*trace-4*det))/2)
	if math.IsNaN(stat) || math.IsInf(stat, 0) {
		return 0
	}
	return stat
}
