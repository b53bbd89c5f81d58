// Package regime classifies the market state of a pair into Normal, Stress or
// Crisis with a three-state Bayesian filter over volatility and correlation
// stability.
package regime

import (
	"fmt"
	"math"

	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

// Regime 市场状态
type Regime int

const (
	Normal Regime = iota
	Stress
	Crisis
)

// NumRegimes 状态数量
const NumRegimes = 3

// String returns the string representation of the regime
func (r Regime) String() string {
	switch r {
	case Normal:
		return "normal"
	case Stress:
		return "stress"
	case Crisis:
		return "crisis"
	default:
		return fmt.Sprintf("regime(%d)", int(r))
	}
}

// Matrix3 3x3 状态转移矩阵，行为起始状态
type Matrix3 [NumRegimes][NumRegimes]float64

// Row 返回起始状态 from 的转移概率
func (m *Matrix3) Row(from Regime) [NumRegimes]float64 {
	return m[from]
}

// DefaultTransition 简化 HMM 转移矩阵
var DefaultTransition = Matrix3{
	Normal: {0.95, 0.04, 0.01},
	Stress: {0.60, 0.30, 0.10},
	Crisis: {0.20, 0.50, 0.30},
}

// DefaultPrior 初始状态概率
var DefaultPrior = [NumRegimes]float64{0.8, 0.15, 0.05}

const (
	// MinVolatilitySamples 更新状态前所需的最少波动率样本
	MinVolatilitySamples = 10

	crisisVolPercentile = 0.95
	crisisCorrStd       = 0.3
	stressVolPercentile = 0.80
	stressCorrStd       = 0.15

	// recentChangeTicks RegimeChanged 判定"最近"的 tick 数
	recentChangeTicks = 5
)

// Classify 根据波动率分位和相关性稳定度给出候选状态
func Classify(volPercentile, corrStd float64) Regime {
	switch {
	case volPercentile > crisisVolPercentile || corrStd > crisisCorrStd:
		return Crisis
	case volPercentile > stressVolPercentile || corrStd > stressCorrStd:
		return Stress
	default:
		return Normal
	}
}

// Evidence 候选状态对应的证据权重
func Evidence(candidate Regime, volPercentile float64) float64 {
	switch candidate {
	case Crisis:
		return volPercentile * 2.0
	case Stress:
		return volPercentile * 1.5
	case Normal:
		return 1.0
	default:
		return 1.0
	}
}

// Detector 状态检测器
// One detector belongs to one pair tracker.
type Detector struct {
	volatility  *stats.Window
	correlation *stats.Window

	transition    Matrix3
	probabilities [NumRegimes]float64
	current       Regime
	candidate     Regime
	confidence    float64

	ticksSinceChange int
	volPercentile    float64
	corrStd          float64

	// 上一次的价格，初始为 0，首个 tick 不产生波动率样本
	lastPrice1 float64
	lastPrice2 float64
}

// NewDetector 创建状态检测器，window 为波动率与相关性缓冲区容量
func NewDetector(window int) (*Detector, error) {
	vol, err := stats.NewWindow(window)
	if err != nil {
		return nil, fmt.Errorf("regime volatility window: %w", err)
	}
	corr, err := stats.NewWindow(window)
	if err != nil {
		return nil, fmt.Errorf("regime correlation window: %w", err)
	}

	return &Detector{
		volatility:    vol,
		correlation:   corr,
		transition:    DefaultTransition,
		probabilities: DefaultPrior,
		current:       Normal,
		candidate:     Normal,
		confidence:    1.0,
	}, nil
}

// Update 用最新价格和相关系数更新状态，返回状态是否发生切换
func (d *Detector) Update(price1, price2, corr float64) bool {
	if d.lastPrice1 > 0 && d.lastPrice2 > 0 && price1 > 0 && price2 > 0 {
		r1 := math.Log(price1 / d.lastPrice1)
		r2 := math.Log(price2 / d.lastPrice2)
		d.volatility.Push(math.Sqrt(r1*r1 + r2*r2))
	}
	d.correlation.Push(corr)
	d.lastPrice1 = price1
	d.lastPrice2 = price2

	n := d.volatility.Len()
	if n < MinVolatilitySamples {
		return false
	}

	// 当前均值波动率的分位（严格小于）
	meanVol := d.volatility.Mean()
	below := 0
	for i := 0; i < n; i++ {
		if d.volatility.At(i) < meanVol {
			below++
		}
	}
	d.volPercentile = float64(below) / float64(n)
	d.corrStd = d.correlation.StdDev()

	d.candidate = Classify(d.volPercentile, d.corrStd)
	evidence := Evidence(d.candidate, d.volPercentile)

	var posterior [NumRegimes]float64
	var total float64
	row := d.transition.Row(d.current)
	for i := range posterior {
		posterior[i] = row[i] * evidence
		total += posterior[i]
	}
	if total > 0 {
		for i := range posterior {
			d.probabilities[i] = posterior[i] / total
		}
	}

	best := Normal
	for r := Stress; r < NumRegimes; r++ {
		if d.probabilities[r] > d.probabilities[best] {
			best = r
		}
	}

	changed := best != d.current
	if changed {
		d.ticksSinceChange = 0
		d.current = best
	} else {
		d.ticksSinceChange++
	}
	d.confidence = d.probabilities[best]
	return changed
}

// RegimeChanged 最近发生过切换且置信度高于阈值
func (d *Detector) RegimeChanged(threshold float64) bool {
	return d.ticksSinceChange < recentChangeTicks && d.confidence > threshold
}

// Current 当前状态
func (d *Detector) Current() Regime { return d.current }

// Candidate 最近一次分类得到的候选状态
func (d *Detector) Candidate() Regime { return d.candidate }

// Probabilities 状态概率分布副本
func (d *Detector) Probabilities() [NumRegimes]float64 { return d.probabilities }

// Confidence 最大后验概率
func (d *Detector) Confidence() float64 { return d.confidence }

// TicksSinceChange 距上次切换的 tick 数
func (d *Detector) TicksSinceChange() int { return d.ticksSinceChange }

// Indicators returns the volatility percentile and correlation std-dev of the
// last classification.
func (d *Detector) Indicators() (volPercentile, corrStd float64) {
	return d.volPercentile, d.corrStd
}

// VolatilitySamples 已缓存的波动率样本数
func (d *Detector) VolatilitySamples() int { return d.volatility.Len() }
