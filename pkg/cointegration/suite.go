package cointegration

import (
	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

// DefaultThresholdBand 门限检验默认的 |lag| 下限
const DefaultThresholdBand = 0.01

// Report 一次完整检验的结果
type Report struct {
	EngleGranger    float64 `json:"engle_granger"`
	Johansen        float64 `json:"johansen"`
	Threshold       float64 `json:"threshold"`
	Fractional      float64 `json:"fractional"`
	ErrorCorrection float64 `json:"error_correction"`
	Samples         int     `json:"samples"`
}

// Suite runs all five estimators over a pair's windows. It keeps scratch
// buffers between runs and is not safe for concurrent use.
type Suite struct {
	ThresholdBand float64

	p1, p2, spread []float64
}

// NewSuite 创建检验套件
func NewSuite(thresholdBand float64) *Suite {
	if thresholdBand <= 0 {
		thresholdBand = DefaultThresholdBand
	}
	return &Suite{ThresholdBand: thresholdBand}
}

// Run 对价格窗口和价差窗口执行全部检验
// Engle-Granger regresses price1 on price2.
func (s *Suite) Run(price1, price2, spread *stats.Window) Report {
	s.p1 = price1.AppendTo(s.p1[:0])
	s.p2 = price2.AppendTo(s.p2[:0])
	s.spread = spread.AppendTo(s.spread[:0])

	return Report{
		EngleGranger:    EngleGranger(s.p1, s.p2),
		Johansen:        Johansen(s.p1, s.p2),
		Threshold:       Threshold(s.spread, s.ThresholdBand),
		Fractional:      Fractional(s.p1, s.p2),
		ErrorCorrection: ErrorCorrection(s.p1, s.p2, s.spread),
		Samples:         len(s.p1),
	}
}
