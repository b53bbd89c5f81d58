// Package costs decomposes the transaction costs of a pair trade and decides
// whether the trade stays profitable after them.
package costs

import (
	"math"
)

// 默认费率
const (
	DefaultFinancingRate  = 0.001  // 10 bps 日融资成本
	DefaultCommissionRate = 0.0005 // 5 bps 佣金
	DefaultSlippageFactor = 0.0002 // 2 bps 滑点

	// expectedReversion ProfitableAfterCosts 对 z-score 回归幅度的保守估计
	expectedReversion = 0.5
	// sizeImpactFactor EffectiveSpread 的经验冲击系数
	sizeImpactFactor = 0.0001
	// liquidityMultiple 盘口深度至少为所需数量的倍数
	liquidityMultiple = 2.0
)

// Params 成本参数
type Params struct {
	Spread1        float64 `yaml:"spread1" json:"spread1" validate:"gte=0"`
	Spread2        float64 `yaml:"spread2" json:"spread2" validate:"gte=0"`
	Impact1        float64 `yaml:"impact1" json:"impact1" validate:"gte=0"`
	Impact2        float64 `yaml:"impact2" json:"impact2" validate:"gte=0"`
	FinancingRate  float64 `yaml:"financing_rate" json:"financing_rate" validate:"gte=0"`
	CommissionRate float64 `yaml:"commission_rate" json:"commission_rate" validate:"gte=0"`
	SlippageFactor float64 `yaml:"slippage_factor" json:"slippage_factor" validate:"gte=0"`
}

// NewParams 用买卖价差和冲击系数创建参数，其余费率取默认值
func NewParams(spread1, spread2, impact1, impact2 float64) Params {
	return Params{
		Spread1:        spread1,
		Spread2:        spread2,
		Impact1:        impact1,
		Impact2:        impact2,
		FinancingRate:  DefaultFinancingRate,
		CommissionRate: DefaultCommissionRate,
		SlippageFactor: DefaultSlippageFactor,
	}
}

// DefaultParams 默认成本参数
func DefaultParams() Params {
	return NewParams(0.001, 0.001, 0.0005, 0.0005)
}

// PnLAnalysis 成本分解结果
type PnLAnalysis struct {
	TheoreticalPnL   float64 `json:"theoretical_pnl"`
	SpreadCost       float64 `json:"spread_cost"`
	MarketImpactCost float64 `json:"market_impact_cost"`
	FinancingCost    float64 `json:"financing_cost"`
	CommissionCost   float64 `json:"commission_cost"`
	SlippageCost     float64 `json:"slippage_cost"`
	TotalCost        float64 `json:"total_cost"`
	NetPnL           float64 `json:"net_pnl"`
	Profitable       bool    `json:"profitable"`
}

// Model 交易成本模型
// Model is owned by one tracker and is not safe for concurrent use.
type Model struct {
	params Params
	last   PnLAnalysis
}

// NewModel 创建成本模型
func NewModel(params Params) *Model {
	return &Model{params: params}
}

// PnLWithCosts 计算扣除成本后的盈亏
//
//	spread     = (spread1 + spread2) * size
//	impact     = (impact1 + impact2) * sqrt(size)
//	financing  = financingRate * size
//	commission = commissionRate * size * 2 (round trip)
//	slippage   = slippageFactor * size * 2 (round trip)
//
// Negative sizes are treated as 0.
func (m *Model) PnLWithCosts(theoreticalPnL, size float64) PnLAnalysis {
	size = math.Max(size, 0)
	p := m.params

	a := PnLAnalysis{
		TheoreticalPnL:   theoreticalPnL,
		SpreadCost:       (p.Spread1 + p.Spread2) * size,
		MarketImpactCost: (p.Impact1 + p.Impact2) * math.Sqrt(size),
		FinancingCost:    p.FinancingRate * size,
		CommissionCost:   p.CommissionRate * size * 2,
		SlippageCost:     p.SlippageFactor * size * 2,
	}
	a.TotalCost = a.SpreadCost + a.MarketImpactCost + a.FinancingCost + a.CommissionCost + a.SlippageCost
	a.NetPnL = theoreticalPnL - a.TotalCost
	a.Profitable = a.NetPnL > 0

	m.last = a
	return a
}

// ProfitableAfterCosts 按 z-score 回归一半的保守估计判断交易是否有利可图
// It does not replace the stored analysis.
func (m *Model) ProfitableAfterCosts(zScore, size float64) bool {
	last := m.last
	a := m.PnLWithCosts(math.Abs(zScore)*expectedReversion*size, size)
	m.last = last
	return a.Profitable
}

// UpdateQuotes 用最新盘口刷新两条腿的买卖价差
// A leg whose bid is not positive or whose quotes are crossed (ask < bid)
// keeps its stored spread.
func (m *Model) UpdateQuotes(bid1, ask1, bid2, ask2 float64) {
	if validQuote(bid1, ask1) {
		m.params.Spread1 = ask1 - bid1
	}
	if validQuote(bid2, ask2) {
		m.params.Spread2 = ask2 - bid2
	}
}

func validQuote(bid, ask float64) bool {
	return bid > 0 && ask >= bid
}

// Params 返回当前成本参数
func (m *Model) Params() Params { return m.params }

// Last 最近一次的成本分解
func (m *Model) Last() PnLAnalysis { return m.last }

// EffectiveSpread 报价价差加上按数量平方根增长的冲击
func EffectiveSpread(bid, ask, size float64) float64 {
	return ask - bid + math.Sqrt(math.Max(size, 0))*sizeImpactFactor
}

// LiquiditySufficient 盘口两侧深度都至少为所需数量的两倍
func LiquiditySufficient(bidSize, askSize, required float64) bool {
	return bidSize >= required*liquidityMultiple && askSize >= required*liquidityMultiple
}

// ExecutionShortfall 执行价格相对到达价格的偏离成本
func ExecutionShortfall(arrivalPrice, executionPrice, size float64) float64 {
	return math.Abs(executionPrice-arrivalPrice) * size
}
