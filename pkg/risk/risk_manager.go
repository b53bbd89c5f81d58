// Package risk provides volatility-targeted position sizing and the running
// risk statistics of a single pair.
package risk

import (
	"fmt"
	"math"

	"github.com/yourusername/quantlink-statarb/pkg/regime"
	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

const (
	// TradingDays 年化使用的交易日数
	TradingDays = 252

	// ewmaDecay 波动率平滑的日衰减因子
	ewmaDecay = 0.94

	minVolatilitySamples = 5
	minPortfolioSamples  = 10

	// 波动率放大倍数的合理范围
	minVolScalar = 0.1
	maxVolScalar = 5.0

	// 信号强度按 3-sigma 归一化
	strengthNorm = 3.0
	minStrength  = 0.1
	maxStrength  = 1.0

	// heatDerateAbove 组合热度超过该值时按 (1 - heat) 缩减仓位
	heatDerateAbove = 0.5
	heatScale       = 10.0

	// VolatilityAdjustedSize 的调整上下限
	maxVolRatio = 3.0
	minVolRatio = 0.3
)

// Config 风控参数
type Config struct {
	TargetVolatility float64 `yaml:"target_volatility" json:"target_volatility" validate:"gt=0,lte=5"`
	ReturnsWindow    int     `yaml:"returns_window" json:"returns_window" validate:"omitempty,gte=5,lte=1048576"`
	MaxPositionLimit float64 `yaml:"max_position_limit" json:"max_position_limit" validate:"gt=0"`
	RiskPerTrade     float64 `yaml:"risk_per_trade" json:"risk_per_trade" validate:"gt=0,lte=1"`
}

// DefaultConfig 默认风控参数：年化目标波动率 15%，单笔风险 2%，最大仓位 100 万
func DefaultConfig() Config {
	return Config{
		TargetVolatility: 0.15,
		ReturnsWindow:    50,
		MaxPositionLimit: 1000000,
		RiskPerTrade:     0.02,
	}
}

// Snapshot 风控状态快照
type Snapshot struct {
	BaseTargetVolatility float64 `json:"base_target_volatility"`
	TargetVolatility     float64 `json:"target_volatility"`
	CurrentVolatility    float64 `json:"current_volatility"`
	VolatilityScalar     float64 `json:"volatility_scalar"`
	PositionSize         float64 `json:"position_size"`
	SharpeRatio          float64 `json:"sharpe_ratio"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	PortfolioHeat        float64 `json:"portfolio_heat"`
}

// Manager 波动率目标仓位管理
// Manager is owned by one tracker and is not safe for concurrent use.
type Manager struct {
	config Config

	baseTarget   float64 // 配置的目标波动率
	target       float64 // 经状态调整后的目标波动率
	current      float64 // 当前年化波动率，初始等于目标
	volScalar    float64
	positionSize float64

	sharpe      float64
	maxDrawdown float64
	heat        float64

	returns        *stats.Window
	squaredReturns *stats.Window

	// 上一次平滑后的波动率，0 表示尚未平滑
	prevVolatility float64
}

// NewManager creates a risk manager. A nil config uses DefaultConfig.
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		c := DefaultConfig()
		config = &c
	}
	if config.TargetVolatility <= 0 {
		return nil, fmt.Errorf("risk: target volatility must be positive, got %v", config.TargetVolatility)
	}

	returns, err := stats.NewWindow(config.ReturnsWindow)
	if err != nil {
		return nil, fmt.Errorf("risk returns window: %w", err)
	}
	squared, err := stats.NewWindow(config.ReturnsWindow)
	if err != nil {
		return nil, fmt.Errorf("risk squared returns window: %w", err)
	}

	return &Manager{
		config:         *config,
		baseTarget:     config.TargetVolatility,
		target:         config.TargetVolatility,
		current:        config.TargetVolatility,
		volScalar:      1.0,
		returns:        returns,
		squaredReturns: squared,
	}, nil
}

// SizePosition 计算波动率目标仓位
//
//	base     = accountSize * riskPerTrade
//	scalar   = target / current (1.0 when current <= 0)
//	strength = clamp(|signal| / 3, 0.1, 1.0)
//	size     = base * scalar * strength, capped at the position limit and
//	           derated by (1 - heat) when heat > 0.5
//
// When the raw scalar leaves [0.1, 5.0] the size is recomputed from the
// clamped scalar, replacing the derated value; the position limit still holds.
func (m *Manager) SizePosition(signalStrength, accountSize float64) float64 {
	if accountSize <= 0 {
		return 0
	}

	base := accountSize * m.config.RiskPerTrade
	if m.current > 0 {
		m.volScalar = m.target / m.current
	} else {
		m.volScalar = 1.0
	}

	strength := stats.Clamp(math.Abs(signalStrength)/strengthNorm, minStrength, maxStrength)
	size := base * m.volScalar * strength

	if size > m.config.MaxPositionLimit {
		size = m.config.MaxPositionLimit
	}
	if m.heat > heatDerateAbove {
		size *= 1 - m.heat
	}

	if m.volScalar > maxVolScalar || m.volScalar < minVolScalar {
		size = base * stats.Clamp(m.volScalar, minVolScalar, maxVolScalar) * strength
		size = math.Min(size, m.config.MaxPositionLimit)
	}

	m.positionSize = size
	return size
}

// UpdateVolatilityEstimate 用最新收益率更新年化波动率估计
// Once 5 squared returns exist, vol = sqrt(mean(r²) * 252) smoothed by an
// EWMA (decay 0.94) against this manager's previous estimate.
func (m *Manager) UpdateVolatilityEstimate(tradeReturn float64) {
	m.returns.Push(tradeReturn)
	m.squaredReturns.Push(tradeReturn * tradeReturn)

	if m.squaredReturns.Len() < minVolatilitySamples {
		return
	}

	m.current = math.Sqrt(m.squaredReturns.Mean() * TradingDays)
	if m.prevVolatility > 0 {
		m.current = ewmaDecay*m.prevVolatility + (1-ewmaDecay)*m.current
	}
	m.prevVolatility = m.current
}

// UpdatePortfolioRisk 更新 Sharpe、最大回撤和组合热度
func (m *Manager) UpdatePortfolioRisk(tradeReturn float64) {
	m.returns.Push(tradeReturn)

	n := m.returns.Len()
	if n < minPortfolioSamples {
		return
	}

	mean := m.returns.Mean()
	std := m.returns.StdDev()
	if std > 0 {
		m.sharpe = mean / std * math.Sqrt(TradingDays)
	}

	// 最大回撤：累计收益相对历史峰值的最大回落
	peak := math.Inf(-1)
	var cumulative, maxDD float64
	for i := 0; i < n; i++ {
		cumulative += m.returns.At(i)
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDD {
			maxDD = dd
		}
	}
	m.maxDrawdown = maxDD

	m.heat = stats.Clamp(std*heatScale, 0, 1)
}

// RegimeAdjustedTargetVol 按市场状态调整目标波动率
// Stress ×0.75, Crisis ×0.5, always relative to the configured target.
func (m *Manager) RegimeAdjustedTargetVol(r regime.Regime) float64 {
	switch r {
	case regime.Normal:
		return m.baseTarget
	case regime.Stress:
		return m.baseTarget * 0.75
	case regime.Crisis:
		return m.baseTarget * 0.5
	default:
		return m.baseTarget
	}
}

// ApplyRegime sets the effective target volatility for the regime. Repeated
// calls do not compound.
func (m *Manager) ApplyRegime(r regime.Regime) {
	m.target = m.RegimeAdjustedTargetVol(r)
}

// VolatilityAdjustedSize 按 target/current 缩放基础仓位，调整倍数限制在 [0.3, 3.0]
func VolatilityAdjustedSize(baseSize, currentVol, targetVol float64) float64 {
	if currentVol <= 0 || targetVol <= 0 {
		return baseSize
	}
	return baseSize * stats.Clamp(targetVol/currentVol, minVolRatio, maxVolRatio)
}

// SetCurrentVolatility 直接设置当前波动率（外部估计或测试场景）
func (m *Manager) SetCurrentVolatility(v float64) { m.current = v }

// SetPortfolioHeat overrides the heat, e.g. with a portfolio-wide value.
func (m *Manager) SetPortfolioHeat(h float64) { m.heat = stats.Clamp(h, 0, 1) }

// PositionSize 最近一次计算的仓位
func (m *Manager) PositionSize() float64 { return m.positionSize }

// Snapshot 返回当前风控状态
func (m *Manager) Snapshot() Snapshot {
	return Snapshot{
		BaseTargetVolatility: m.baseTarget,
		TargetVolatility:     m.target,
		CurrentVolatility:    m.current,
		VolatilityScalar:     m.volScalar,
		PositionSize:         m.positionSize,
		SharpeRatio:          m.sharpe,
		MaxDrawdown:          m.maxDrawdown,
		PortfolioHeat:        m.heat,
	}
}

// Config 返回风控参数副本
func (m *Manager) Config() Config { return m.config }
