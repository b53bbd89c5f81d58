package signal

import (
	"github.com/yourusername/quantlink-statarb/pkg/regime"
)

// 基础进出场阈值（z-score）
const (
	BaseEntryThreshold = 2.0
	BaseExitThreshold  = 0.5
	MinEntryThreshold  = 0.5
	MinExitThreshold   = 0.1

	// normalVolatility 波动率因子以 2% 日波动归一化
	normalVolatility = 0.02
	// normalHalfLife 半衰期因子以 20 个周期归一化
	normalHalfLife = 20.0
)

// nextPosition 头寸状态机
//
//	Flat:  z > entry → Short, z < -entry → Long
//	Long:  z > -exit → Flat
//	Short: z <  exit → Flat
//
// Any other case holds the current position.
func nextPosition(current Position, z, entry, exit float64) Position {
	switch current {
	case Flat:
		if z > entry {
			return Short
		}
		if z < -entry {
			return Long
		}
		return Flat
	case Long:
		if z > -exit {
			return Flat
		}
		return Long
	case Short:
		if z < exit {
			return Flat
		}
		return Short
	default:
		return Flat
	}
}

// regimeMultipliers 各市场状态的进出场阈值倍数
func regimeMultipliers(r regime.Regime) (entry, exit float64) {
	switch r {
	case regime.Normal:
		return 1.0, 1.0
	case regime.Stress:
		return 1.5, 1.2
	case regime.Crisis:
		return 2.5, 2.0
	default:
		return 1.0, 1.0
	}
}

// dynamicThresholds 计算动态进出场阈值
// The base thresholds are scaled by the regime multipliers, the realized
// volatility factor and, when halfLife > 0, by 20/halfLife, then floored.
func dynamicThresholds(r regime.Regime, volFactor, halfLife float64) (entry, exit float64) {
	em, xm := regimeMultipliers(r)
	entry = BaseEntryThreshold * em * volFactor
	exit = BaseExitThreshold * xm * volFactor

	if halfLife > 0 {
		hl := normalHalfLife / halfLife
		entry *= hl
		exit *= hl
	}

	if entry < MinEntryThreshold {
		entry = MinEntryThreshold
	}
	if exit < MinExitThreshold {
		exit = MinExitThreshold
	}
	return entry, exit
}
