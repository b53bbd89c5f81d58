// Package signal turns a stream of paired prices into mean-reversion trading
// signals. A Tracker owns every rolling window and sub-model of one pair and
// emits one PairSignal per tick.
package signal

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/quantlink-statarb/pkg/costs"
	"github.com/yourusername/quantlink-statarb/pkg/regime"
	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

// Position 价差头寸方向
type Position int

const (
	// Short 做空价差：卖 leg1，买 leg2
	Short Position = -1
	// Flat 空仓
	Flat Position = 0
	// Long 做多价差：买 leg1，卖 leg2
	Long Position = 1
)

// String returns the string representation of the position
func (p Position) String() string {
	switch p {
	case Short:
		return "SHORT"
	case Flat:
		return "FLAT"
	case Long:
		return "LONG"
	default:
		return fmt.Sprintf("POSITION(%d)", int(p))
	}
}

// SpreadType 价差计算方式
type SpreadType string

const (
	// SpreadTypeLog 对数 spread: log(price1) - log(price2)
	SpreadTypeLog SpreadType = "log"

	// SpreadTypeDifference 差价 spread: price1 - hedgeRatio * price2
	SpreadTypeDifference SpreadType = "difference"
)

// Quotes 两条腿的最优买卖报价
type Quotes struct {
	Bid1 float64 `json:"bid1"`
	Ask1 float64 `json:"ask1"`
	Bid2 float64 `json:"bid2"`
	Ask2 float64 `json:"ask2"`
}

// Tick 一次价格更新
type Tick struct {
	Price1    float64 `json:"price1"`
	Price2    float64 `json:"price2"`
	Timestamp int64   `json:"timestamp_us"` // 微秒，原样写入输出信号
	Quotes    *Quotes `json:"quotes,omitempty"`
}

// PairSignal 单个 tick 的输出信号
type PairSignal struct {
	Spread            float64           `json:"spread"`
	SpreadType        SpreadType        `json:"spread_type"`
	ZScore            float64           `json:"z_score"`
	Correlation       float64           `json:"correlation"`
	HedgeRatio        float64           `json:"hedge_ratio"`
	HalfLife          float64           `json:"half_life"`
	EntryThreshold    float64           `json:"entry_threshold"`
	ExitThreshold     float64           `json:"exit_threshold"`
	Signal            Position          `json:"signal"`
	Vetoed            bool              `json:"vetoed"`
	Regime            regime.Regime     `json:"regime"`
	PositionSize      float64           `json:"position_size"`
	PnL               costs.PnLAnalysis `json:"pnl"`
	CointegrationStat float64           `json:"cointegration_stat"`
	Timestamp         int64             `json:"timestamp_us"`
}

// Scorer 外部特征打分器，对价差窗口给出辅助 z-score
type Scorer interface {
	Score(w *stats.Window) float64
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(w *stats.Window) float64

// Score calls f(w).
func (f ScorerFunc) Score(w *stats.Window) float64 { return f(w) }

// Event 每个 tick 处理完成后通知 Observer 的内容
type Event struct {
	Tracker       string
	TrackerID     uuid.UUID
	Signal        PairSignal
	PrevRegime    regime.Regime
	RegimeChanged bool
	Elapsed       time.Duration
}

// Observer receives one Event per processed tick. Implementations must not
// call back into the tracker.
type Observer interface {
	ObserveSignal(ev Event)
}

// Observers fans one event out to several observers in order.
type Observers []Observer

// ObserveSignal implements Observer.
func (obs Observers) ObserveSignal(ev Event) {
	for _, o := range obs {
		if o != nil {
			o.ObserveSignal(ev)
		}
	}
}
