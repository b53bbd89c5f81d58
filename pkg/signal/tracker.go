package signal

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yourusername/quantlink-statarb/pkg/cointegration"
	"github.com/yourusername/quantlink-statarb/pkg/costs"
	"github.com/yourusername/quantlink-statarb/pkg/hedge"
	"github.com/yourusername/quantlink-statarb/pkg/regime"
	"github.com/yourusername/quantlink-statarb/pkg/risk"
	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

const (
	// scorerMinSamples 外部打分器至少需要的价差样本数
	scorerMinSamples = 10
	scorerWeight     = 0.7

	// volFactorMinSamples 平方收益样本数超过该值才启用波动率因子
	volFactorMinSamples = 5
	// halfLifeMinSamples 价差样本数超过该值才启用半衰期因子
	halfLifeMinSamples = 10
	// cointegrationMinSamples 价格样本达到该值后输出 Johansen 统计量
	cointegrationMinSamples = 30

	// expectedCapture 成本门限使用的理论收益比例：|z| * 0.3 * size
	expectedCapture = 0.3
)

// Stats 追踪器当前派生指标
type Stats struct {
	Samples        int        `json:"samples"`
	Spread         float64    `json:"spread"`
	SpreadMean     float64    `json:"spread_mean"`
	SpreadStd      float64    `json:"spread_std"`
	ZScore         float64    `json:"z_score"`
	Correlation    float64    `json:"correlation"`
	HedgeRatio     float64    `json:"hedge_ratio"`
	HalfLife       float64    `json:"half_life"`
	EntryThreshold float64    `json:"entry_threshold"`
	ExitThreshold  float64    `json:"exit_threshold"`
	Position       Position   `json:"position"`
	SpreadType     SpreadType `json:"spread_type"`
	LastUpdate     int64      `json:"last_update_us"`
	ClosedTrades   int        `json:"closed_trades"`
	RealizedReturn float64    `json:"realized_return"`
}

// Option 追踪器可选项
type Option func(*Tracker)

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithScorer 设置外部打分器
func WithScorer(s Scorer) Option {
	return func(t *Tracker) { t.scorer = s }
}

// WithObserver 设置每 tick 的观察者
func WithObserver(o Observer) Option {
	return func(t *Tracker) { t.observer = o }
}

// WithName 设置追踪器名称，通常为 "symbol1/symbol2"
func WithName(name string) Option {
	return func(t *Tracker) { t.name = name }
}

// WithID 覆盖自动生成的实例 ID
func WithID(id uuid.UUID) Option {
	return func(t *Tracker) { t.id = id }
}

// Tracker 配对追踪器
// 持有一个价差对的全部滚动窗口、子模型和头寸状态。
type Tracker struct {
	id       uuid.UUID
	name     string
	config   Config
	logger   zerolog.Logger
	scorer   Scorer
	observer Observer

	// Rolling windows
	price1      *stats.Window
	price2      *stats.Window
	spread      *stats.Window
	hedgeRatios *stats.Window
	sqReturns1  *stats.Window
	sqReturns2  *stats.Window

	// Sub-models
	detector *regime.Detector // nil when regime detection is disabled
	risk     *risk.Manager
	costs    *costs.Model
	suite    *cointegration.Suite

	// Current state
	position    Position
	spreadType  SpreadType
	hedgeRatio  float64
	halfLife    float64
	current     float64
	mean        float64
	std         float64
	zScore      float64
	correlation float64
	entry       float64
	exit        float64
	lastSignal  PairSignal
	lastUpdate  int64

	// 当前持仓的开仓价差与已实现收益
	entrySpread     float64
	entrySpreadType SpreadType
	entryScale      float64
	closedTrades    int
	realizedReturn  float64

	scratch1 []float64
	scratch2 []float64

	mu sync.RWMutex
}

// NewTracker 创建配对追踪器
func NewTracker(cfg Config, opts ...Option) (*Tracker, error) {
	if cfg.Risk.ReturnsWindow == 0 {
		cfg.Risk.ReturnsWindow = cfg.WindowSize
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Tracker{
		id:         uuid.New(),
		config:     cfg,
		logger:     zerolog.Nop(),
		position:   Flat,
		spreadType: SpreadTypeLog,
		hedgeRatio: hedge.DefaultRatio,
		entry:      BaseEntryThreshold,
		exit:       BaseExitThreshold,
		costs:      costs.NewModel(cfg.Costs),
		suite:      cointegration.NewSuite(cfg.ThresholdBand),
	}

	windows := []**stats.Window{&t.price1, &t.price2, &t.spread, &t.hedgeRatios, &t.sqReturns1, &t.sqReturns2}
	for _, w := range windows {
		win, err := stats.NewWindow(cfg.WindowSize)
		if err != nil {
			return nil, configError(err)
		}
		*w = win
	}

	rm, err := risk.NewManager(&cfg.Risk)
	if err != nil {
		return nil, configError(err)
	}
	t.risk = rm

	if cfg.Features.RegimeDetection {
		d, err := regime.NewDetector(cfg.regimeWindow())
		if err != nil {
			return nil, configError(err)
		}
		t.detector = d
	}

	for _, opt := range opts {
		opt(t)
	}
	if t.name == "" {
		t.name = t.id.String()
	}
	t.logger = t.logger.With().Str("tracker", t.name).Str("tracker_id", t.id.String()).Logger()

	return t, nil
}

// Update 处理一个 tick 并输出信号
// A tick with a non-positive or non-finite price is rejected with
// ErrInvalidPrice and leaves the tracker untouched.
func (t *Tracker) Update(tick Tick) (PairSignal, error) {
	if !validPrice(tick.Price1) || !validPrice(tick.Price2) {
		return PairSignal{}, fmt.Errorf("%w: price1=%v price2=%v", ErrInvalidPrice, tick.Price1, tick.Price2)
	}

	start := time.Now()

	t.mu.Lock()
	sig, prev, changed := t.updateLocked(tick)
	observer := t.observer
	name := t.name
	t.mu.Unlock()

	if observer != nil {
		observer.ObserveSignal(Event{
			Tracker:       name,
			TrackerID:     t.id,
			Signal:        sig,
			PrevRegime:    prev,
			RegimeChanged: changed,
			Elapsed:       time.Since(start),
		})
	}
	return sig, nil
}

func (t *Tracker) updateLocked(tick Tick) (PairSignal, regime.Regime, bool) {
	cfg := &t.config

	// 1. 价格入窗
	t.price1.Push(tick.Price1)
	t.price2.Push(tick.Price2)

	// 2. 对冲比率与价差
	if cfg.Features.DynamicHedging && t.price1.Len() >= cfg.HedgeLookback {
		t.hedgeRatio = hedge.Ratio(t.price1, t.price2, cfg.HedgeLookback)
		t.hedgeRatios.Push(t.hedgeRatio)
		t.spreadType = SpreadTypeDifference
		t.current = tick.Price1 - t.hedgeRatio*tick.Price2
	} else {
		t.hedgeRatio = hedge.DefaultRatio
		t.spreadType = SpreadTypeLog
		t.current = math.Log(tick.Price1) - math.Log(tick.Price2)
	}

	// 3. 价差、平方收益与统计量
	prevSpread, hasPrev := t.spread.Last()
	t.spread.Push(t.current)

	if n := t.price1.Len(); n >= 2 {
		r1 := math.Log(tick.Price1 / t.price1.At(n-2))
		r2 := math.Log(tick.Price2 / t.price2.At(n-2))
		t.sqReturns1.Push(r1 * r1)
		t.sqReturns2.Push(r2 * r2)
	}

	t.mean = t.spread.Mean()
	t.std = t.spread.StdDev()
	t.correlation = stats.CorrelationOf(t.price1, t.price2)

	// 4. 市场状态
	current := regime.Normal
	prevRegime := regime.Normal
	changed := false
	if t.detector != nil {
		prevRegime = t.detector.Current()
		changed = t.detector.Update(tick.Price1, tick.Price2, t.correlation)
		current = t.detector.Current()
		if changed {
			volPct, corrStd := t.detector.Indicators()
			t.logger.Debug().
				Stringer("from", prevRegime).
				Stringer("to", current).
				Float64("confidence", t.detector.Confidence()).
				Float64("vol_percentile", volPct).
				Float64("corr_std", corrStd).
				Msg("regime changed")
		}
	}

	// 5. 动态阈值
	volFactor := 1.0
	if t.sqReturns1.Len() > volFactorMinSamples {
		volFactor = (math.Sqrt(t.sqReturns1.Mean()) + math.Sqrt(t.sqReturns2.Mean())) / normalVolatility
	}
	t.halfLife = 0
	if t.spread.Len() > halfLifeMinSamples {
		t.halfLife = hedge.HalfLife(t.spread)
	}
	t.entry, t.exit = dynamicThresholds(current, volFactor, t.halfLife)

	// 6. z-score，可与外部打分器混合
	z := stats.ZScore(t.current, t.mean, t.std)
	if cfg.Features.ExternalScorer && t.scorer != nil && t.spread.Len() >= scorerMinSamples {
		z = scorerWeight*t.scorer.Score(t.spread) + (1-scorerWeight)*z
	}
	t.zScore = z

	// 7. 头寸状态机；平仓或反手时把已实现的价差收益计入风控
	prevPos := t.position
	t.position = nextPosition(t.position, z, t.entry, t.exit)
	if t.position != prevPos {
		if prevPos != Flat {
			t.closeTrade(prevPos)
		}
		if t.position != Flat {
			t.openTrade(tick)
		}
	}

	// 8. 仓位
	t.risk.ApplyRegime(current)
	size := t.risk.SizePosition(math.Abs(z), cfg.AccountSize)
	if hasPrev && size > 0 {
		t.risk.UpdateVolatilityEstimate((t.current - prevSpread) / size)
	}

	// 9. 成本门限
	out := t.position
	vetoed := false
	var pnl costs.PnLAnalysis
	if cfg.Features.TransactionCosts {
		if q := tick.Quotes; q != nil {
			t.costs.UpdateQuotes(q.Bid1, q.Ask1, q.Bid2, q.Ask2)
		}
		pnl = t.costs.PnLWithCosts(math.Abs(z)*expectedCapture*size, size)
		if !pnl.Profitable && out != Flat {
			vetoed = true
			t.logger.Debug().
				Stringer("position", out).
				Float64("z_score", z).
				Float64("net_pnl", pnl.NetPnL).
				Float64("total_cost", pnl.TotalCost).
				Msg("signal vetoed by transaction costs")
		}
		if !pnl.Profitable {
			out = Flat
		}
	}

	// 10. 输出
	ts := tick.Timestamp
	t.lastUpdate = ts

	sig := PairSignal{
		Spread:         t.current,
		SpreadType:     t.spreadType,
		ZScore:         z,
		Correlation:    t.correlation,
		HedgeRatio:     t.hedgeRatio,
		HalfLife:       t.halfLife,
		EntryThreshold: t.entry,
		ExitThreshold:  t.exit,
		Signal:         out,
		Vetoed:         vetoed,
		Regime:         current,
		PositionSize:   size,
		PnL:            pnl,
		Timestamp:      ts,
	}
	if t.price1.Len() >= cointegrationMinSamples {
		t.scratch1 = t.price1.AppendTo(t.scratch1[:0])
		t.scratch2 = t.price2.AppendTo(t.scratch2[:0])
		sig.CointegrationStat = cointegration.Johansen(t.scratch1, t.scratch2)
	}
	t.lastSignal = sig

	return sig, prevRegime, changed
}

// openTrade 记录开仓时的价差
// Difference spreads are normalised by the gross notional price1 + h*price2;
// log spreads already move in return units.
func (t *Tracker) openTrade(tick Tick) {
	t.entrySpread = t.current
	t.entrySpreadType = t.spreadType
	t.entryScale = 1
	if t.spreadType == SpreadTypeDifference {
		t.entryScale = tick.Price1 + t.hedgeRatio*tick.Price2
	}
}

// closeTrade 平仓：按头寸方向计算价差收益并更新夏普与回撤
// A trade whose spread definition changed while open is dropped.
func (t *Tracker) closeTrade(pos Position) {
	if t.spreadType != t.entrySpreadType || t.entryScale <= 0 {
		t.logger.Debug().
			Str("entry_spread_type", string(t.entrySpreadType)).
			Str("spread_type", string(t.spreadType)).
			Msg("trade dropped, spread definition changed")
		return
	}

	r := float64(pos) * (t.current - t.entrySpread) / t.entryScale
	t.closedTrades++
	t.realizedReturn += r
	t.risk.UpdatePortfolioRisk(r)

	t.logger.Debug().
		Stringer("position", pos).
		Float64("entry_spread", t.entrySpread).
		Float64("exit_spread", t.current).
		Float64("return", r).
		Msg("trade closed")
}

// configError 标记为配置错误，同时保留底层错误类型
func configError(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}

// ID 实例 ID
func (t *Tracker) ID() uuid.UUID { return t.id }

// Name 追踪器名称
func (t *Tracker) Name() string { return t.name }

// Config 追踪器参数（ReturnsWindow 已填充）
func (t *Tracker) Config() Config { return t.config }

// Position 当前状态机头寸（不受成本否决影响）
func (t *Tracker) Position() Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.position
}

// Stats 当前派生指标快照
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return Stats{
		Samples:        t.price1.Len(),
		Spread:         t.current,
		SpreadMean:     t.mean,
		SpreadStd:      t.std,
		ZScore:         t.zScore,
		Correlation:    t.correlation,
		HedgeRatio:     t.hedgeRatio,
		HalfLife:       t.halfLife,
		EntryThreshold: t.entry,
		ExitThreshold:  t.exit,
		Position:       t.position,
		SpreadType:     t.spreadType,
		LastUpdate:     t.lastUpdate,
		ClosedTrades:   t.closedTrades,
		RealizedReturn: t.realizedReturn,
	}
}

// Regime 当前市场状态及置信度；未启用状态检测时为 Normal/1.0
func (t *Tracker) Regime() (regime.Regime, float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.detector == nil {
		return regime.Normal, 1.0
	}
	return t.detector.Current(), t.detector.Confidence()
}

// RiskSnapshot 风控状态
func (t *Tracker) RiskSnapshot() risk.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.risk.Snapshot()
}

// Cointegration 对当前窗口运行完整的协整检验
func (t *Tracker) Cointegration() cointegration.Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suite.Run(t.price1, t.price2, t.spread)
}

// LastSignal 最近一次输出
func (t *Tracker) LastSignal() PairSignal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastSignal
}

// HedgeRatios 动态对冲比率历史（副本）
func (t *Tracker) HedgeRatios() []float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hedgeRatios.Values()
}

// SpreadSnapshot 价差窗口的独立副本，可在其他 goroutine 中读取
func (t *Tracker) SpreadSnapshot() *stats.Window {
	t.mu.RLock()
	defer t.mu.RUnlock()

	w := stats.MustWindow(t.spread.Cap())
	for i := 0; i < t.spread.Len(); i++ {
		w.Push(t.spread.At(i))
	}
	return w
}

// RecordReturn 记录一笔外部已实现收益，更新夏普比率与最大回撤
// Trades closed by the tracker's own state machine are recorded automatically.
func (t *Tracker) RecordReturn(r float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.risk.UpdatePortfolioRisk(r)
}

// SetPortfolioHeat 设置组合热度，影响后续仓位
func (t *Tracker) SetPortfolioHeat(h float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.risk.SetPortfolioHeat(h)
}
