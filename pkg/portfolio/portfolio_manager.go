// Package portfolio runs many pair trackers side by side and maintains the
// correlation of their spreads.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/quantlink-statarb/pkg/correlation"
	"github.com/yourusername/quantlink-statarb/pkg/signal"
	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

var (
	// ErrPairExists is returned when a pair name is registered twice
	ErrPairExists = errors.New("pair already registered")

	// ErrPairNotFound is returned for operations on an unknown pair
	ErrPairNotFound = errors.New("pair not found")
)

// Config represents portfolio configuration
type Config struct {
	CorrelationEvery int  // 每处理多少个批次刷新一次相关矩阵，<=0 表示每批
	ApplyHeat        bool // 将组合热度反馈给各追踪器的仓位计算
	MaxConcurrency   int  // 并发处理的追踪器数量上限，<=0 表示不限
}

// HeatRecorder receives the portfolio heat after each correlation refresh.
type HeatRecorder interface {
	RecordPortfolioHeat(heat float64)
}

// Stats represents portfolio statistics
type Stats struct {
	NumPairs    int       `json:"num_pairs"`
	NumActive   int       `json:"num_active"`
	Batches     int64     `json:"batches"`
	Ticks       int64     `json:"ticks"`
	Rejected    int64     `json:"rejected"`
	Vetoes      int64     `json:"vetoes"`
	Heat        float64   `json:"heat"`
	LastRefresh time.Time `json:"last_refresh"`
}

// CorrelationMatrix 价差相关矩阵快照
// Pairs[i] labels row and column i; pairs holding a position come first and
// Heat averages over those rows only.
type CorrelationMatrix struct {
	Pairs     []string
	Matrix    *correlation.Matrix
	NumActive int
	Heat      float64
	Timestamp time.Time
}

// Option 组合管理器可选项
type Option func(*Manager)

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithHeatRecorder 设置组合热度的记录器
func WithHeatRecorder(r HeatRecorder) Option {
	return func(m *Manager) { m.heatRecorder = r }
}

// Manager 管理多个价差对
// Each tracker is driven by at most one goroutine per batch; the only state
// shared across pairs is the correlation snapshot.
type Manager struct {
	config       Config
	logger       zerolog.Logger
	heatRecorder HeatRecorder

	trackers map[string]*signal.Tracker
	order    []string // 注册顺序

	correlation *CorrelationMatrix
	heat        float64
	lastRefresh time.Time

	batches  atomic.Int64
	ticks    atomic.Int64
	rejected atomic.Int64
	vetoes   atomic.Int64

	mu sync.RWMutex
}

// NewManager creates a new portfolio manager
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		config:   cfg,
		logger:   zerolog.Nop(),
		trackers: make(map[string]*signal.Tracker),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddPair 注册一个价差对并创建追踪器
func (m *Manager) AddPair(name string, cfg signal.Config, opts ...signal.Option) (*signal.Tracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.trackers[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrPairExists, name)
	}

	opts = append([]signal.Option{
		signal.WithName(name),
		signal.WithLogger(m.logger),
	}, opts...)
	t, err := signal.NewTracker(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("pair %s: %w", name, err)
	}

	m.trackers[name] = t
	m.order = append(m.order, name)

	m.logger.Info().
		Str("pair", name).
		Str("tracker_id", t.ID().String()).
		Int("window", cfg.WindowSize).
		Msg("pair registered")
	return t, nil
}

// RemovePair removes a pair from the portfolio
func (m *Manager) RemovePair(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.trackers[name]; !exists {
		return fmt.Errorf("%w: %s", ErrPairNotFound, name)
	}

	delete(m.trackers, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}

	m.logger.Info().Str("pair", name).Msg("pair removed")
	return nil
}

// Tracker 返回价差对的追踪器
func (m *Manager) Tracker(name string) (*signal.Tracker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trackers[name]
	return t, ok
}

// Pairs 按注册顺序返回全部价差对
func (m *Manager) Pairs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Process 并发处理一批 tick，每个价差对最多一个
// Ticks rejected by a tracker are logged, counted and left out of the
// result. An unknown pair name or a cancelled context aborts the batch.
func (m *Manager) Process(ctx context.Context, ticks map[string]signal.Tick) (map[string]signal.PairSignal, error) {
	m.mu.RLock()
	names := make([]string, 0, len(ticks))
	trackers := make([]*signal.Tracker, 0, len(ticks))
	for name := range ticks {
		t, ok := m.trackers[name]
		if !ok {
			m.mu.RUnlock()
			return nil, fmt.Errorf("%w: %s", ErrPairNotFound, name)
		}
		names = append(names, name)
		trackers = append(trackers, t)
	}
	m.mu.RUnlock()

	results := make([]signal.PairSignal, len(names))
	ok := make([]bool, len(names))

	g, gctx := errgroup.WithContext(ctx)
	if m.config.MaxConcurrency > 0 {
		g.SetLimit(m.config.MaxConcurrency)
	}
	for i := range names {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			sig, err := trackers[i].Update(ticks[names[i]])
			if err != nil {
				m.rejected.Add(1)
				m.logger.Warn().Err(err).Str("pair", names[i]).Msg("tick rejected")
				return nil
			}

			m.ticks.Add(1)
			if sig.Vetoed {
				m.vetoes.Add(1)
			}
			results[i], ok[i] = sig, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]signal.PairSignal, len(names))
	for i, name := range names {
		if ok[i] {
			out[name] = results[i]
		}
	}

	batch := m.batches.Add(1)
	every := int64(m.config.CorrelationEvery)
	if every <= 0 || batch%every == 0 {
		if _, err := m.RefreshCorrelation(); err != nil {
			m.logger.Warn().Err(err).Msg("correlation refresh failed")
		}
	}
	return out, nil
}

// RefreshCorrelation 重新计算价差相关矩阵与组合热度
func (m *Manager) RefreshCorrelation() (*CorrelationMatrix, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.order)
	if n == 0 {
		return nil, nil
	}

	type entry struct {
		name   string
		active bool
		spread *stats.Window
	}
	entries := make([]entry, n)
	for i, name := range m.order {
		t := m.trackers[name]
		entries[i] = entry{
			name:   name,
			active: t.Position() != signal.Flat,
			spread: t.SpreadSnapshot(),
		}
	}
	// 持仓的价差对排在前面
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].active && !entries[j].active
	})

	names := make([]string, n)
	windows := make([]*stats.Window, n)
	active := 0
	for i, e := range entries {
		names[i] = e.name
		windows[i] = e.spread
		if e.active {
			active++
		}
	}

	mat, err := correlation.NewMatrix(n)
	if err != nil {
		return nil, err
	}
	if err := mat.Update(windows); err != nil {
		return nil, err
	}

	heat := mat.Heat(active)
	m.heat = heat
	m.lastRefresh = time.Now()
	m.correlation = &CorrelationMatrix{
		Pairs:     names,
		Matrix:    mat,
		NumActive: active,
		Heat:      heat,
		Timestamp: m.lastRefresh,
	}

	if m.config.ApplyHeat {
		for _, t := range m.trackers {
			t.SetPortfolioHeat(heat)
		}
	}
	if m.heatRecorder != nil {
		m.heatRecorder.RecordPortfolioHeat(heat)
	}

	m.logger.Debug().Int("pairs", n).Int("active", active).Float64("heat", heat).Msg("correlation refreshed")

	snapshot := *m.correlation
	snapshot.Matrix = mat.Clone()
	snapshot.Pairs = append([]string(nil), names...)
	return &snapshot, nil
}

// GetCorrelationMatrix returns a copy of the latest correlation snapshot
func (m *Manager) GetCorrelationMatrix() *CorrelationMatrix {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.correlation == nil {
		return nil
	}
	c := *m.correlation
	c.Matrix = m.correlation.Matrix.Clone()
	c.Pairs = append([]string(nil), m.correlation.Pairs...)
	return &c
}

// GetStats returns portfolio statistics
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := 0
	for _, t := range m.trackers {
		if t.Position() != signal.Flat {
			active++
		}
	}

	return Stats{
		NumPairs:    len(m.trackers),
		NumActive:   active,
		Batches:     m.batches.Load(),
		Ticks:       m.ticks.Load(),
		Rejected:    m.rejected.Load(),
		Vetoes:      m.vetoes.Load(),
		Heat:        m.heat,
		LastRefresh: m.lastRefresh,
	}
}

// Snapshot 各价差对当前指标
func (m *Manager) Snapshot() map[string]signal.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]signal.Stats, len(m.trackers))
	for name, t := range m.trackers {
		out[name] = t.Stats()
	}
	return out
}
