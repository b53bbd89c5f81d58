package stats

import (
	"errors"
	"fmt"
	"math"
)

// MaxCapacity 单个窗口允许的最大容量，超过视为资源耗尽
const MaxCapacity = 1 << 20

// ErrCapacity is returned when a window cannot be allocated with the requested capacity
var ErrCapacity = errors.New("invalid window capacity")

// Window 固定容量的滚动窗口（环形缓冲区）
// 索引 0 为最旧的数据，Len()-1 为最新的数据。
// Window 归创建它的组件独占，不做并发保护。
type Window struct {
	data []float64
	head int // 下一次写入的位置
	size int
}

// NewWindow 创建滚动窗口
func NewWindow(capacity int) (*Window, error) {
	if capacity <= 0 || capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: %d (must be in [1, %d])", ErrCapacity, capacity, MaxCapacity)
	}
	return &Window{data: make([]float64, capacity)}, nil
}

// MustWindow is NewWindow for capacities known to be valid at compile time.
func MustWindow(capacity int) *Window {
	w, err := NewWindow(capacity)
	if err != nil {
		panic(err)
	}
	return w
}

// Push 添加新数据点，窗口满时覆盖最旧的数据
func (w *Window) Push(value float64) {
	w.data[w.head] = value
	w.head = (w.head + 1) % len(w.data)
	if w.size < len(w.data) {
		w.size++
	}
}

// At returns the value at index i (0 = oldest). Out-of-range indexes yield 0;
// callers that need to tell 0 apart from a stored value must bound-check first.
func (w *Window) At(i int) float64 {
	if i < 0 || i >= w.size {
		return 0
	}
	return w.data[w.index(i)]
}

func (w *Window) index(i int) int {
	if w.size < len(w.data) {
		return i
	}
	return (w.head + i) % len(w.data)
}

// Last 获取最新的数据点
func (w *Window) Last() (float64, bool) {
	if w.size == 0 {
		return 0, false
	}
	return w.At(w.size - 1), true
}

// Len 返回当前数据点数量
func (w *Window) Len() int { return w.size }

// Cap 返回窗口容量
func (w *Window) Cap() int { return len(w.data) }

// Full reports whether the next push evicts the oldest value.
func (w *Window) Full() bool { return w.size == len(w.data) }

// AppendTo appends the window contents, oldest first, to dst.
func (w *Window) AppendTo(dst []float64) []float64 {
	for i := 0; i < w.size; i++ {
		dst = append(dst, w.data[w.index(i)])
	}
	return dst
}

// Values 返回所有数据的副本（从旧到新）
func (w *Window) Values() []float64 {
	return w.AppendTo(make([]float64, 0, w.size))
}

// Tail 获取最近 n 个数据点；n 超出范围时返回全部
func (w *Window) Tail(n int) []float64 {
	if n <= 0 || n > w.size {
		n = w.size
	}
	out := make([]float64, 0, n)
	for i := w.size - n; i < w.size; i++ {
		out = append(out, w.data[w.index(i)])
	}
	return out
}

// Mean 计算窗口均值，空窗口返回 0
func (w *Window) Mean() float64 {
	if w.size == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < w.size; i++ {
		sum += w.data[w.index(i)]
	}
	return sum / float64(w.size)
}

// StdDev 计算样本标准差（n-1），数据点不足 2 个时返回 0
func (w *Window) StdDev() float64 {
	if w.size <= 1 {
		return 0
	}
	mean := w.Mean()
	var sumSq float64
	for i := 0; i < w.size; i++ {
		d := w.data[w.index(i)] - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(w.size-1))
}

// Reset 清空窗口，保留容量
func (w *Window) Reset() {
	w.head = 0
	w.size = 0
}

// CorrelationOf 计算两个窗口的 Pearson 相关系数
func CorrelationOf(a, b *Window) float64 {
	if a.Len() != b.Len() {
		return 0
	}
	return Correlation(a.Values(), b.Values())
}

// OLSSlopeOf 计算窗口 y 对窗口 x 的回归斜率
func OLSSlopeOf(y, x *Window) float64 {
	if y.Len() != x.Len() {
		return 0
	}
	return OLSSlope(y.Values(), x.Values())
}
