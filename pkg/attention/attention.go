// Package attention provides a temporal-attention z-score for a spread window.
//
// Each observation gets a weight from its recency and magnitude. The z-score is
// taken against the attention-weighted mean and standard deviation, plus a
// small momentum term when the scorer runs with more than one feature.
package attention

import (
	"math"

	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

const (
	recencyWeight   = 0.7
	magnitudeWeight = 0.3
	momentumWeight  = 0.1
	flatTolerance   = 1e-12

	// MinSamples 少于该样本数时退化为普通 z-score
	MinSamples = 5
	// DefaultDim 默认特征维度（context + momentum）
	DefaultDim = 2
)

// Output 一次注意力计算的结果
type Output struct {
	Scores   []float64 // 归一化的注意力权重，和为 1
	Context  float64   // 注意力加权均值
	Momentum float64   // 注意力加权的一阶差分，仅 Dim > 1 时计算
}

// TemporalScorer 时序注意力打分器
// A scorer reuses its buffers between calls and is not safe for concurrent use.
type TemporalScorer struct {
	Dim int

	values []float64
	scores []float64
}

// NewTemporalScorer 创建打分器，dim < 1 时使用 1
func NewTemporalScorer(dim int) *TemporalScorer {
	if dim < 1 {
		dim = 1
	}
	return &TemporalScorer{Dim: dim}
}

// Apply 计算注意力权重、上下文和动量
// Returns false for sequences shorter than 2. The returned Scores slice is
// reused by the next call.
func (s *TemporalScorer) Apply(seq []float64) (Output, bool) {
	n := len(seq)
	if n < 2 {
		return Output{}, false
	}

	if cap(s.scores) < n {
		s.scores = make([]float64, n)
	}
	scores := s.scores[:n]

	var total float64
	for i, v := range seq {
		// 越新的数据和绝对值越大的数据权重越高
		scores[i] = float64(i+1)/float64(n)*recencyWeight + math.Abs(v)*magnitudeWeight
		total += scores[i]
	}

	var context float64
	for i := range scores {
		scores[i] /= total
		context += scores[i] * seq[i]
	}

	out := Output{Scores: scores, Context: context}
	if s.Dim > 1 {
		for i := 1; i < n; i++ {
			out.Momentum += scores[i] * (seq[i] - seq[i-1])
		}
	}
	return out, true
}

// Score 返回窗口最新值的注意力增强 z-score
func (s *TemporalScorer) Score(w *stats.Window) float64 {
	s.values = w.AppendTo(s.values[:0])
	return s.ZScore(s.values)
}

// ZScore computes the attention-enhanced z-score of the last element of seq.
func (s *TemporalScorer) ZScore(seq []float64) float64 {
	n := len(seq)
	if n == 0 {
		return 0
	}
	current := seq[n-1]

	if n < MinSamples {
		return plainZScore(seq, current)
	}
	out, ok := s.Apply(seq)
	if !ok {
		return plainZScore(seq, current)
	}

	var variance float64
	for i, v := range seq {
		d := v - out.Context
		variance += out.Scores[i] * d * d
	}
	std := math.Sqrt(variance)
	// 权重和的舍入误差会让常数序列得到极小的非零 std
	if std <= flatTolerance*math.Max(1, math.Abs(out.Context)) {
		return 0
	}

	z := (current - out.Context) / std
	if s.Dim > 1 {
		z += out.Momentum * momentumWeight
	}
	return z
}

func plainZScore(seq []float64, current float64) float64 {
	s := stats.Summarize(seq)
	return stats.ZScore(current, s.Mean, s.Std)
}

// Softmax 数值稳定的 softmax，空输入返回 nil
func Softmax(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}

	max := scores[0]
	for _, v := range scores[1:] {
		if v > max {
			max = v
		}
	}

	out := make([]float64, len(scores))
	var sum float64
	for i, v := range scores {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
