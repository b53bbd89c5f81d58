// Package correlation maintains the correlation matrix across many series.
package correlation

import (
	"errors"
	"fmt"
	"math"

	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

var (
	// ErrInvalidSize is returned when a matrix is created with a non-positive size
	ErrInvalidSize = errors.New("invalid correlation matrix size")

	// ErrTooManySeries is returned when more series than the matrix size are supplied
	ErrTooManySeries = errors.New("too many series for correlation matrix")
)

// Matrix 相关系数矩阵，按行连续存储：data[row*size+col]
type Matrix struct {
	size int
	data []float64
}

// NewMatrix 创建 size x size 的相关系数矩阵
func NewMatrix(size int) (*Matrix, error) {
	if size <= 0 || size*size > stats.MaxCapacity {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	return &Matrix{size: size, data: make([]float64, size*size)}, nil
}

// Update 用窗口两两计算相关系数，对角线为 1
// Only the leading len(windows) rows and columns are written.
func (m *Matrix) Update(windows []*stats.Window) error {
	n := len(windows)
	if n > m.size {
		return fmt.Errorf("%w: %d > %d", ErrTooManySeries, n, m.size)
	}

	values := make([][]float64, n)
	for i, w := range windows {
		values[i] = w.Values()
	}

	for i := 0; i < n; i++ {
		m.data[i*m.size+i] = 1.0
		for j := i + 1; j < n; j++ {
			c := stats.Correlation(values[i], values[j])
			m.data[i*m.size+j] = c
			m.data[j*m.size+i] = c
		}
	}
	return nil
}

// At 返回 (row, col) 处的相关系数，越界返回 0
func (m *Matrix) At(row, col int) float64 {
	if row < 0 || col < 0 || row >= m.size || col >= m.size {
		return 0
	}
	return m.data[row*m.size+col]
}

// Size 矩阵维度
func (m *Matrix) Size() int { return m.size }

// Clone returns an independent copy, safe to share read-only across goroutines.
func (m *Matrix) Clone() *Matrix {
	data := make([]float64, len(m.data))
	copy(data, m.data)
	return &Matrix{size: m.size, data: data}
}

// Rows 以二维切片形式导出矩阵（用于日志与序列化）
func (m *Matrix) Rows() [][]float64 {
	rows := make([][]float64, m.size)
	for i := range rows {
		rows[i] = append([]float64(nil), m.data[i*m.size:(i+1)*m.size]...)
	}
	return rows
}

// Heat 前 nActive 个序列两两相关系数绝对值的均值
// Higher average correlation means more concentrated portfolio risk.
func (m *Matrix) Heat(nActive int) float64 {
	if nActive > m.size {
		nActive = m.size
	}
	if nActive <= 1 {
		return 0
	}

	var total float64
	pairs := 0
	for i := 0; i < nActive; i++ {
		for j := i + 1; j < nActive; j++ {
			total += math.Abs(m.data[i*m.size+j])
			pairs++
		}
	}
	return total / float64(pairs)
}
