// Package datagen produces synthetic correlated price pairs and reads/writes
// them as CSV.
package datagen

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"

	"github.com/yourusername/quantlink-statarb/pkg/signal"
)

// 合成数据默认值
const (
	DefaultStart1    = 100.0
	DefaultStart2    = 95.0
	DefaultStartTime = int64(1640995200000000) // 2022-01-01 00:00:00 UTC，微秒
	DefaultStep      = int64(1000000)          // 1s
	DefaultQuoteBps  = 2.0

	// stepRange 每步收益在 ±1% 内均匀分布
	stepRange = 0.02
)

// Row 一行行情：两条腿的价格与盘口
type Row struct {
	Timestamp int64
	Price1    float64
	Price2    float64
	Bid1      float64
	Ask1      float64
	Bid2      float64
	Ask2      float64
}

// HasQuotes 是否带有盘口
func (r Row) HasQuotes() bool {
	return r.Bid1 > 0 && r.Ask1 > 0 && r.Bid2 > 0 && r.Ask2 > 0
}

// Tick 转换为追踪器输入
func (r Row) Tick() signal.Tick {
	t := signal.Tick{Price1: r.Price1, Price2: r.Price2, Timestamp: r.Timestamp}
	if r.HasQuotes() {
		t.Quotes = &signal.Quotes{Bid1: r.Bid1, Ask1: r.Ask1, Bid2: r.Bid2, Ask2: r.Ask2}
	}
	return t
}

// Options 合成参数
type Options struct {
	N           int
	Correlation float64
	Seed        int64
	Start1      float64
	Start2      float64
	StartTime   int64
	Step        int64
	QuoteBps    float64 // 报价价差（基点），0 表示不生成盘口
}

// DefaultOptions 默认参数
func DefaultOptions(n int, correlation float64, seed int64) Options {
	return Options{
		N:           n,
		Correlation: correlation,
		Seed:        seed,
		Start1:      DefaultStart1,
		Start2:      DefaultStart2,
		StartTime:   DefaultStartTime,
		Step:        DefaultStep,
		QuoteBps:    DefaultQuoteBps,
	}
}

// Correlated 生成相关随机游走
//
//	r1 = U(-0.01, 0.01)
//	r2 = ρ·r1 + sqrt(1-ρ²)·U(-0.01, 0.01)
//	p *= 1 + r
//
// The same seed always yields the same series.
func Correlated(opts Options) []Row {
	if opts.N <= 0 {
		return nil
	}
	rho := math.Max(-1, math.Min(1, opts.Correlation))
	rng := rand.New(rand.NewSource(opts.Seed))

	p1, p2 := opts.Start1, opts.Start2
	if p1 <= 0 {
		p1 = DefaultStart1
	}
	if p2 <= 0 {
		p2 = DefaultStart2
	}

	rows := make([]Row, opts.N)
	for i := range rows {
		r1 := (rng.Float64() - 0.5) * stepRange
		r2 := rho*r1 + math.Sqrt(1-rho*rho)*(rng.Float64()-0.5)*stepRange
		p1 *= 1 + r1
		p2 *= 1 + r2

		row := Row{
			Timestamp: opts.StartTime + int64(i)*opts.Step,
			Price1:    p1,
			Price2:    p2,
		}
		if opts.QuoteBps > 0 {
			h1 := p1 * opts.QuoteBps / 10000 / 2
			h2 := p2 * opts.QuoteBps / 10000 / 2
			row.Bid1, row.Ask1 = p1-h1, p1+h1
			row.Bid2, row.Ask2 = p2-h2, p2+h2
		}
		rows[i] = row
	}
	return rows
}

var header = []string{"timestamp_us", "price1", "price2", "bid1", "ask1", "bid2", "ask2"}

// WriteCSV 写出 CSV（带表头）
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for _, r := range rows {
		record := []string{
			strconv.FormatInt(r.Timestamp, 10),
			f(r.Price1), f(r.Price2),
			f(r.Bid1), f(r.Ask1), f(r.Bid2), f(r.Ask2),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV 读取 CSV，首行为表头
// Rows need at least timestamp, price1 and price2; the quote columns are
// optional. Unparsable rows are skipped and counted.
func ReadCSV(r io.Reader) (rows []Row, skipped int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(head) < 3 {
		return nil, 0, fmt.Errorf("invalid CSV format: expected at least 3 columns, got %d", len(head))
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("failed to read CSV row: %w", err)
		}

		row, err := parseRecord(record)
		if err != nil {
			skipped++
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped, nil
}

func parseRecord(record []string) (Row, error) {
	if len(record) < 3 {
		return Row{}, fmt.Errorf("invalid CSV record: expected at least 3 fields, got %d", len(record))
	}

	var row Row
	var err error
	if row.Timestamp, err = strconv.ParseInt(record[0], 10, 64); err != nil {
		return Row{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	fields := []*float64{&row.Price1, &row.Price2, &row.Bid1, &row.Ask1, &row.Bid2, &row.Ask2}
	for i, dst := range fields {
		if i+1 >= len(record) {
			break
		}
		if *dst, err = strconv.ParseFloat(record[i+1], 64); err != nil {
			return Row{}, fmt.Errorf("invalid %s: %w", header[i+1], err)
		}
	}
	return row, nil
}
