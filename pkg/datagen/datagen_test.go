package datagen

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

func TestCorrelatedDeterministic(t *testing.T) {
	a := Correlated(DefaultOptions(100, 0.8, 7))
	b := Correlated(DefaultOptions(100, 0.8, 7))
	c := Correlated(DefaultOptions(100, 0.8, 8))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestCorrelatedShape(t *testing.T) {
	rows := Correlated(DefaultOptions(500, 0.9, 1))
	require.Len(t, rows, 500)

	for i, r := range rows {
		assert.Greater(t, r.Price1, 0.0)
		assert.Greater(t, r.Price2, 0.0)
		assert.Equal(t, DefaultStartTime+int64(i)*DefaultStep, r.Timestamp)
		assert.True(t, r.HasQuotes())
		assert.Less(t, r.Bid1, r.Ask1)
		assert.Less(t, r.Bid2, r.Ask2)
		assert.InDelta(t, r.Price1*DefaultQuoteBps/10000, r.Ask1-r.Bid1, 1e-9)
	}
}

func TestCorrelatedReturnsFollowRho(t *testing.T) {
	rows := Correlated(DefaultOptions(2000, 0.9, 3))

	p1 := make([]float64, len(rows))
	p2 := make([]float64, len(rows))
	for i, r := range rows {
		p1[i], p2[i] = r.Price1, r.Price2
	}
	corr := stats.Correlation(stats.LogReturns(p1), stats.LogReturns(p2))
	assert.InDelta(t, 0.9, corr, 0.05)

	rows = Correlated(DefaultOptions(2000, 0, 3))
	for i, r := range rows {
		p1[i], p2[i] = r.Price1, r.Price2
	}
	corr = stats.Correlation(stats.LogReturns(p1), stats.LogReturns(p2))
	assert.InDelta(t, 0, corr, 0.1)
}

func TestCorrelatedEmpty(t *testing.T) {
	assert.Nil(t, Correlated(DefaultOptions(0, 0.5, 1)))
}

func TestRowTick(t *testing.T) {
	withQuotes := Row{Timestamp: 5, Price1: 100, Price2: 95, Bid1: 99.9, Ask1: 100.1, Bid2: 94.9, Ask2: 95.1}
	tick := withQuotes.Tick()
	assert.Equal(t, int64(5), tick.Timestamp)
	require.NotNil(t, tick.Quotes)
	assert.Equal(t, 100.1, tick.Quotes.Ask1)

	plain := Row{Timestamp: 5, Price1: 100, Price2: 95}
	assert.Nil(t, plain.Tick().Quotes)
}

func TestCSVRoundTrip(t *testing.T) {
	rows := Correlated(DefaultOptions(50, 0.7, 11))

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))
	assert.True(t, strings.HasPrefix(buf.String(), "timestamp_us,price1,price2,bid1,ask1,bid2,ask2\n"))

	got, skipped, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, rows, got)
}

func TestReadCSVPricesOnlyAndBadRows(t *testing.T) {
	src := "timestamp_us,price1,price2\n" +
		"1,100,95\n" +
		"x,100,95\n" +
		"3,abc,95\n" +
		"4,101\n" +
		"5,102,96.5\n"

	rows, skipped, err := ReadCSV(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 3, skipped)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{Timestamp: 5, Price1: 102, Price2: 96.5}, rows[1])
	assert.False(t, rows[0].HasQuotes())
}

func TestReadCSVBadHeader(t *testing.T) {
	_, _, err := ReadCSV(strings.NewReader("a,b\n1,2\n"))
	assert.Error(t, err)

	_, _, err = ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}
