package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/quantlink-statarb/pkg/signal"
)

func TestParseAppliesDefaults(t *testing.T) {
	src := `
pairs:
  - symbol1: AU
    symbol2: AG
  - symbol1: CU
    symbol2: AL
    tracker:
      window_size: 100
      features:
        transaction_costs: false
`
	c, err := Parse([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, "info", c.Logging.Level)
	assert.Equal(t, "console", c.Logging.Format)
	assert.Equal(t, "stderr", c.Logging.Output)
	assert.Equal(t, ":9090", c.Metrics.Addr)
	assert.Equal(t, "statarb.signals", c.NATS.SubjectPrefix)
	assert.Equal(t, "generate", c.Data.Source)
	assert.Equal(t, 1000, c.Data.Samples)
	assert.Equal(t, 10, c.Portfolio.CorrelationEvery)

	require.Len(t, c.Pairs, 2)
	assert.Equal(t, "AU/AG", c.Pairs[0].Name())
	assert.Equal(t, signal.DefaultConfig(), c.Pairs[0].Tracker)

	tr := c.Pairs[1].Tracker
	assert.Equal(t, 100, tr.WindowSize)
	assert.Equal(t, signal.DefaultConfig().HedgeLookback, tr.HedgeLookback)
	assert.False(t, tr.Features.TransactionCosts)
	assert.True(t, tr.Features.RegimeDetection)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"no pairs", "logging:\n  level: info\n"},
		{"bad level", "logging:\n  level: loud\npairs:\n  - {symbol1: A, symbol2: B}\n"},
		{"same symbols", "pairs:\n  - {symbol1: A, symbol2: A}\n"},
		{"missing symbol", "pairs:\n  - {symbol1: A}\n"},
		{"duplicate pair", "pairs:\n  - {symbol1: A, symbol2: B}\n  - {symbol1: A, symbol2: B}\n"},
		{"csv without path", "data:\n  source: csv\npairs:\n  - {symbol1: A, symbol2: B}\n"},
		{"bad tracker", "pairs:\n  - symbol1: A\n    symbol2: B\n    tracker:\n      window_size: 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
		})
	}
}

func TestParseMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("pairs: [\n"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalid))
}

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statarb.yaml")

	c := Default()
	c.NATS.Enabled = true
	c.Pairs = append(c.Pairs, PairConfig{Symbol1: "C", Symbol2: "D", Tracker: signal.DefaultConfig()})
	require.NoError(t, Save(path, c))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	assert.NoError(t, c.Validate())
	assert.Equal(t, "A/B", c.Pairs[0].Name())
}

func TestLoadSampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "statarb.yaml"))
	require.NoError(t, err)

	require.Len(t, cfg.Pairs, 3)
	assert.Equal(t, "AU/AG", cfg.Pairs[0].Name())
	assert.Equal(t, 100, cfg.Pairs[0].Tracker.WindowSize)
	assert.Equal(t, 500000.0, cfg.Pairs[0].Tracker.Risk.MaxPositionLimit)
	// 成本参数按比例给出，单边合计远小于 z-score 预期收益的 0.3 倍
	assert.InDelta(t, 0.0005, cfg.Pairs[0].Tracker.Costs.SlippageFactor, 1e-12)
	assert.Less(t, cfg.Pairs[0].Tracker.Costs.SlippageFactor*2, 0.3)
	assert.Equal(t, 60, cfg.Pairs[1].Tracker.WindowSize)
	assert.False(t, cfg.Pairs[1].Tracker.Features.ExternalScorer)
	assert.Equal(t, signal.DefaultConfig(), cfg.Pairs[2].Tracker)
	assert.True(t, cfg.Portfolio.ApplyHeat)
	assert.Equal(t, 2000, cfg.Data.Samples)
}
