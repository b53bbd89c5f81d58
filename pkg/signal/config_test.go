package signal

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"window too small", func(c *Config) { c.WindowSize = 1 }, true},
		{"lookback above window", func(c *Config) { c.HedgeLookback = 60 }, true},
		{"lookback too small", func(c *Config) { c.HedgeLookback = 4 }, true},
		{"zero account", func(c *Config) { c.AccountSize = 0 }, true},
		{"negative cost", func(c *Config) { c.Costs.Spread1 = -1 }, true},
		{"zero target vol", func(c *Config) { c.Risk.TargetVolatility = 0 }, true},
		{"risk per trade above one", func(c *Config) { c.Risk.RiskPerTrade = 2 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigUnmarshalKeepsDefaults(t *testing.T) {
	src := `
window_size: 80
features:
  regime_detection: false
risk:
  target_volatility: 0.2
`
	var c Config
	require.NoError(t, yaml.Unmarshal([]byte(src), &c))

	def := DefaultConfig()
	assert.Equal(t, 80, c.WindowSize)
	assert.Equal(t, def.HedgeLookback, c.HedgeLookback)
	assert.Equal(t, def.AccountSize, c.AccountSize)
	assert.Equal(t, def.Costs, c.Costs)
	assert.InDelta(t, 0.2, c.Risk.TargetVolatility, 1e-12)
	assert.InDelta(t, def.Risk.RiskPerTrade, c.Risk.RiskPerTrade, 1e-12)
	assert.False(t, c.Features.RegimeDetection)
	assert.True(t, c.Features.DynamicHedging)
	assert.NoError(t, c.Validate())
}

func TestNewTrackerRejectsInvalidConfig(t *testing.T) {
	c := DefaultConfig()
	c.WindowSize = 0

	_, err := NewTracker(c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestNewTrackerFillsReturnsWindow(t *testing.T) {
	c := DefaultConfig()
	c.WindowSize = 40

	tr, err := NewTracker(c)
	require.NoError(t, err)
	assert.Equal(t, 40, tr.Config().Risk.ReturnsWindow)
}

func TestConfigErrorKeepsCause(t *testing.T) {
	c := DefaultConfig()
	c.WindowSize = 1

	err := c.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	var verrs validator.ValidationErrors
	assert.True(t, errors.As(err, &verrs))

	_, werr := stats.NewWindow(0)
	err = configError(werr)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.True(t, errors.Is(err, stats.ErrCapacity))
}
