package signal

import (
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/quantlink-statarb/pkg/cointegration"
	"github.com/yourusername/quantlink-statarb/pkg/costs"
	"github.com/yourusername/quantlink-statarb/pkg/hedge"
	"github.com/yourusername/quantlink-statarb/pkg/risk"
)

var validate = validator.New()

// DefaultAccountSize 仓位计算使用的名义账户规模
const DefaultAccountSize = 1000000.0

// Features 可选功能开关
type Features struct {
	DynamicHedging   bool `yaml:"dynamic_hedging" json:"dynamic_hedging"`
	RegimeDetection  bool `yaml:"regime_detection" json:"regime_detection"`
	TransactionCosts bool `yaml:"transaction_costs" json:"transaction_costs"`
	ExternalScorer   bool `yaml:"external_scorer" json:"external_scorer"`
}

// Config 追踪器参数
type Config struct {
	WindowSize    int          `yaml:"window_size" json:"window_size" validate:"gte=2,lte=1048576"`
	HedgeLookback int          `yaml:"hedge_lookback" json:"hedge_lookback" validate:"gte=5,ltefield=WindowSize"`
	AccountSize   float64      `yaml:"account_size" json:"account_size" validate:"gt=0"`
	ThresholdBand float64      `yaml:"threshold_band" json:"threshold_band" validate:"gte=0"`
	Risk          risk.Config  `yaml:"risk" json:"risk"`
	Costs         costs.Params `yaml:"costs" json:"costs"`
	Features      Features     `yaml:"features" json:"features"`
}

// DefaultConfig 默认参数：窗口 50，启用全部功能
func DefaultConfig() Config {
	rc := risk.DefaultConfig()
	rc.ReturnsWindow = 0 // 跟随 WindowSize

	return Config{
		WindowSize:    50,
		HedgeLookback: hedge.DefaultLookback,
		AccountSize:   DefaultAccountSize,
		ThresholdBand: cointegration.DefaultThresholdBand,
		Risk:          rc,
		Costs:         costs.DefaultParams(),
		Features: Features{
			DynamicHedging:   true,
			RegimeDetection:  true,
			TransactionCosts: true,
			ExternalScorer:   true,
		},
	}
}

// UnmarshalYAML decodes over DefaultConfig so omitted keys keep their defaults.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type plain Config
	p := plain(DefaultConfig())
	if err := value.Decode(&p); err != nil {
		return err
	}
	*c = Config(p)
	return nil
}

// SetDefaults replaces an all-zero config with DefaultConfig, so a pair
// declared without a tracker section gets the default tracker.
func (c *Config) SetDefaults() {
	if *c == (Config{}) {
		*c = DefaultConfig()
	}
}

// Validate 校验参数
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return configError(err)
	}
	return nil
}

// regimeWindow 状态检测窗口为追踪窗口的一半，最少 10
func (c *Config) regimeWindow() int {
	w := c.WindowSize / 2
	if w < 10 {
		w = 10
	}
	return w
}
