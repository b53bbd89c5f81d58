// Package config loads the statarb runner configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/quantlink-statarb/pkg/signal"
)

var validate = validator.New()

// ErrInvalid is returned when a loaded configuration fails validation
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete configuration for the statarb runner
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	NATS      NATSConfig      `yaml:"nats"`
	Data      DataConfig      `yaml:"data"`
	Portfolio PortfolioConfig `yaml:"portfolio"`
	Pairs     []PairConfig    `yaml:"pairs" validate:"required,min=1,dive"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" default:"console" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stderr"` // stdout, stderr 或文件路径
}

// MetricsConfig Prometheus 指标
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr" default:":9090"`
	Namespace string `yaml:"namespace" default:"statarb" validate:"required"`
}

// NATSConfig 信号发布
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url" default:"nats://127.0.0.1:4222"`
	SubjectPrefix string `yaml:"subject_prefix" default:"statarb.signals" validate:"required"`
}

// DataConfig 行情来源：合成数据或 CSV 文件
type DataConfig struct {
	Source      string  `yaml:"source" default:"generate" validate:"oneof=generate csv"`
	Path        string  `yaml:"path" validate:"required_if=Source csv"`
	Samples     int     `yaml:"samples" default:"1000" validate:"gte=1"`
	Correlation float64 `yaml:"correlation" default:"0.8" validate:"gte=-1,lte=1"`
	Seed        int64   `yaml:"seed" default:"42"`
}

// PortfolioConfig 组合层参数
type PortfolioConfig struct {
	// CorrelationEvery 每处理多少个 tick 批次刷新一次价差相关矩阵
	CorrelationEvery int `yaml:"correlation_every" default:"10" validate:"gte=1"`
	// ApplyHeat 是否把组合热度反馈到各追踪器的仓位计算
	ApplyHeat bool `yaml:"apply_heat"`
}

// PairConfig 单个价差对
type PairConfig struct {
	Symbol1 string        `yaml:"symbol1" validate:"required"`
	Symbol2 string        `yaml:"symbol2" validate:"required,nefield=Symbol1"`
	Tracker signal.Config `yaml:"tracker"`
}

// Name 价差对名称 "symbol1/symbol2"
func (p PairConfig) Name() string {
	return p.Symbol1 + "/" + p.Symbol2
}

// Default 单个默认价差对的配置
func Default() *Config {
	c := &Config{
		Pairs: []PairConfig{{Symbol1: "A", Symbol2: "B", Tracker: signal.DefaultConfig()}},
	}
	// defaults.Set only fails on malformed tags
	if err := defaults.Set(c); err != nil {
		panic(err)
	}
	return c
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML，填充默认值并校验
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	names := make(map[string]bool, len(c.Pairs))
	for i, p := range c.Pairs {
		if names[p.Name()] {
			return fmt.Errorf("%w: duplicate pair %s", ErrInvalid, p.Name())
		}
		names[p.Name()] = true

		if err := p.Tracker.Validate(); err != nil {
			return fmt.Errorf("%w: pairs[%d]: %v", ErrInvalid, i, err)
		}
	}
	return nil
}

// Save saves configuration to a YAML file
func Save(path string, c *Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
