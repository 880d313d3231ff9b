// Package config exposes strongly typed strategy configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as metrics and logging levels.
type App struct {
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Exchange describes the futures venue connectivity parameters the engine expects.
// Credentials never live here; they come from the environment.
type Exchange struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// Strategy groups the tunable knobs of the MA bias mean-reversion rule.
type Strategy struct {
	Symbol           string  `yaml:"symbol"`
	TimeframeMinutes int     `yaml:"timeframe_minutes"`
	MAPeriod         int     `yaml:"ma_period"`
	BiasEntryLong    float64 `yaml:"bias_entry_long"`
	BiasEntryShort   float64 `yaml:"bias_entry_short"`
	StopLossPct      float64 `yaml:"stop_loss_pct"`
	OrderSize        int     `yaml:"order_size"`
	Leverage         string  `yaml:"leverage"`
	MarginMode       int     `yaml:"margin_mode"` // 1 isolated, 2 cross
	OpenType         string  `yaml:"open_type"`   // "isolated" or "cross"
}

// Config collects every configuration leaf for easy marshaling from YAML.
// It is constructed once at startup and passed explicitly from there on.
type Config struct {
	App      App      `yaml:"app"`
	Exchange Exchange `yaml:"exchange"`
	Strategy Strategy `yaml:"strategy"`
}

// Load reads a YAML file from disk, hydrates a Config struct, and validates it.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &config, nil
}

func (c *Config) validate() error {
	s := c.Strategy
	if s.Symbol == "" {
		return fmt.Errorf("strategy.symbol is required")
	}
	if s.TimeframeMinutes <= 0 {
		return fmt.Errorf("strategy.timeframe_minutes must be positive, got %d", s.TimeframeMinutes)
	}
	if s.MAPeriod <= 0 {
		return fmt.Errorf("strategy.ma_period must be positive, got %d", s.MAPeriod)
	}
	// The entry triggers must not overlap: long fires on bias at or below
	// its threshold, short at or above its own.
	if s.BiasEntryLong >= s.BiasEntryShort {
		return fmt.Errorf("strategy.bias_entry_long (%.4f) must be below bias_entry_short (%.4f)", s.BiasEntryLong, s.BiasEntryShort)
	}
	if s.StopLossPct <= 0 || s.StopLossPct >= 1 {
		return fmt.Errorf("strategy.stop_loss_pct must be in (0, 1), got %.4f", s.StopLossPct)
	}
	if s.OrderSize <= 0 {
		return fmt.Errorf("strategy.order_size must be positive, got %d", s.OrderSize)
	}
	return nil
}
