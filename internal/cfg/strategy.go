package cfg

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration lets YAML carry "2s" style values; yaml.v3 only accepts integer
// nanoseconds for a bare time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	v, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std converts back to the standard type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MakerConfig holds every per-session market-maker parameter. Prices and
// spreads are in cents (60 means $0.60); money amounts are in dollars.
// Immutable once a session starts.
type MakerConfig struct {
	MarketID    int64  `yaml:"marketId"`
	TokenID     string `yaml:"tokenId"`
	MarketTitle string `yaml:"marketTitle"`

	MinSpread float64 `yaml:"minSpread"` // quote around mid when ask-bid drops below this
	PriceStep float64 `yaml:"priceStep"` // reprice when desired moves at least this far

	// Hard price bounds; zero disables.
	MaxBuyPrice       float64 `yaml:"maxBuyPrice"`
	MinSellPrice      float64 `yaml:"minSellPrice"`
	MaxPriceDeviation float64 `yaml:"maxPriceDeviation"` // vs reference mid at session start

	MinBookDepth    float64 `yaml:"minBookDepth"` // dollars per side, zero disables
	PauseOnLowDepth bool    `yaml:"pauseOnLowDepth"`

	OrderAmountMin float64 `yaml:"orderAmountMin"`
	OrderAmountMax float64 `yaml:"orderAmountMax"`

	// Position caps; at least one must be set for a maker session.
	MaxPositionShares  int64   `yaml:"maxPositionShares"`
	MaxPositionAmount  float64 `yaml:"maxPositionAmount"`
	MaxPositionPercent float64 `yaml:"maxPositionPercent"`

	// Stop loss, whichever is configured trips first; zero disables.
	StopLossPercent float64 `yaml:"stopLossPercent"`
	StopLossAmount  float64 `yaml:"stopLossAmount"`
	StopLossPrice   float64 `yaml:"stopLossPrice"` // cents

	CheckInterval Duration `yaml:"checkInterval"`

	// Depth-drop protection: collapse of top-of-book liquidity by at least
	// DepthDropPercent within DepthDropWindow checks cancels everything.
	DepthDropPercent float64 `yaml:"depthDropPercent"`
	DepthDropWindow  int     `yaml:"depthDropWindow"`

	LayeredSell LayeredConfig `yaml:"layeredSell"`
	Grid        GridConfig    `yaml:"grid"`
}

// LayeredConfig configures splitting one side across multiple price levels.
type LayeredConfig struct {
	Enabled      bool      `yaml:"enabled"`
	PriceLevels  []int     `yaml:"priceLevels"`  // order-book depth indices, 1-based
	Distribution string    `yaml:"distribution"` // uniform | pyramid | inverse_pyramid | custom
	CustomRatios []float64 `yaml:"customRatios"`
}

// GridConfig configures the paired-leg grid mode.
type GridConfig struct {
	Enabled         bool    `yaml:"enabled"`
	ProfitSpread    float64 `yaml:"profitSpread"`    // cents above entry for the matching sell
	MinProfitSpread float64 `yaml:"minProfitSpread"` // skip the sell leg below this
	Levels          int     `yaml:"levels"`
	LevelSpread     float64 `yaml:"levelSpread"`    // cents between buy rungs
	AmountPerLevel  float64 `yaml:"amountPerLevel"` // dollars per rung
	AutoRebalance   bool    `yaml:"autoRebalance"`
}

// DefaultMakerConfig mirrors the defaults the strategy ran with historically.
func DefaultMakerConfig() MakerConfig {
	return MakerConfig{
		MinSpread:        0.1,
		PriceStep:        0.1,
		PauseOnLowDepth:  true,
		OrderAmountMin:   5.0,
		OrderAmountMax:   20.0,
		CheckInterval:    Duration(2 * time.Second),
		DepthDropPercent: 50,
		DepthDropWindow:  3,
		LayeredSell: LayeredConfig{
			PriceLevels:  []int{1},
			Distribution: "uniform",
		},
		Grid: GridConfig{
			ProfitSpread:    1.0,
			MinProfitSpread: 0.5,
			Levels:          5,
			LevelSpread:     1.0,
			AmountPerLevel:  10.0,
			AutoRebalance:   true,
		},
	}
}

// LoadMakerConfig reads a YAML strategy file over the defaults and validates.
func LoadMakerConfig(path string) (MakerConfig, error) {
	mc := DefaultMakerConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return MakerConfig{}, fmt.Errorf("read strategy config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &mc); err != nil {
		return MakerConfig{}, fmt.Errorf("parse strategy config %s: %w", path, err)
	}
	if err := mc.Validate(); err != nil {
		return MakerConfig{}, fmt.Errorf("strategy config %s: %w", path, err)
	}
	return mc, nil
}

func (c *MakerConfig) Validate() error {
	if c.TokenID == "" {
		return fmt.Errorf("tokenId is required")
	}
	if c.MinSpread <= 0 {
		return fmt.Errorf("minSpread must be positive, got %v", c.MinSpread)
	}
	if c.PriceStep <= 0 {
		return fmt.Errorf("priceStep must be positive, got %v", c.PriceStep)
	}
	if c.OrderAmountMin <= 0 || c.OrderAmountMax < c.OrderAmountMin {
		return fmt.Errorf("order amount range [%v, %v] is invalid", c.OrderAmountMin, c.OrderAmountMax)
	}
	if c.MaxPositionShares <= 0 && c.MaxPositionAmount <= 0 && c.MaxPositionPercent <= 0 {
		return fmt.Errorf("at least one position limit must be set")
	}
	if c.MaxPositionPercent < 0 || c.MaxPositionPercent > 100 {
		return fmt.Errorf("maxPositionPercent must be within [0, 100], got %v", c.MaxPositionPercent)
	}
	if c.StopLossPercent < 0 || c.StopLossPercent > 100 {
		return fmt.Errorf("stopLossPercent must be within [0, 100], got %v", c.StopLossPercent)
	}
	if c.CheckInterval.Std() < 500*time.Millisecond || c.CheckInterval.Std() > 5*time.Minute {
		return fmt.Errorf("checkInterval must be between 500ms and 5m, got %v", c.CheckInterval.Std())
	}
	if c.DepthDropPercent < 0 || c.DepthDropPercent > 100 {
		return fmt.Errorf("depthDropPercent must be within [0, 100], got %v", c.DepthDropPercent)
	}
	if c.DepthDropWindow < 1 {
		return fmt.Errorf("depthDropWindow must be at least 1, got %d", c.DepthDropWindow)
	}
	if c.LayeredSell.Enabled {
		if err := c.LayeredSell.validate(); err != nil {
			return fmt.Errorf("layeredSell: %w", err)
		}
	}
	if c.Grid.Enabled {
		if err := c.Grid.validate(); err != nil {
			return fmt.Errorf("grid: %w", err)
		}
	}
	return nil
}

func (l *LayeredConfig) validate() error {
	if len(l.PriceLevels) == 0 {
		return fmt.Errorf("priceLevels must not be empty")
	}
	for _, lv := range l.PriceLevels {
		if lv < 1 {
			return fmt.Errorf("price level indices are 1-based, got %d", lv)
		}
	}
	switch l.Distribution {
	case "uniform", "pyramid", "inverse_pyramid":
	case "custom":
		if len(l.CustomRatios) != len(l.PriceLevels) {
			return fmt.Errorf("customRatios length %d does not match %d price levels",
				len(l.CustomRatios), len(l.PriceLevels))
		}
	default:
		return fmt.Errorf("unknown distribution %q", l.Distribution)
	}
	return nil
}

func (g *GridConfig) validate() error {
	if g.Levels < 1 {
		return fmt.Errorf("levels must be at least 1, got %d", g.Levels)
	}
	if g.ProfitSpread <= 0 {
		return fmt.Errorf("profitSpread must be positive, got %v", g.ProfitSpread)
	}
	if g.LevelSpread <= 0 {
		return fmt.Errorf("levelSpread must be positive, got %v", g.LevelSpread)
	}
	if g.AmountPerLevel <= 0 {
		return fmt.Errorf("amountPerLevel must be positive, got %v", g.AmountPerLevel)
	}
	return nil
}
