package sentinel

import (
	"fmt"
	"time"
)

// Config holds the detection policy for a sentinel engine. Every
// threshold here is tunable; the defaults mirror the values agreed with
// compliance, not derived or regulatory constants.
type Config struct {
	// WindowMinutes bounds both sliding-window buffers.
	WindowMinutes int `json:"window_minutes" mapstructure:"window_minutes"`

	// Spoofing: a cancellation fires when the order lived for less than
	// SpoofingMaxLifetime and its amount exceeds SpoofingMinAmount.
	SpoofingMaxLifetime time.Duration `json:"spoofing_max_lifetime" mapstructure:"spoofing_max_lifetime"`
	SpoofingMinAmount   float64       `json:"spoofing_min_amount" mapstructure:"spoofing_min_amount"`

	// Sandwich: how far back to look for the attacker's front-run.
	SandwichWindow time.Duration `json:"sandwich_window" mapstructure:"sandwich_window"`

	// Layering: order-book imbalance ratio bounds (buy/sell volume).
	LayeringBuyRatio  float64 `json:"layering_buy_ratio" mapstructure:"layering_buy_ratio"`
	LayeringSellRatio float64 `json:"layering_sell_ratio" mapstructure:"layering_sell_ratio"`

	// Volume anomaly: minimum sample count, z-score trip threshold and
	// the trading pause recommended when it trips.
	VolumeMinSamples      int     `json:"volume_min_samples" mapstructure:"volume_min_samples"`
	VolumeZScoreThreshold float64 `json:"volume_zscore_threshold" mapstructure:"volume_zscore_threshold"`
	VolumePauseMinutes    int     `json:"volume_pause_minutes" mapstructure:"volume_pause_minutes"`

	// Cross-account wash trading: trades among a linked cluster above
	// this count are suspect.
	CrossAccountMinTrades int `json:"cross_account_min_trades" mapstructure:"cross_account_min_trades"`
}

// DefaultConfig returns the baseline detection policy.
func DefaultConfig() Config {
	return Config{
		WindowMinutes:         60,
		SpoofingMaxLifetime:   5 * time.Second,
		SpoofingMinAmount:     10.0,
		SandwichWindow:        10 * time.Second,
		LayeringBuyRatio:      10.0,
		LayeringSellRatio:     0.1,
		VolumeMinSamples:      30,
		VolumeZScoreThreshold: 5.0,
		VolumePauseMinutes:    10,
		CrossAccountMinTrades: 5,
	}
}

// Validate rejects configurations that would disable or invert detection.
func (c Config) Validate() error {
	if c.WindowMinutes <= 0 {
		return fmt.Errorf("window_minutes must be positive, got %d", c.WindowMinutes)
	}
	if c.SpoofingMaxLifetime <= 0 {
		return fmt.Errorf("spoofing_max_lifetime must be positive, got %s", c.SpoofingMaxLifetime)
	}
	if c.SandwichWindow <= 0 {
		return fmt.Errorf("sandwich_window must be positive, got %s", c.SandwichWindow)
	}
	if c.LayeringBuyRatio <= c.LayeringSellRatio {
		return fmt.Errorf("layering_buy_ratio (%.2f) must exceed layering_sell_ratio (%.2f)",
			c.LayeringBuyRatio, c.LayeringSellRatio)
	}
	if c.VolumeMinSamples < 2 {
		return fmt.Errorf("volume_min_samples must be at least 2, got %d", c.VolumeMinSamples)
	}
	if c.VolumeZScoreThreshold <= 0 {
		return fmt.Errorf("volume_zscore_threshold must be positive, got %.2f", c.VolumeZScoreThreshold)
	}
	if c.CrossAccountMinTrades < 1 {
		return fmt.Errorf("cross_account_min_trades must be at least 1, got %d", c.CrossAccountMinTrades)
	}
	return nil
}

// window returns the buffer retention as a duration.
func (c Config) window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}
