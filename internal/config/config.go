// Package config loads service configuration from YAML files and
// environment variables, with optional hot-reload of detection policy.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/opencex/sentinel/internal/sentinel"
)

// Config is the full service configuration.
type Config struct {
	LogLevel    string          `json:"log_level" mapstructure:"log_level"`
	MetricsAddr string          `json:"metrics_addr" mapstructure:"metrics_addr"`
	Detection   sentinel.Config `json:"detection" mapstructure:"detection"`
}

// Loader reads configuration and watches the loaded file for changes.
type Loader struct {
	mu     sync.RWMutex
	viper  *viper.Viper
	logger *zap.Logger
	config *Config
}

// NewLoader creates a config loader.
func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{
		viper:  viper.New(),
		logger: logger,
	}
}

// Load reads the first existing path, merges environment variables under
// the SENTINEL_ prefix, applies defaults and validates the result.
func (l *Loader) Load(configPaths ...string) (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.viper.SetConfigType("yaml")
	l.viper.AutomaticEnv()
	l.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.viper.SetEnvPrefix("SENTINEL")
	l.setDefaults()

	if len(configPaths) == 0 {
		configPaths = []string{"./config.yaml", "./configs/config.yaml", "/etc/sentinel/config.yaml"}
	}
	for _, path := range configPaths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			l.logger.Debug("config file not found, skipping", zap.String("path", path))
			continue
		}
		l.viper.SetConfigFile(path)
		if err := l.viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		l.logger.Info("loaded configuration file", zap.String("path", path))
		break
	}

	var cfg Config
	if err := l.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Detection.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	l.config = &cfg
	return &cfg, nil
}

// Watch re-reads the loaded file on change and hands the new config to
// onReload. Invalid updates are logged and discarded; the previous
// configuration stays in effect.
func (l *Loader) Watch(onReload func(Config)) {
	l.viper.OnConfigChange(func(ev fsnotify.Event) {
		l.mu.Lock()
		defer l.mu.Unlock()

		var cfg Config
		if err := l.viper.Unmarshal(&cfg); err != nil {
			l.logger.Error("config reload failed", zap.String("file", ev.Name), zap.Error(err))
			return
		}
		if err := cfg.Detection.Validate(); err != nil {
			l.logger.Error("reloaded config rejected", zap.String("file", ev.Name), zap.Error(err))
			return
		}
		l.config = &cfg
		l.logger.Info("configuration reloaded", zap.String("file", ev.Name))
		onReload(cfg)
	})
	l.viper.WatchConfig()
}

// Current returns the most recently loaded configuration.
func (l *Loader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

func (l *Loader) setDefaults() {
	det := sentinel.DefaultConfig()

	l.viper.SetDefault("log_level", "info")
	l.viper.SetDefault("metrics_addr", ":9109")
	l.viper.SetDefault("detection.window_minutes", det.WindowMinutes)
	l.viper.SetDefault("detection.spoofing_max_lifetime", det.SpoofingMaxLifetime)
	l.viper.SetDefault("detection.spoofing_min_amount", det.SpoofingMinAmount)
	l.viper.SetDefault("detection.sandwich_window", det.SandwichWindow)
	l.viper.SetDefault("detection.layering_buy_ratio", det.LayeringBuyRatio)
	l.viper.SetDefault("detection.layering_sell_ratio", det.LayeringSellRatio)
	l.viper.SetDefault("detection.volume_min_samples", det.VolumeMinSamples)
	l.viper.SetDefault("detection.volume_zscore_threshold", det.VolumeZScoreThreshold)
	l.viper.SetDefault("detection.volume_pause_minutes", det.VolumePauseMinutes)
	l.viper.SetDefault("detection.cross_account_min_trades", det.CrossAccountMinTrades)
}
