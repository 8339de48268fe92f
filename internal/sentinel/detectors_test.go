package sentinel

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/opencex/sentinel/internal/events"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(DefaultConfig(), nil, zaptest.NewLogger(t))
}

func TestSpoofingBoundaries(t *testing.T) {
	cases := []struct {
		name     string
		lifetime time.Duration
		amount   float64
		alert    bool
	}{
		{"fast cancel large order", 4900 * time.Millisecond, 11, true},
		{"slow cancel large order", 5100 * time.Millisecond, 11, false},
		{"fast cancel small order", 4900 * time.Millisecond, 9, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := newTestEngine(t)
			created := time.Now().Add(-time.Minute)

			require.Nil(t, engine.IngestOrder(order("o1", "spoofer", events.OrderStatusNew, tc.amount, created)))

			canceled := order("o1", "spoofer", events.OrderStatusCanceled, tc.amount, created.Add(tc.lifetime))
			alert := engine.IngestOrder(canceled)

			if !tc.alert {
				assert.Nil(t, alert)
				return
			}
			require.NotNil(t, alert)
			assert.Equal(t, events.AbuseSpoofing, alert.AbuseType)
			assert.Equal(t, events.SeverityHigh, alert.Severity)
			assert.Contains(t, alert.Details, "spoofer")
			assert.Contains(t, alert.Details, "11")
		})
	}
}

func TestSpoofingWithoutPlacementIsNotEvaluable(t *testing.T) {
	engine := newTestEngine(t)

	// Cancellation of an order never seen as NEW: nothing to measure.
	alert := engine.IngestOrder(order("ghost", "u1", events.OrderStatusCanceled, 50, time.Now()))
	assert.Nil(t, alert)
}

func TestSpoofingIgnoresPlacementAfterCancellation(t *testing.T) {
	engine := newTestEngine(t)
	now := time.Now()

	// Event time and arrival order diverge: the NEW row carries a
	// timestamp after the cancellation. There is no prior placement to
	// measure a lifetime against, so the cancel is not evaluable.
	require.Nil(t, engine.IngestOrder(order("o1", "u1", events.OrderStatusNew, 50, now.Add(10*time.Second))))

	alert := engine.IngestOrder(order("o1", "u1", events.OrderStatusCanceled, 50, now))
	assert.Nil(t, alert)
}

func TestSpoofingSkipsLaterPlacementForEarlierOne(t *testing.T) {
	engine := newTestEngine(t)
	now := time.Now()

	// One placement before the cancel, one after it. Lifetime counts
	// from the prior placement only.
	require.Nil(t, engine.IngestOrder(order("o1", "u1", events.OrderStatusNew, 50, now.Add(-2*time.Second))))
	require.Nil(t, engine.IngestOrder(order("o1", "u1", events.OrderStatusNew, 50, now.Add(10*time.Second))))

	alert := engine.IngestOrder(order("o1", "u1", events.OrderStatusCanceled, 50, now))
	require.NotNil(t, alert)
	assert.Equal(t, events.AbuseSpoofing, alert.AbuseType)
	assert.Contains(t, alert.Details, "2.00s")
}

func TestSpoofingUsesMostRecentPlacement(t *testing.T) {
	engine := newTestEngine(t)
	now := time.Now()

	// The order was re-placed; lifetime counts from the latest NEW row.
	require.Nil(t, engine.IngestOrder(order("o1", "u1", events.OrderStatusNew, 20, now.Add(-10*time.Minute))))
	require.Nil(t, engine.IngestOrder(order("o1", "u1", events.OrderStatusNew, 20, now.Add(-2*time.Second))))

	alert := engine.IngestOrder(order("o1", "u1", events.OrderStatusCanceled, 20, now))
	require.NotNil(t, alert)
	assert.Equal(t, events.AbuseSpoofing, alert.AbuseType)
}

func TestLayeringImbalance(t *testing.T) {
	engine := newTestEngine(t)

	book := func(buy, sell float64) []BookLevel {
		return []BookLevel{
			{Side: events.SideBuy, Amount: decimal.NewFromFloat(buy)},
			{Side: events.SideSell, Amount: decimal.NewFromFloat(sell)},
		}
	}

	t.Run("buy side imbalance", func(t *testing.T) {
		alert := engine.DetectLayering(book(1200, 100))
		require.NotNil(t, alert)
		assert.Equal(t, events.AbuseLayering, alert.AbuseType)
		assert.Equal(t, events.SeverityMedium, alert.Severity)
		assert.Contains(t, alert.Details, "buy side")
	})

	t.Run("sell side imbalance", func(t *testing.T) {
		alert := engine.DetectLayering(book(5, 100))
		require.NotNil(t, alert)
		assert.Contains(t, alert.Details, "sell side")
	})

	t.Run("balanced book", func(t *testing.T) {
		assert.Nil(t, engine.DetectLayering(book(100, 90)))
	})

	t.Run("empty side never divides by zero", func(t *testing.T) {
		assert.NotPanics(t, func() {
			assert.Nil(t, engine.DetectLayering([]BookLevel{
				{Side: events.SideBuy, Amount: decimal.NewFromFloat(500)},
			}))
			assert.Nil(t, engine.DetectLayering([]BookLevel{
				{Side: events.SideSell, Amount: decimal.NewFromFloat(500)},
			}))
			assert.Nil(t, engine.DetectLayering(nil))
		})
	})
}

func seedTrades(t *testing.T, engine *Engine, asset string, amounts []float64) {
	t.Helper()
	now := time.Now()
	for i, amount := range amounts {
		tr := trade(fmt.Sprintf("t%d", i), fmt.Sprintf("b%d", i), fmt.Sprintf("s%d", i),
			asset, amount, now.Add(-time.Duration(i)*time.Second))
		engine.IngestTrade(tr)
	}
}

func TestVolumeAnomalyInsufficientHistory(t *testing.T) {
	engine := newTestEngine(t)
	seedTrades(t, engine, "BTC-EUR", []float64{1, 2, 3, 4, 5})

	assert.Nil(t, engine.DetectVolumeAnomaly("BTC-EUR", 1000))
}

func TestVolumeAnomalyZeroVariance(t *testing.T) {
	engine := newTestEngine(t)
	amounts := make([]float64, 40)
	for i := range amounts {
		amounts[i] = 7
	}
	seedTrades(t, engine, "BTC-EUR", amounts)

	assert.Nil(t, engine.DetectVolumeAnomaly("BTC-EUR", 1000))
}

func TestVolumeAnomalyThreshold(t *testing.T) {
	engine := newTestEngine(t)
	amounts := make([]float64, 40)
	for i := range amounts {
		amounts[i] = float64(10 + i%5) // mean 12, modest spread
	}
	seedTrades(t, engine, "BTC-EUR", amounts)

	mean, std := sampleStats(amounts)
	require.Greater(t, std, 0.0)

	within := mean + 4.9*std
	assert.Nil(t, engine.DetectVolumeAnomaly("BTC-EUR", within))

	beyond := mean + 5.1*std
	alert := engine.DetectVolumeAnomaly("BTC-EUR", beyond)
	require.NotNil(t, alert)
	assert.Equal(t, events.AbuseVolumeAnomaly, alert.AbuseType)
	assert.Equal(t, events.SeverityCritical, alert.Severity)

	z := (beyond - mean) / std
	assert.Contains(t, alert.Details, fmt.Sprintf("Z-Score: %.6f", z))
	assert.Contains(t, alert.Details, "Pause trading for 10 minutes")
}

func TestVolumeAnomalyNegativeSpike(t *testing.T) {
	engine := newTestEngine(t)
	amounts := make([]float64, 40)
	for i := range amounts {
		amounts[i] = float64(100 + i%7)
	}
	seedTrades(t, engine, "BTC-EUR", amounts)

	mean, std := sampleStats(amounts)
	alert := engine.DetectVolumeAnomaly("BTC-EUR", mean-6*std)
	require.NotNil(t, alert)
	assert.Equal(t, events.AbuseVolumeAnomaly, alert.AbuseType)
}

func TestVolumeAnomalyIgnoresOtherAssets(t *testing.T) {
	engine := newTestEngine(t)
	amounts := make([]float64, 40)
	for i := range amounts {
		amounts[i] = float64(10 + i%5)
	}
	seedTrades(t, engine, "ETH-EUR", amounts)

	// Only five BTC trades; the ETH history must not count.
	seedTrades(t, engine, "BTC-EUR", []float64{1, 2, 3, 4, 5})
	assert.Nil(t, engine.DetectVolumeAnomaly("BTC-EUR", 10000))
}

func TestCrossAccountWashTrading(t *testing.T) {
	engine := newTestEngine(t)
	now := time.Now()
	cluster := []string{"acct-1", "acct-2", "acct-3"}

	t.Run("needs at least two accounts", func(t *testing.T) {
		assert.Nil(t, engine.DetectCrossAccountWashTrading([]string{"acct-1"}, 30))
	})

	for i := 0; i < 6; i++ {
		buyer := cluster[i%3]
		seller := cluster[(i+1)%3]
		engine.IngestTrade(trade(fmt.Sprintf("x%d", i), buyer, seller, "BTC-EUR", 10,
			now.Add(-time.Duration(i)*time.Minute)))
	}

	t.Run("at threshold stays silent", func(t *testing.T) {
		// 6 trades in the buffer but only 5 inside a 5-minute window is
		// not above the >5 threshold.
		assert.Nil(t, engine.DetectCrossAccountWashTrading(cluster, 5))
	})

	t.Run("above threshold fires", func(t *testing.T) {
		alert := engine.DetectCrossAccountWashTrading(cluster, 30)
		require.NotNil(t, alert)
		assert.Equal(t, events.AbuseWashTradingCrossAccount, alert.AbuseType)
		assert.Equal(t, events.SeverityHigh, alert.Severity)
		assert.Contains(t, alert.Details, "3 linked accounts")
		assert.Contains(t, alert.Details, "6 trades")
		assert.Contains(t, alert.Details, "60 units")
	})

	t.Run("outsider trades do not count", func(t *testing.T) {
		other := newTestEngine(t)
		for i := 0; i < 10; i++ {
			other.IngestTrade(trade(fmt.Sprintf("y%d", i), "acct-1", "stranger", "BTC-EUR", 10,
				now.Add(-time.Duration(i)*time.Second)))
		}
		assert.Nil(t, other.DetectCrossAccountWashTrading(cluster, 30))
	})
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cases := []struct {
		name  string
		tweak func(*Config)
	}{
		{"zero window", func(c *Config) { c.WindowMinutes = 0 }},
		{"negative spoofing lifetime", func(c *Config) { c.SpoofingMaxLifetime = -time.Second }},
		{"zero sandwich window", func(c *Config) { c.SandwichWindow = 0 }},
		{"inverted layering bounds", func(c *Config) { c.LayeringBuyRatio = 0.05 }},
		{"one sample minimum", func(c *Config) { c.VolumeMinSamples = 1 }},
		{"zero z threshold", func(c *Config) { c.VolumeZScoreThreshold = 0 }},
		{"zero cross-account trades", func(c *Config) { c.CrossAccountMinTrades = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.tweak(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
