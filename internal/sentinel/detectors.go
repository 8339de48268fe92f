package sentinel

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opencex/sentinel/internal/events"
	"github.com/opencex/sentinel/pkg/metrics"
)

// detectWashTrading flags circular trading: the counterparties of the
// current trade already traded the same asset in the opposite direction
// inside the window. Relative timestamp ordering does not matter, only
// co-presence in the window. Caller holds tradesMu.
func (e *Engine) detectWashTrading(trade events.TradeEvent) *events.MarketAbuseDetected {
	for _, r := range e.trades.rows {
		if r.asset != trade.Asset {
			continue
		}
		if r.buyerID == trade.SellerID && r.sellerID == trade.BuyerID {
			return &events.MarketAbuseDetected{
				Envelope:  events.CausedBy(trade),
				AbuseType: events.AbuseWashTradingCircular,
				Severity:  events.SeverityHigh,
				Details: fmt.Sprintf(
					"Circular trade detected. %s <-> %s traded same asset within window.",
					trade.BuyerID, trade.SellerID),
				Timestamp: time.Now().UTC(),
			}
		}
	}
	return nil
}

// detectSandwich treats the current trade as a candidate back-run: the
// seller is the suspected attacker. It looks for the attacker's most
// recent buy in the tight sub-window before this trade (the front-run),
// then for at least one trade by a different buyer squeezed in between
// (the victim). Caller holds tradesMu.
func (e *Engine) detectSandwich(trade events.TradeEvent) *events.MarketAbuseDetected {
	attacker := trade.SellerID

	var sameAsset []tradeRow
	for _, r := range e.trades.rows {
		if r.asset == trade.Asset {
			sameAsset = append(sameAsset, r)
		}
	}
	if len(sameAsset) < 3 {
		return nil
	}

	// Most recent buy by the attacker inside the sub-window, strictly
	// before the current trade.
	earliest := trade.Timestamp.Add(-e.cfg.SandwichWindow)
	var frontRun *tradeRow
	for i := range sameAsset {
		r := &sameAsset[i]
		if r.buyerID != attacker {
			continue
		}
		if !r.timestamp.Before(trade.Timestamp) || !r.timestamp.After(earliest) {
			continue
		}
		if frontRun == nil || r.timestamp.After(frontRun.timestamp) {
			frontRun = r
		}
	}
	if frontRun == nil {
		return nil
	}

	// Victim buys strictly between front-run and back-run.
	var victims int
	for _, r := range sameAsset {
		if r.buyerID == attacker {
			continue
		}
		if r.timestamp.After(frontRun.timestamp) && r.timestamp.Before(trade.Timestamp) {
			victims++
		}
	}
	if victims == 0 {
		return nil
	}

	return &events.MarketAbuseDetected{
		Envelope:  events.CausedBy(trade),
		AbuseType: events.AbuseSandwich,
		Severity:  events.SeverityCritical,
		Details: fmt.Sprintf(
			"Sandwich attack detected. Attacker %s front-ran %d trades.",
			attacker, victims),
		Timestamp: time.Now().UTC(),
	}
}

// detectSpoofing evaluates a cancellation: a large order cancelled
// shortly after placement. The lifetime is measured against the most
// recent NEW event for the same order id; a cancellation for an order
// never seen as NEW is not evaluable. Caller holds ordersMu.
func (e *Engine) detectSpoofing(canceled events.OrderEvent) *events.MarketAbuseDetected {
	var created *orderRow
	for i := range e.orders.rows {
		r := &e.orders.rows[i]
		if r.orderID != canceled.OrderID || r.status != events.OrderStatusNew {
			continue
		}
		// Event time may diverge from arrival order; a placement
		// timestamped at or after the cancellation is not its origin.
		if !r.timestamp.Before(canceled.Timestamp) {
			continue
		}
		if created == nil || r.timestamp.After(created.timestamp) {
			created = r
		}
	}
	if created == nil {
		return nil
	}

	lifetime := canceled.Timestamp.Sub(created.timestamp).Seconds()
	minAmount := decimal.NewFromFloat(e.cfg.SpoofingMinAmount)

	if lifetime < e.cfg.SpoofingMaxLifetime.Seconds() && canceled.Amount.GreaterThan(minAmount) {
		return &events.MarketAbuseDetected{
			Envelope:  events.CausedBy(canceled),
			AbuseType: events.AbuseSpoofing,
			Severity:  events.SeverityHigh,
			Details: fmt.Sprintf(
				"Potential spoofing: user %s cancelled large order of %s units after %.2fs.",
				canceled.UserID, canceled.Amount.String(), lifetime),
			Timestamp: time.Now().UTC(),
		}
	}
	return nil
}

// BookLevel is one resting-order row of an order book snapshot.
type BookLevel struct {
	Side   string          `json:"side"`
	Amount decimal.Decimal `json:"amount"`
}

// DetectLayering checks an externally supplied order book snapshot for a
// severe one-sided imbalance. A book empty on either side yields no
// alert rather than a division by zero.
func (e *Engine) DetectLayering(snapshot []BookLevel) *events.MarketAbuseDetected {
	e.tradesMu.Lock()
	cfg := e.cfg
	e.tradesMu.Unlock()

	var buyVolume, sellVolume decimal.Decimal
	for _, level := range snapshot {
		switch level.Side {
		case events.SideBuy:
			buyVolume = buyVolume.Add(level.Amount)
		case events.SideSell:
			sellVolume = sellVolume.Add(level.Amount)
		}
	}
	if buyVolume.IsZero() || sellVolume.IsZero() {
		return nil
	}

	ratio := buyVolume.InexactFloat64() / sellVolume.InexactFloat64()

	var side string
	switch {
	case ratio > cfg.LayeringBuyRatio:
		side = "buy"
	case ratio < cfg.LayeringSellRatio:
		side = "sell"
	default:
		return nil
	}

	alert := &events.MarketAbuseDetected{
		Envelope:  events.NewEnvelope(),
		AbuseType: events.AbuseLayering,
		Severity:  events.SeverityMedium,
		Details: fmt.Sprintf(
			"Severe order book imbalance (%s side). Ratio: %.2f",
			side, ratio),
		Timestamp: time.Now().UTC(),
	}
	metrics.AlertsRaised.WithLabelValues(alert.AbuseType, alert.Severity).Inc()
	return alert
}

// DetectVolumeAnomaly compares a proposed volume against the buffered
// trade history for the asset. With enough samples and non-degenerate
// variance, a z-score beyond the configured threshold trips the circuit
// breaker recommendation.
func (e *Engine) DetectVolumeAnomaly(asset string, currentVolume float64) *events.MarketAbuseDetected {
	e.tradesMu.Lock()
	cfg := e.cfg
	var amounts []float64
	for _, r := range e.trades.rows {
		if r.asset == asset {
			amounts = append(amounts, r.amount.InexactFloat64())
		}
	}
	e.tradesMu.Unlock()

	if len(amounts) < cfg.VolumeMinSamples {
		return nil
	}

	mean, std := sampleStats(amounts)
	if std == 0 {
		return nil
	}

	z := (currentVolume - mean) / std
	if math.Abs(z) <= cfg.VolumeZScoreThreshold {
		return nil
	}

	alert := &events.MarketAbuseDetected{
		Envelope:  events.NewEnvelope(),
		AbuseType: events.AbuseVolumeAnomaly,
		Severity:  events.SeverityCritical,
		Details: fmt.Sprintf(
			"Volume anomaly for %s. Volume: %.2f, Mean: %.2f, Z-Score: %.6f. RECOMMENDATION: Pause trading for %d minutes.",
			asset, currentVolume, mean, z, cfg.VolumePauseMinutes),
		Timestamp: time.Now().UTC(),
	}
	metrics.AlertsRaised.WithLabelValues(alert.AbuseType, alert.Severity).Inc()
	return alert
}

// DetectCrossAccountWashTrading scans the trade buffer for trades where
// both counterparties belong to a cluster of linked accounts. More than
// the configured count inside the given window is reported as suspected
// coordinated wash trading.
func (e *Engine) DetectCrossAccountWashTrading(accountIDs []string, windowMinutes int) *events.MarketAbuseDetected {
	if len(accountIDs) < 2 {
		return nil
	}

	cluster := make(map[string]struct{}, len(accountIDs))
	for _, id := range accountIDs {
		cluster[id] = struct{}{}
	}
	cutoff := time.Now().Add(-time.Duration(windowMinutes) * time.Minute)

	e.tradesMu.Lock()
	cfg := e.cfg
	var count int
	var volume decimal.Decimal
	for _, r := range e.trades.rows {
		if !r.timestamp.After(cutoff) {
			continue
		}
		if _, ok := cluster[r.buyerID]; !ok {
			continue
		}
		if _, ok := cluster[r.sellerID]; !ok {
			continue
		}
		count++
		volume = volume.Add(r.amount)
	}
	e.tradesMu.Unlock()

	if count <= cfg.CrossAccountMinTrades {
		return nil
	}

	alert := &events.MarketAbuseDetected{
		Envelope:  events.NewEnvelope(),
		AbuseType: events.AbuseWashTradingCrossAccount,
		Severity:  events.SeverityHigh,
		Details: fmt.Sprintf(
			"Cross-account wash trading suspected. %d linked accounts executed %d trades totaling %s units in %d minutes.",
			len(accountIDs), count, volume.String(), windowMinutes),
		Timestamp: time.Now().UTC(),
	}
	metrics.AlertsRaised.WithLabelValues(alert.AbuseType, alert.Severity).Inc()
	return alert
}

// sampleStats returns mean and sample standard deviation (n-1 divisor).
func sampleStats(values []float64) (mean, std float64) {
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		variance += math.Pow(v-mean, 2)
	}
	variance /= float64(len(values) - 1)

	return mean, math.Sqrt(variance)
}
