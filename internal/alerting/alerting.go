// Package alerting consumes MarketAbuseDetected events from the bus and
// turns them into structured alert records for downstream compliance
// tooling. Delivery here is best-effort: a suppressed or failed alert is
// not retried.
package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opencex/sentinel/internal/events"
)

// HandlerName identifies the dispatcher on the event bus.
const HandlerName = "alert-dispatcher"

// Config tunes alert dispatch.
type Config struct {
	// RateLimitPerType caps alerts per abuse type inside RateLimitWindow;
	// zero disables the limit.
	RateLimitPerType int           `json:"rate_limit_per_type" mapstructure:"rate_limit_per_type"`
	RateLimitWindow  time.Duration `json:"rate_limit_window" mapstructure:"rate_limit_window"`
}

// DefaultConfig returns dispatch defaults.
func DefaultConfig() Config {
	return Config{
		RateLimitPerType: 20,
		RateLimitWindow:  time.Minute,
	}
}

// Dispatcher receives abuse alerts and logs them, applying a per-type
// rate limit to keep a noisy detector from flooding downstream channels.
type Dispatcher struct {
	logger *zap.Logger
	cfg    Config

	mu         sync.Mutex
	typeCounts map[string]int
	lastReset  time.Time
	suppressed int64
	dispatched int64
}

// NewDispatcher creates an alert dispatcher.
func NewDispatcher(cfg Config, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		logger:     logger.Named("alerting"),
		cfg:        cfg,
		typeCounts: make(map[string]int),
		lastReset:  time.Now(),
	}
}

// Register subscribes the dispatcher to abuse alerts on the bus.
func (d *Dispatcher) Register(bus *events.Bus) {
	bus.Subscribe(events.KindMarketAbuseDetected, HandlerName, d.Handle)
}

// Handle processes one alert event.
func (d *Dispatcher) Handle(ctx context.Context, event events.Event) error {
	alert, ok := event.(events.MarketAbuseDetected)
	if !ok {
		return fmt.Errorf("unexpected event type %T for kind %s", event, event.Kind())
	}

	if !d.allow(alert.AbuseType) {
		d.logger.Warn("alert suppressed by rate limit",
			zap.String("abuse_type", alert.AbuseType),
			zap.String("correlation_id", alert.CorrelationID))
		return nil
	}

	d.logger.Error("market abuse alert",
		zap.String("abuse_type", alert.AbuseType),
		zap.String("severity", alert.Severity),
		zap.String("details", alert.Details),
		zap.String("correlation_id", alert.CorrelationID),
		zap.String("causation_id", alert.CausationID),
		zap.Time("detected_at", alert.Timestamp))
	return nil
}

// allow applies the per-type rate limit.
func (d *Dispatcher) allow(abuseType string) bool {
	if d.cfg.RateLimitPerType <= 0 {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if time.Since(d.lastReset) > d.cfg.RateLimitWindow {
		d.typeCounts = make(map[string]int)
		d.lastReset = time.Now()
	}
	if d.typeCounts[abuseType] >= d.cfg.RateLimitPerType {
		d.suppressed++
		return false
	}
	d.typeCounts[abuseType]++
	d.dispatched++
	return true
}

// Stats reports dispatched and suppressed alert counts.
func (d *Dispatcher) Stats() (dispatched, suppressed int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dispatched, d.suppressed
}
