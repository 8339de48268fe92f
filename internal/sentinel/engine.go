package sentinel

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opencex/sentinel/internal/events"
	"github.com/opencex/sentinel/pkg/metrics"
)

// recentWindow bounds the "recent events" counters in HealthMetrics.
const recentWindow = 5 * time.Minute

// Engine ingests order and trade events, keeps one sliding-window buffer
// per event kind, and runs a fixed-priority battery of abuse detectors on
// every ingestion. At most one alert is returned per ingested event.
//
// The append+prune+detect sequence is the critical section: each buffer
// has its own mutex so detectors always read a consistent, freshly pruned
// window.
type Engine struct {
	cfg    Config
	logger *zap.SugaredLogger
	bus    *events.Bus

	tradesMu sync.Mutex
	trades   tradeWindow

	ordersMu sync.Mutex
	orders   orderWindow

	// Trade-path detectors in priority order. Evaluation stops at the
	// first detector that fires; this short-circuit is a contract, not
	// an artifact of control flow.
	tradeDetectors []tradeDetector
}

type tradeDetector struct {
	name   string
	detect func(events.TradeEvent) *events.MarketAbuseDetected
}

// NewEngine creates a sentinel engine. The bus receives alerts from the
// async ingestion paths; it may be nil when only the synchronous API is
// used.
func NewEngine(cfg Config, bus *events.Bus, logger *zap.Logger) *Engine {
	e := &Engine{
		cfg:    cfg,
		logger: logger.Sugar().Named("sentinel"),
		bus:    bus,
	}
	e.tradeDetectors = []tradeDetector{
		{name: "wash_trading_circular", detect: e.detectWashTrading},
		{name: "sandwich", detect: e.detectSandwich},
	}
	return e
}

// SetConfig swaps the detection policy. Both buffers are locked so no
// in-flight ingestion observes a half-applied policy.
func (e *Engine) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.tradesMu.Lock()
	e.ordersMu.Lock()
	e.cfg = cfg
	e.ordersMu.Unlock()
	e.tradesMu.Unlock()
	e.logger.Infow("detection policy updated", "window_minutes", cfg.WindowMinutes)
	return nil
}

// IngestTrade appends the trade to the trade buffer, prunes rows outside
// the window, and runs the trade detectors in priority order. The first
// positive result wins; remaining detectors are not evaluated.
func (e *Engine) IngestTrade(trade events.TradeEvent) *events.MarketAbuseDetected {
	metrics.EventsIngested.WithLabelValues(events.KindTradeEvent).Inc()
	timer := time.Now()

	e.tradesMu.Lock()
	defer func() {
		metrics.BufferRows.WithLabelValues("trades").Set(float64(e.trades.size()))
		e.tradesMu.Unlock()
		metrics.DetectionLatency.Observe(time.Since(timer).Seconds())
	}()

	e.trades.append(tradeRow{
		correlationID: trade.CorrelationID,
		causationID:   trade.CausationID,
		tradeID:       trade.TradeID,
		buyerID:       trade.BuyerID,
		sellerID:      trade.SellerID,
		asset:         trade.Asset,
		amount:        trade.Amount,
		price:         trade.Price,
		timestamp:     trade.Timestamp,
	})
	e.trades.prune(time.Now().Add(-e.cfg.window()))

	for _, d := range e.tradeDetectors {
		if alert := e.runDetector(d.name, trade, d.detect); alert != nil {
			return alert
		}
	}
	return nil
}

// IngestTradeAsync runs the synchronous path, then logs and publishes any
// alert on the event bus. Detection itself never suspends; only the
// publish happens after the result is definitive.
func (e *Engine) IngestTradeAsync(trade events.TradeEvent) {
	alert := e.IngestTrade(trade)
	if alert != nil {
		e.publishAlert(alert)
	}
}

// IngestOrder appends the order event to the order buffer and prunes it.
// Detection runs only for cancellations, which are evaluated for
// spoofing; every other transition just extends the window.
func (e *Engine) IngestOrder(order events.OrderEvent) *events.MarketAbuseDetected {
	metrics.EventsIngested.WithLabelValues(events.KindOrderEvent).Inc()
	timer := time.Now()

	e.ordersMu.Lock()
	defer func() {
		metrics.BufferRows.WithLabelValues("orders").Set(float64(e.orders.size()))
		e.ordersMu.Unlock()
		metrics.DetectionLatency.Observe(time.Since(timer).Seconds())
	}()

	e.orders.append(orderRow{
		correlationID: order.CorrelationID,
		causationID:   order.CausationID,
		orderID:       order.OrderID,
		userID:        order.UserID,
		asset:         order.Asset,
		side:          order.Side,
		amount:        order.Amount,
		price:         order.Price,
		status:        order.Status,
		timestamp:     order.Timestamp,
	})
	e.orders.prune(time.Now().Add(-e.cfg.window()))

	if order.Status == events.OrderStatusCanceled {
		return e.runOrderDetector("spoofing", order, e.detectSpoofing)
	}
	return nil
}

// IngestOrderAsync runs the synchronous path, then logs and publishes any
// alert on the event bus.
func (e *Engine) IngestOrderAsync(order events.OrderEvent) {
	alert := e.IngestOrder(order)
	if alert != nil {
		e.publishAlert(alert)
	}
}

func (e *Engine) publishAlert(alert *events.MarketAbuseDetected) {
	e.logger.Errorw("MARKET ABUSE DETECTED",
		"abuse_type", alert.AbuseType,
		"severity", alert.Severity,
		"details", alert.Details,
		"correlation_id", alert.CorrelationID)
	if e.bus != nil {
		e.bus.Publish(*alert)
	}
}

// runDetector executes one trade detector and converts a panic into "no
// alert" for this ingestion. A defect in one detector never halts
// ingestion of subsequent events.
func (e *Engine) runDetector(name string, trade events.TradeEvent, detect func(events.TradeEvent) *events.MarketAbuseDetected) (alert *events.MarketAbuseDetected) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorw("detector panicked",
				"detector", name,
				"trade_id", trade.TradeID,
				"recover", r)
			alert = nil
		}
	}()
	alert = detect(trade)
	if alert != nil {
		metrics.AlertsRaised.WithLabelValues(alert.AbuseType, alert.Severity).Inc()
	}
	return alert
}

func (e *Engine) runOrderDetector(name string, order events.OrderEvent, detect func(events.OrderEvent) *events.MarketAbuseDetected) (alert *events.MarketAbuseDetected) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorw("detector panicked",
				"detector", name,
				"order_id", order.OrderID,
				"recover", r)
			alert = nil
		}
	}()
	alert = detect(order)
	if alert != nil {
		metrics.AlertsRaised.WithLabelValues(alert.AbuseType, alert.Severity).Inc()
	}
	return alert
}

// HealthMetrics is a diagnostic snapshot for observability tooling.
type HealthMetrics struct {
	TradeBufferSize int       `json:"trade_buffer_size"`
	OrderBufferSize int       `json:"order_buffer_size"`
	WindowMinutes   int       `json:"window_minutes"`
	RecentTrades    int       `json:"recent_trades"`
	RecentOrders    int       `json:"recent_orders"`
	Timestamp       time.Time `json:"timestamp"`
}

// GetHealthMetrics reports buffer sizes, the configured window and event
// counts over the last five minutes.
func (e *Engine) GetHealthMetrics() HealthMetrics {
	now := time.Now()
	recentCutoff := now.Add(-recentWindow)

	e.tradesMu.Lock()
	tradeSize := e.trades.size()
	recentTrades := e.trades.countSince(recentCutoff)
	windowMinutes := e.cfg.WindowMinutes
	e.tradesMu.Unlock()

	e.ordersMu.Lock()
	orderSize := e.orders.size()
	recentOrders := e.orders.countSince(recentCutoff)
	e.ordersMu.Unlock()

	return HealthMetrics{
		TradeBufferSize: tradeSize,
		OrderBufferSize: orderSize,
		WindowMinutes:   windowMinutes,
		RecentTrades:    recentTrades,
		RecentOrders:    recentOrders,
		Timestamp:       now,
	}
}
