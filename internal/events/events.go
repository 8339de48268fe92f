package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event kinds form a closed set; the bus routes on these tags.
const (
	KindOrderEvent          = "OrderEvent"
	KindTradeEvent          = "TradeEvent"
	KindMarketAbuseDetected = "MarketAbuseDetected"
)

// Order sides and lifecycle transitions.
const (
	SideBuy  = "buy"
	SideSell = "sell"

	OrderTypeNew    = "new"
	OrderTypeCancel = "cancel"
	OrderTypeFill   = "fill"

	OrderStatusNew      = "NEW"
	OrderStatusCanceled = "CANCELED"
	OrderStatusFilled   = "FILLED"
)

// Abuse type tags carried by MarketAbuseDetected.
const (
	AbuseWashTradingCircular     = "WASH_TRADING_CIRCULAR"
	AbuseWashTradingCrossAccount = "WASH_TRADING_CROSS_ACCOUNT"
	AbuseSandwich                = "MARKET_MANIPULATION_SANDWICH"
	AbuseSpoofing                = "MARKET_MANIPULATION_SPOOFING"
	AbuseLayering                = "MARKET_MANIPULATION_LAYERING"
	AbuseVolumeAnomaly           = "CIRCUIT_BREAKER_VOLUME_ANOMALY"
)

// Alert severities.
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// Event is the contract every published event satisfies. Kind is a
// non-empty tag identifying the concrete type; correlation and causation
// ids link events across a causal chain independent of delivery order.
type Event interface {
	Kind() string
	ID() string
	Correlation() string
	Causation() string
}

// Envelope carries the identifiers shared by all events. Embed it in a
// concrete event type.
type Envelope struct {
	EventID       string `json:"event_id"`
	CorrelationID string `json:"correlation_id"`
	CausationID   string `json:"causation_id,omitempty"`
}

// NewEnvelope returns an envelope opening a fresh causal chain.
func NewEnvelope() Envelope {
	return Envelope{EventID: uuid.NewString(), CorrelationID: uuid.NewString()}
}

// CausedBy derives an envelope for an event triggered by parent: the
// correlation id is inherited (generated if the parent lacks one) and the
// causation id names the parent event.
func CausedBy(parent Event) Envelope {
	corr := parent.Correlation()
	if corr == "" {
		corr = uuid.NewString()
	}
	return Envelope{
		EventID:       uuid.NewString(),
		CorrelationID: corr,
		CausationID:   parent.ID(),
	}
}

func (e Envelope) ID() string          { return e.EventID }
func (e Envelope) Correlation() string { return e.CorrelationID }
func (e Envelope) Causation() string   { return e.CausationID }

// OrderEvent is one lifecycle transition of a resting order. Several
// OrderEvents may share an OrderID, one per transition.
type OrderEvent struct {
	Envelope
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	Asset     string          `json:"asset"`
	Side      string          `json:"side"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
}

func (OrderEvent) Kind() string { return KindOrderEvent }

// TradeEvent is one executed match between two parties. Buyer and seller
// are distinct by convention, not structurally enforced.
type TradeEvent struct {
	Envelope
	TradeID   string          `json:"trade_id"`
	BuyerID   string          `json:"buyer_id"`
	SellerID  string          `json:"seller_id"`
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

func (TradeEvent) Kind() string { return KindTradeEvent }

// MarketAbuseDetected is the alert published when a detector fires.
// Details embeds the concrete actor id(s) and the numeric evidence.
type MarketAbuseDetected struct {
	Envelope
	AbuseType string    `json:"abuse_type"`
	Severity  string    `json:"severity"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

func (MarketAbuseDetected) Kind() string { return KindMarketAbuseDetected }
