package sentinel

import (
	"time"

	"github.com/shopspring/decimal"
)

// Buffer rows carry the event fields the detectors read, flattened so a
// prune or scan never chases pointers. Rows arrive in ingestion order,
// which may diverge from timestamp order.

type tradeRow struct {
	correlationID string
	causationID   string
	tradeID       string
	buyerID       string
	sellerID      string
	asset         string
	amount        decimal.Decimal
	price         decimal.Decimal
	timestamp     time.Time
}

type orderRow struct {
	correlationID string
	causationID   string
	orderID       string
	userID        string
	asset         string
	side          string
	amount        decimal.Decimal
	price         decimal.Decimal
	status        string
	timestamp     time.Time
}

// tradeWindow is an append-only sliding window over trade rows. It only
// shrinks via prune; after prune no row is older than the cutoff.
type tradeWindow struct {
	rows []tradeRow
}

func (w *tradeWindow) append(r tradeRow) {
	w.rows = append(w.rows, r)
}

// prune drops every row with timestamp at or before cutoff. Rows are not
// timestamp-sorted, so the whole slice is rewritten in place.
func (w *tradeWindow) prune(cutoff time.Time) {
	kept := w.rows[:0]
	for _, r := range w.rows {
		if r.timestamp.After(cutoff) {
			kept = append(kept, r)
		}
	}
	w.rows = kept
}

func (w *tradeWindow) size() int { return len(w.rows) }

func (w *tradeWindow) countSince(t time.Time) int {
	var n int
	for _, r := range w.rows {
		if r.timestamp.After(t) {
			n++
		}
	}
	return n
}

// orderWindow is the order-event counterpart of tradeWindow.
type orderWindow struct {
	rows []orderRow
}

func (w *orderWindow) append(r orderRow) {
	w.rows = append(w.rows, r)
}

func (w *orderWindow) prune(cutoff time.Time) {
	kept := w.rows[:0]
	for _, r := range w.rows {
		if r.timestamp.After(cutoff) {
			kept = append(kept, r)
		}
	}
	w.rows = kept
}

func (w *orderWindow) size() int { return len(w.rows) }

func (w *orderWindow) countSince(t time.Time) int {
	var n int
	for _, r := range w.rows {
		if r.timestamp.After(t) {
			n++
		}
	}
	return n
}
