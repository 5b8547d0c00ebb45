package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepthLevels is the number of price levels kept on each side of the book.
const DepthLevels = 5

// Side is the aggressor side of a trade.
type Side int

const (
	// Buy side.
	Buy Side = 1
	// Sell side.
	Sell Side = 2
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// OrderBookLevel is a single price level with its aggregated volume.
type OrderBookLevel struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// Equal reports whether both price and volume match by value.
func (l OrderBookLevel) Equal(o OrderBookLevel) bool {
	return l.Price.Equal(o.Price) && l.Volume.Equal(o.Volume)
}

// L2Depth is an order book snapshot of the top levels, best price first.
// Unpopulated levels are zero valued.
type L2Depth struct {
	DateTime time.Time
	Bids     [DepthLevels]OrderBookLevel
	Asks     [DepthLevels]OrderBookLevel
}

// Equal compares all price and volume pairs of both sides. Capture time is ignored.
func (d L2Depth) Equal(o L2Depth) bool {
	for i := 0; i < DepthLevels; i++ {
		if !d.Bids[i].Equal(o.Bids[i]) || !d.Asks[i].Equal(o.Asks[i]) {
			return false
		}
	}
	return true
}

// IsDiff is the negation of Equal.
func (d L2Depth) IsDiff(o L2Depth) bool {
	return !d.Equal(o)
}

// Trade represents a single venue trade normalized to a common form.
// TradeID keeps the textual form sent by the venue.
type Trade struct {
	DateTime time.Time
	TradeID  string
	Price    decimal.Decimal
	Volume   decimal.Decimal
	Side     Side
}
