package instrument

import (
	"strconv"
	"sync"

	"github.com/milkywaybrain/bitfeeds/internal/market"
	"github.com/pkg/errors"
)

// Instrument holds the live state of a single market on an exchange.
// It is shared by the order book and trade workers, so every field is
// read and written under mu.
type Instrument struct {
	exchange string
	name     string
	code     string

	mu            sync.Mutex
	depth         market.L2Depth
	prevDepth     market.L2Depth
	exchTradeID   string
	orderBookSeq  uint64
	tradeSeq      uint64
	recovered     bool
	snapshotTable string
}

// New creates an instrument for the exchange market code.
// name is the commit name used in storage.
func New(exchange, name, code string) *Instrument {
	return &Instrument{
		exchange:    exchange,
		name:        name,
		code:        code,
		exchTradeID: "0",
	}
}

// Exchange returns the exchange name.
func (i *Instrument) Exchange() string { return i.exchange }

// Name returns the instrument name.
func (i *Instrument) Name() string { return i.name }

// Code returns the exchange specific market code.
func (i *Instrument) Code() string { return i.code }

// Reset clears both depths and the recovered flag.
func (i *Instrument) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.depth = market.L2Depth{}
	i.prevDepth = market.L2Depth{}
	i.recovered = false
}

// SetSnapshotTable sets the storage table name.
func (i *Instrument) SetSnapshotTable(table string) {
	i.mu.Lock()
	i.snapshotTable = table
	i.mu.Unlock()
}

// SnapshotTable returns the storage table name.
func (i *Instrument) SnapshotTable() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.snapshotTable
}

// Restore resumes sequences and the trade cursor from already persisted data.
// Values lower than the current ones are ignored.
func (i *Instrument) Restore(orderBookSeq, tradeSeq uint64, exchTradeID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if orderBookSeq > i.orderBookSeq {
		i.orderBookSeq = orderBookSeq
	}
	if tradeSeq > i.tradeSeq {
		i.tradeSeq = tradeSeq
	}
	if exchTradeID == "" {
		return nil
	}
	id, err := ParseTradeID(exchTradeID)
	if err != nil {
		return err
	}
	cur, err := ParseTradeID(i.exchTradeID)
	if err != nil {
		return err
	}
	if id > cur {
		i.exchTradeID = exchTradeID
	}
	return nil
}

// Depth returns the current order book.
func (i *Instrument) Depth() market.L2Depth {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.depth
}

// PrevDepth returns the order book replaced by the last accepted update.
func (i *Instrument) PrevDepth() market.L2Depth {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.prevDepth
}

// UpdateDepth replaces the current book with d if any level differs.
// It returns the new order book sequence and whether the update was accepted.
func (i *Instrument) UpdateDepth(d market.L2Depth) (uint64, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !d.IsDiff(i.depth) {
		return i.orderBookSeq, false
	}
	i.prevDepth = i.depth
	i.depth = d
	i.orderBookSeq++
	return i.orderBookSeq, true
}

// ExchTradeID returns the highest accepted exchange trade id.
func (i *Instrument) ExchTradeID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.exchTradeID
}

// AcceptTrade moves the trade cursor to tradeID if it is numerically greater
// than the current one and returns the new trade sequence.
// Ids which are not greater are rejected, so out of order ids are dropped.
func (i *Instrument) AcceptTrade(tradeID string) (uint64, bool, error) {
	id, err := ParseTradeID(tradeID)
	if err != nil {
		return 0, false, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	cur, err := ParseTradeID(i.exchTradeID)
	if err != nil {
		return 0, false, err
	}
	if id <= cur {
		return i.tradeSeq, false, nil
	}
	i.exchTradeID = tradeID
	i.tradeSeq++
	return i.tradeSeq, true, nil
}

// OrderBookSeq returns the local order book sequence.
func (i *Instrument) OrderBookSeq() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.orderBookSeq
}

// TradeSeq returns the local trade sequence.
func (i *Instrument) TradeSeq() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.tradeSeq
}

// Recovered reports whether the trade stream has delivered its first batch.
func (i *Instrument) Recovered() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.recovered
}

// MarkRecovered sets the recovered flag. It returns true only for the call which flipped it.
func (i *Instrument) MarkRecovered() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.recovered {
		return false
	}
	i.recovered = true
	return true
}

// ParseTradeID converts a textual trade id to its unsigned magnitude.
func ParseTradeID(id string) (uint64, error) {
	v, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid trade id %q", id)
	}
	return v, nil
}
