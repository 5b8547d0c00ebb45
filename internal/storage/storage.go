package storage

import (
	"context"
	"strings"

	"github.com/milkywaybrain/bitfeeds/internal/market"
)

// DateTimeFormat is the text form of timestamps written to storage.
const DateTimeFormat = "20060102 15:04:05.000000"

// Sink persists order book snapshots and trades of instruments.
// Inserts are upserts keyed by table and sequence, so delivering the same
// sequence twice replaces the earlier row.
// Implementations must be safe for concurrent use.
type Sink interface {
	Name() string
	EnsureSnapshotTable(ctx context.Context, table string) (Resume, error)
	InsertOrderBook(ctx context.Context, s Snapshot) error
	InsertTrade(ctx context.Context, t TradeRecord) error
	Close() error
}

// Resume is the last persisted state of an instrument.
type Resume struct {
	OrderBookSeq uint64
	TradeSeq     uint64
	ExchTradeID  string
}

// Snapshot represents an accepted order book update ready to store.
type Snapshot struct {
	Exchange   string
	Instrument string
	Table      string
	Sequence   uint64
	Depth      market.L2Depth
}

// TradeRecord represents an accepted trade ready to store.
type TradeRecord struct {
	Exchange   string
	Instrument string
	Table      string
	Sequence   uint64
	Trade      market.Trade
}

// SnapshotTableName derives the instrument table name from exchange and instrument names.
func SnapshotTableName(exchange, instrument string) string {
	return "exch_" + sanitize(exchange) + "_" + sanitize(instrument) + "_snapshot"
}

// TradesTableName returns the trade table paired with a snapshot table.
func TradesTableName(table string) string {
	return table + "_trades"
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.ToLower(s))
}
