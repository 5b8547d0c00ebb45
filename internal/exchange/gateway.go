package exchange

import (
	"context"
	"time"

	"github.com/milkywaybrain/bitfeeds/internal/instrument"
	"github.com/milkywaybrain/bitfeeds/internal/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultPollInterval is the gap between two polls of the same endpoint.
const DefaultPollInterval = time.Second

// Gateway polls an exchange for order books and trades of instruments and
// writes the changes to all the sinks.
type Gateway struct {
	adapter  Adapter
	sinks    []storage.Sink
	interval time.Duration
}

// Handles are closed when the corresponding worker returns.
type Handles struct {
	OrderBook <-chan struct{}
	Trades    <-chan struct{}
}

// NewGateway creates a gateway. A non positive interval means DefaultPollInterval.
func NewGateway(adapter Adapter, sinks []storage.Sink, interval time.Duration) *Gateway {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Gateway{
		adapter:  adapter,
		sinks:    sinks,
		interval: interval,
	}
}

// Start prepares storage for the instrument and launches its order book and trade workers.
// Workers run at a fixed interval until ctx is canceled; errors inside them are logged only.
func (g *Gateway) Start(ctx context.Context, inst *instrument.Instrument) (Handles, error) {
	table := storage.SnapshotTableName(inst.Exchange(), inst.Name())
	inst.SetSnapshotTable(table)

	for _, sink := range g.sinks {
		resume, err := sink.EnsureSnapshotTable(ctx, table)
		if err != nil {
			return Handles{}, errors.WithStack(&StorageError{Sink: sink.Name(), Table: table, Err: err})
		}
		if err := inst.Restore(resume.OrderBookSeq, resume.TradeSeq, resume.ExchTradeID); err != nil {
			return Handles{}, errors.Wrap(err, "resume "+table)
		}
	}
	inst.Reset()

	log.Info().
		Str("exchange", inst.Exchange()).
		Str("instrument", inst.Name()).
		Uint64("order_book_seq", inst.OrderBookSeq()).
		Uint64("trade_seq", inst.TradeSeq()).
		Str("exch_trade_id", inst.ExchTradeID()).
		Msg("starting gateway workers")

	obDone := make(chan struct{})
	trDone := make(chan struct{})
	go g.run(ctx, obDone, func(ctx context.Context) { g.pollOrderBook(ctx, inst) })
	go g.run(ctx, trDone, func(ctx context.Context) { g.pollTrades(ctx, inst) })
	return Handles{OrderBook: obDone, Trades: trDone}, nil
}

// run executes cycle, then sleeps the interval, until ctx is canceled.
func (g *Gateway) run(ctx context.Context, done chan<- struct{}, cycle func(context.Context)) {
	defer close(done)
	timer := time.NewTimer(g.interval)
	defer timer.Stop()
	for {
		cycle(ctx)
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(g.interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
	}
}

// pollOrderBook fetches the order book once and stores it if any level changed.
func (g *Gateway) pollOrderBook(ctx context.Context, inst *instrument.Instrument) {
	depth, err := g.adapter.FetchOrderBook(ctx, inst)
	if err != nil {
		if ctx.Err() == nil {
			logInstErr(inst, "pollOrderBook", err)
		}
		return
	}
	if depth == nil {
		return
	}
	seq, changed := inst.UpdateDepth(*depth)
	if !changed {
		return
	}
	snap := storage.Snapshot{
		Exchange:   inst.Exchange(),
		Instrument: inst.Name(),
		Table:      inst.SnapshotTable(),
		Sequence:   seq,
		Depth:      *depth,
	}
	for _, sink := range g.sinks {
		if err := sink.InsertOrderBook(ctx, snap); err != nil {
			logInstErr(inst, "pollOrderBook", &StorageError{Sink: sink.Name(), Table: snap.Table, Err: err})
		}
	}
}

// pollTrades fetches recent trades once and stores the ones newer than the trade cursor.
// Venue windows overlap between polls, the cursor is what drops repeated trades.
func (g *Gateway) pollTrades(ctx context.Context, inst *instrument.Instrument) {
	trades, err := g.adapter.FetchTrades(ctx, inst)
	if err != nil {
		if ctx.Err() == nil {
			logInstErr(inst, "pollTrades", err)
		}
		return
	}
	if len(trades) == 0 {
		return
	}
	table := inst.SnapshotTable()
	for _, trade := range trades {
		seq, accepted, err := inst.AcceptTrade(trade.TradeID)
		if err != nil {
			logInstErr(inst, "pollTrades", err)
			continue
		}
		if !accepted {
			continue
		}
		rec := storage.TradeRecord{
			Exchange:   inst.Exchange(),
			Instrument: inst.Name(),
			Table:      table,
			Sequence:   seq,
			Trade:      trade,
		}
		for _, sink := range g.sinks {
			if err := sink.InsertTrade(ctx, rec); err != nil {
				logInstErr(inst, "pollTrades", &StorageError{Sink: sink.Name(), Table: table, Err: err})
			}
		}
	}
	if inst.MarkRecovered() {
		log.Info().Str("exchange", inst.Exchange()).Str("instrument", inst.Name()).Msg("trades recovered")
	}
}
