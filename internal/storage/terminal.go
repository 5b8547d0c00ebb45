package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Terminal is for displaying data on terminal.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer
}

// TerminalTimestamp is used as a format to display only the time.
const TerminalTimestamp = "15:04:05.999"

// InitTerminal initializes terminal display.
// Output writer is always os.Stdout except in case of testing where a buffer will be set as output terminal.
func InitTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

// Name returns the storage name.
func (t *Terminal) Name() string { return "terminal" }

// EnsureSnapshotTable has nothing to prepare for terminal and never resumes.
func (t *Terminal) EnsureSnapshotTable(_ context.Context, _ string) (Resume, error) {
	return Resume{}, nil
}

// InsertOrderBook outputs the best bid and ask of the snapshot to terminal.
func (t *Terminal) InsertOrderBook(_ context.Context, s Snapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	bid, ask := s.Depth.Bids[0], s.Depth.Asks[0]
	_, err := fmt.Fprintf(t.out, "%-12s%-10s%-10s%8d%16s%16s%16s%16s%16s\n\n", "OrderBook", s.Exchange, s.Instrument, s.Sequence,
		bid.Volume.String(), bid.Price.String(), ask.Price.String(), ask.Volume.String(), s.Depth.DateTime.Local().Format(TerminalTimestamp))
	return err
}

// InsertTrade outputs the trade to terminal.
func (t *Terminal) InsertTrade(_ context.Context, r TradeRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintf(t.out, "%-12s%-10s%-10s%8d%16s%-6s%16s%16s%16s\n\n", "Trade", r.Exchange, r.Instrument, r.Sequence,
		r.Trade.TradeID, " "+r.Trade.Side.String(), r.Trade.Volume.String(), r.Trade.Price.String(), r.Trade.DateTime.Local().Format(TerminalTimestamp))
	return err
}

// Close does nothing for terminal.
func (t *Terminal) Close() error { return nil }
