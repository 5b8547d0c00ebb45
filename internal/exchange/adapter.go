package exchange

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/milkywaybrain/bitfeeds/internal/instrument"
	"github.com/milkywaybrain/bitfeeds/internal/market"
	"github.com/shopspring/decimal"
)

// Adapter converts venue REST payloads to the common market models.
type Adapter interface {
	Name() string
	OrderBookURL(inst *instrument.Instrument) string
	TradesURL(inst *instrument.Instrument) string
	ParseOrderBook(inst *instrument.Instrument, raw []byte) (market.L2Depth, error)
	ParseTrade(inst *instrument.Instrument, raw []byte) (market.Trade, error)

	// FetchOrderBook returns nil without error if the venue sent an empty response.
	FetchOrderBook(ctx context.Context, inst *instrument.Instrument) (*market.L2Depth, error)

	// FetchTrades returns trades oldest first.
	FetchTrades(ctx context.Context, inst *instrument.Instrument) ([]market.Trade, error)
}

// venue describes the REST payload layout of an exchange.
// URL templates take the escaped instrument code.
type venue struct {
	name         string
	orderBookURL string
	tradesURL    string

	// Envelope.
	resultKey  string
	successKey string
	messageKey string

	// Order book.
	bidsKey   string
	asksKey   string
	priceKey  string
	volumeKey string

	// Trade.
	tradeTimeKey   string
	tradeIDKey     string
	tradeSideKey   string
	tradePriceKey  string
	tradeVolumeKey string

	// Timestamps are padded or truncated to timeWidth characters before parsing with timeLayout.
	timeLayout string
	timeWidth  int

	// buySide is the only side literal mapped to buy, everything else is sell.
	buySide string
}

// restAdapter implements Adapter for any venue description.
type restAdapter struct {
	v    venue
	rest Requester
	now  func() time.Time
}

func newRESTAdapter(v venue, rest Requester) *restAdapter {
	return &restAdapter{
		v:    v,
		rest: rest,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (a *restAdapter) Name() string { return a.v.name }

func (a *restAdapter) OrderBookURL(inst *instrument.Instrument) string {
	return fmt.Sprintf(a.v.orderBookURL, url.QueryEscape(inst.Code()))
}

func (a *restAdapter) TradesURL(inst *instrument.Instrument) string {
	return fmt.Sprintf(a.v.tradesURL, url.QueryEscape(inst.Code()))
}

func (a *restAdapter) schemaErr(inst *instrument.Instrument, reason string, raw []byte) *SchemaError {
	return &SchemaError{Exchange: inst.Exchange(), Instrument: inst.Name(), Reason: reason, Raw: raw}
}

// result unwraps the venue response envelope.
func (a *restAdapter) result(inst *instrument.Instrument, raw []byte) (jsoniter.RawMessage, error) {
	env := map[string]jsoniter.RawMessage{}
	if err := jsoniter.Unmarshal(raw, &env); err != nil {
		return nil, a.schemaErr(inst, "invalid json: "+err.Error(), raw)
	}
	if a.v.successKey != "" {
		if success, ok := env[a.v.successKey]; ok && string(success) == "false" {
			return nil, a.schemaErr(inst, "request not successful: "+textOf(env[a.v.messageKey]), raw)
		}
	}
	res, ok := env[a.v.resultKey]
	if !ok {
		return nil, a.schemaErr(inst, "does not contain result key", raw)
	}
	return res, nil
}

// ParseOrderBook reads up to market.DepthLevels levels on each side.
// Capture time is the parse time as venues send no depth timestamp.
func (a *restAdapter) ParseOrderBook(inst *instrument.Instrument, raw []byte) (market.L2Depth, error) {
	depth := market.L2Depth{}
	res, err := a.result(inst, raw)
	if err != nil {
		return depth, err
	}
	book := map[string]jsoniter.RawMessage{}
	if err := jsoniter.Unmarshal(res, &book); err != nil {
		return depth, a.schemaErr(inst, "does not contain order book keys", raw)
	}
	bids, okBids := book[a.v.bidsKey]
	asks, okAsks := book[a.v.asksKey]
	if !okBids || !okAsks {
		return depth, a.schemaErr(inst, "does not contain order book keys", raw)
	}

	depth.DateTime = a.now()
	if err := a.parseLevels(bids, &depth.Bids); err != nil {
		return market.L2Depth{}, a.schemaErr(inst, "bids: "+err.Error(), raw)
	}
	if err := a.parseLevels(asks, &depth.Asks); err != nil {
		return market.L2Depth{}, a.schemaErr(inst, "asks: "+err.Error(), raw)
	}
	return depth, nil
}

func (a *restAdapter) parseLevels(raw jsoniter.RawMessage, levels *[market.DepthLevels]market.OrderBookLevel) error {
	var recs []map[string]jsoniter.RawMessage
	if err := jsoniter.Unmarshal(raw, &recs); err != nil {
		return err
	}
	for i := 0; i < len(recs) && i < market.DepthLevels; i++ {
		price, err := decimalField(recs[i], a.v.priceKey)
		if err != nil {
			return err
		}
		volume, err := decimalField(recs[i], a.v.volumeKey)
		if err != nil {
			return err
		}
		levels[i] = market.OrderBookLevel{Price: price, Volume: volume}
	}
	return nil
}

// ParseTrade converts a single venue trade record.
func (a *restAdapter) ParseTrade(inst *instrument.Instrument, raw []byte) (market.Trade, error) {
	trade := market.Trade{}
	rec := map[string]jsoniter.RawMessage{}
	if err := jsoniter.Unmarshal(raw, &rec); err != nil {
		return trade, a.schemaErr(inst, "invalid trade json: "+err.Error(), raw)
	}
	for _, k := range []string{a.v.tradeTimeKey, a.v.tradeIDKey, a.v.tradeSideKey, a.v.tradePriceKey, a.v.tradeVolumeKey} {
		if _, ok := rec[k]; !ok {
			return trade, a.schemaErr(inst, "does not contain trade keys", raw)
		}
	}

	ts, err := parseTimestamp(textOf(rec[a.v.tradeTimeKey]), a.v.timeLayout, a.v.timeWidth)
	if err != nil {
		return trade, a.schemaErr(inst, err.Error(), raw)
	}
	trade.DateTime = ts

	// Only the exact buy literal is a buy. Any other value, including unknown ones, is a sell.
	if textOf(rec[a.v.tradeSideKey]) == a.v.buySide {
		trade.Side = market.Buy
	} else {
		trade.Side = market.Sell
	}

	trade.TradeID = textOf(rec[a.v.tradeIDKey])
	if _, err := instrument.ParseTradeID(trade.TradeID); err != nil {
		return market.Trade{}, a.schemaErr(inst, err.Error(), raw)
	}

	if trade.Price, err = decimalField(rec, a.v.tradePriceKey); err != nil {
		return market.Trade{}, a.schemaErr(inst, err.Error(), raw)
	}
	if trade.Volume, err = decimalField(rec, a.v.tradeVolumeKey); err != nil {
		return market.Trade{}, a.schemaErr(inst, err.Error(), raw)
	}
	return trade, nil
}

// FetchOrderBook queries the order book endpoint.
func (a *restAdapter) FetchOrderBook(ctx context.Context, inst *instrument.Instrument) (*market.L2Depth, error) {
	link := a.OrderBookURL(inst)
	body, err := a.rest.Get(ctx, link)
	if err != nil {
		return nil, &TransportError{URL: link, Err: err}
	}
	if isEmpty(body) {
		return nil, nil
	}
	depth, err := a.ParseOrderBook(inst, body)
	if err != nil {
		return nil, err
	}
	return &depth, nil
}

// FetchTrades queries the trades endpoint. Venues send newest first,
// so the result is reversed.
func (a *restAdapter) FetchTrades(ctx context.Context, inst *instrument.Instrument) ([]market.Trade, error) {
	link := a.TradesURL(inst)
	body, err := a.rest.Get(ctx, link)
	if err != nil {
		return nil, &TransportError{URL: link, Err: err}
	}
	if isEmpty(body) {
		return nil, nil
	}
	res, err := a.result(inst, body)
	if err != nil {
		return nil, err
	}
	var recs []jsoniter.RawMessage
	if err := jsoniter.Unmarshal(res, &recs); err != nil {
		return nil, a.schemaErr(inst, "trade result is not a list", body)
	}
	trades := make([]market.Trade, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		trade, err := a.ParseTrade(inst, recs[i])
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

func isEmpty(body []byte) bool {
	b := bytes.TrimSpace(body)
	return len(b) == 0 || string(b) == "null" || string(b) == "{}"
}

// textOf returns a json string value unquoted, or any other json value as is.
func textOf(raw jsoniter.RawMessage) string {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := jsoniter.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

func decimalField(rec map[string]jsoniter.RawMessage, key string) (decimal.Decimal, error) {
	raw, ok := rec[key]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("missing %s", key)
	}
	d, err := decimal.NewFromString(textOf(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: %v", key, err)
	}
	return d, nil
}

// parseTimestamp tolerates missing or truncated fractional seconds.
// Values without a fraction get a dot, then the value is zero padded or
// truncated to width.
func parseTimestamp(s, layout string, width int) (time.Time, error) {
	if len(s) == len("2006-01-02T15:04:05") {
		s += "."
	}
	if len(s) < width {
		s += strings.Repeat("0", width-len(s))
	} else if len(s) > width {
		s = s[:width]
	}
	return time.ParseInLocation(layout, s, time.UTC)
}
