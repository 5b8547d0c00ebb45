package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/milkywaybrain/bitfeeds/internal/instrument"
	"github.com/milkywaybrain/bitfeeds/internal/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://venue.test/api/v1.1/public/"

// fakeRequester returns canned bodies per url.
type fakeRequester struct {
	bodies map[string]string
	err    error
	calls  int
}

func (f *fakeRequester) Get(_ context.Context, url string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.bodies[url]), nil
}

func testInstrument() *instrument.Instrument {
	return instrument.New("bittrex", "BTCETH", "BTC-ETH")
}

func testAdapter(rest Requester) *restAdapter {
	a := NewBittrex(rest, testBaseURL).(*restAdapter)
	a.now = func() time.Time { return time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC) }
	return a
}

const orderBookBody = `{"success":true,"message":"","result":{
	"buy":[{"Quantity":10,"Rate":0.05},{"Quantity":5,"Rate":0.049},{"Quantity":4,"Rate":0.048},{"Quantity":3,"Rate":0.047},{"Quantity":2,"Rate":0.046},{"Quantity":1,"Rate":0.045}],
	"sell":[{"Quantity":8,"Rate":0.051},{"Quantity":"7.5","Rate":"0.052"}]}}`

func TestURLs(t *testing.T) {
	a := testAdapter(nil)
	inst := testInstrument()
	assert.Equal(t, testBaseURL+"getorderbook?market=BTC-ETH&type=both&depth=5", a.OrderBookURL(inst))
	assert.Equal(t, testBaseURL+"getmarkethistory?market=BTC-ETH", a.TradesURL(inst))
	assert.Equal(t, "bittrex", a.Name())
}

func TestParseOrderBook(t *testing.T) {
	a := testAdapter(nil)
	depth, err := a.ParseOrderBook(testInstrument(), []byte(orderBookBody))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), depth.DateTime)
	assert.Len(t, depth.Bids, market.DepthLevels)
	assert.True(t, depth.Bids[0].Price.Equal(decimal.RequireFromString("0.05")))
	assert.True(t, depth.Bids[0].Volume.Equal(decimal.RequireFromString("10")))
	assert.True(t, depth.Bids[4].Price.Equal(decimal.RequireFromString("0.046")))
	assert.True(t, depth.Asks[1].Price.Equal(decimal.RequireFromString("0.052")))
	assert.True(t, depth.Asks[1].Volume.Equal(decimal.RequireFromString("7.5")))

	// Missing levels stay zero valued.
	assert.True(t, depth.Asks[2].Price.IsZero())
	assert.True(t, depth.Asks[4].Volume.IsZero())
}

func TestParseOrderBookSchemaErrors(t *testing.T) {
	a := testAdapter(nil)
	inst := testInstrument()
	cases := map[string]string{
		"missing asks":   `{"result":{"buy":[]}}`,
		"missing result": `{"success":true}`,
		"null result":    `{"result":null}`,
		"unsuccessful":   `{"success":false,"message":"INVALID_MARKET","result":null}`,
		"bad price":      `{"result":{"buy":[{"Quantity":1,"Rate":"x"}],"sell":[]}}`,
		"not json":       `<html>`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := a.ParseOrderBook(inst, []byte(body))
			var se *SchemaError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, "bittrex", se.Exchange)
			assert.Equal(t, "BTCETH", se.Instrument)
			assert.Equal(t, body, string(se.Raw))
		})
	}
}

func TestParseTrade(t *testing.T) {
	a := testAdapter(nil)
	inst := testInstrument()

	trade, err := a.ParseTrade(inst, []byte(`{"Id":"007","TimeStamp":"2021-01-01T00:00:00","Quantity":1.5,"Price":0.0501,"Total":0.07515,"FillType":"FILL","OrderType":"BUY"}`))
	require.NoError(t, err)
	assert.Equal(t, "007", trade.TradeID)
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), trade.DateTime)
	assert.Equal(t, market.Buy, trade.Side)
	assert.True(t, trade.Price.Equal(decimal.RequireFromString("0.0501")))
	assert.True(t, trade.Volume.Equal(decimal.RequireFromString("1.5")))

	trade, err = a.ParseTrade(inst, []byte(`{"Id":104,"TimeStamp":"2021-01-01T00:00:01.12","Quantity":"2","Price":"0.05","OrderType":"SELL"}`))
	require.NoError(t, err)
	assert.Equal(t, "104", trade.TradeID)
	assert.Equal(t, 120*time.Millisecond, time.Duration(trade.DateTime.Nanosecond()))
	assert.Equal(t, market.Sell, trade.Side)
}

func TestParseTradeSideVocabulary(t *testing.T) {
	a := testAdapter(nil)
	for side, want := range map[string]market.Side{
		`"BUY"`:  market.Buy,
		`"buy"`:  market.Sell,
		`"Buy"`:  market.Sell,
		`"SELL"`: market.Sell,
		`""`:     market.Sell,
		`null`:   market.Sell,
		`1`:      market.Sell,
	} {
		trade, err := a.ParseTrade(testInstrument(), []byte(`{"Id":1,"TimeStamp":"2021-01-01T00:00:00.000","Quantity":1,"Price":1,"OrderType":`+side+`}`))
		require.NoError(t, err)
		assert.Equal(t, want, trade.Side, side)
	}
}

func TestParseTradeSchemaErrors(t *testing.T) {
	a := testAdapter(nil)
	for name, body := range map[string]string{
		"missing id":    `{"TimeStamp":"2021-01-01T00:00:00","Quantity":1,"Price":1,"OrderType":"BUY"}`,
		"missing side":  `{"Id":1,"TimeStamp":"2021-01-01T00:00:00","Quantity":1,"Price":1}`,
		"bad timestamp": `{"Id":1,"TimeStamp":"yesterday","Quantity":1,"Price":1,"OrderType":"BUY"}`,
		"bad id":        `{"Id":"a1","TimeStamp":"2021-01-01T00:00:00","Quantity":1,"Price":1,"OrderType":"BUY"}`,
		"bad volume":    `{"Id":1,"TimeStamp":"2021-01-01T00:00:00","Quantity":"lots","Price":1,"OrderType":"BUY"}`,
		"not an object": `[1,2]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.ParseTrade(testInstrument(), []byte(body))
			var se *SchemaError
			assert.True(t, errors.As(err, &se), "got %v", err)
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	layout := "2006-01-02T15:04:05.000000"
	want := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{
		"2021-01-01T00:00:00",
		"2021-01-01T00:00:00.",
		"2021-01-01T00:00:00.0",
		"2021-01-01T00:00:00.000000",
		"2021-01-01T00:00:00.00000001",
	} {
		ts, err := parseTimestamp(s, layout, 26)
		require.NoError(t, err, s)
		assert.Equal(t, want, ts, s)
	}
	ts, err := parseTimestamp("2021-01-01T00:00:00.1234567", layout, 26)
	require.NoError(t, err)
	assert.Equal(t, 123456000, ts.Nanosecond())
}

func TestFetchOrderBook(t *testing.T) {
	inst := testInstrument()
	rest := &fakeRequester{bodies: map[string]string{}}
	a := testAdapter(rest)

	depth, err := a.FetchOrderBook(context.Background(), inst)
	require.NoError(t, err)
	assert.Nil(t, depth)

	rest.bodies[a.OrderBookURL(inst)] = orderBookBody
	depth, err = a.FetchOrderBook(context.Background(), inst)
	require.NoError(t, err)
	require.NotNil(t, depth)
	assert.True(t, depth.Bids[0].Price.Equal(decimal.RequireFromString("0.05")))

	rest.err = errors.New("connection refused")
	_, err = a.FetchOrderBook(context.Background(), inst)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, a.OrderBookURL(inst), te.URL)
}

func TestFetchTradesChronological(t *testing.T) {
	inst := testInstrument()
	rest := &fakeRequester{bodies: map[string]string{}}
	a := testAdapter(rest)
	rest.bodies[a.TradesURL(inst)] = `{"success":true,"message":"","result":[
		{"Id":105,"TimeStamp":"2021-01-01T00:00:05.5","Quantity":1,"Price":0.05,"OrderType":"BUY"},
		{"Id":104,"TimeStamp":"2021-01-01T00:00:04","Quantity":1,"Price":0.05,"OrderType":"SELL"},
		{"Id":103,"TimeStamp":"2021-01-01T00:00:03.25","Quantity":1,"Price":0.05,"OrderType":"BUY"}]}`

	trades, err := a.FetchTrades(context.Background(), inst)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, "103", trades[0].TradeID)
	assert.Equal(t, "104", trades[1].TradeID)
	assert.Equal(t, "105", trades[2].TradeID)

	rest.bodies[a.TradesURL(inst)] = `{"success":true,"message":"","result":[]}`
	trades, err = a.FetchTrades(context.Background(), inst)
	require.NoError(t, err)
	assert.Empty(t, trades)

	rest.bodies[a.TradesURL(inst)] = `{"success":true,"result":[{"Id":1}]}`
	_, err = a.FetchTrades(context.Background(), inst)
	var se *SchemaError
	assert.True(t, errors.As(err, &se))
}

func TestNewAdapter(t *testing.T) {
	a, err := NewAdapter("bittrex", &fakeRequester{}, testBaseURL)
	require.NoError(t, err)
	assert.Equal(t, "bittrex", a.Name())

	_, err = NewAdapter("mtgox", &fakeRequester{}, testBaseURL)
	assert.Error(t, err)
}
