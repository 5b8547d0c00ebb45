package exchange

// bittrexVenue is the payload layout of the bittrex v1.1 public API.
func bittrexVenue(baseURL string) venue {
	return venue{
		name:         "bittrex",
		orderBookURL: baseURL + "getorderbook?market=%s&type=both&depth=5",
		tradesURL:    baseURL + "getmarkethistory?market=%s",

		resultKey:  "result",
		successKey: "success",
		messageKey: "message",

		bidsKey:   "buy",
		asksKey:   "sell",
		priceKey:  "Rate",
		volumeKey: "Quantity",

		tradeTimeKey:   "TimeStamp",
		tradeIDKey:     "Id",
		tradeSideKey:   "OrderType",
		tradePriceKey:  "Price",
		tradeVolumeKey: "Quantity",

		timeLayout: "2006-01-02T15:04:05.000000",
		timeWidth:  26,

		buySide: "BUY",
	}
}

// NewBittrex creates the bittrex adapter.
// baseURL is normally config.BittrexRESTBaseURL.
func NewBittrex(rest Requester, baseURL string) Adapter {
	return newRESTAdapter(bittrexVenue(baseURL), rest)
}
