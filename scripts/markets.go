package main

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/milkywaybrain/bitfeeds/internal/config"
	"github.com/rs/zerolog/log"
)

// This function will query the exchanges for market info and store it in a csv file.
// Users can look up to this csv file to give market ID in the app configuration.
// CSV file created at ./examples/markets.csv.
func main() {
	f, err := os.Create("./examples/markets.csv")
	if err != nil {
		log.Error().Err(err).Str("exchange", "bittrex").Msg("csv file create")
		return
	}
	w := csv.NewWriter(f)
	defer f.Close()
	defer w.Flush()

	// Bittrex exchange.
	resp, err := http.Get(config.BittrexRESTBaseURL + "getmarkets")
	if err != nil {
		log.Error().Err(err).Str("exchange", "bittrex").Msg("exchange request for markets")
		return
	}
	bittrexMarkets := bittrexResp{}
	if err = jsoniter.NewDecoder(resp.Body).Decode(&bittrexMarkets); err != nil {
		log.Error().Err(err).Str("exchange", "bittrex").Msg("convert markets response")
		resp.Body.Close()
		return
	}
	resp.Body.Close()
	for _, record := range bittrexMarkets.Result {
		if !record.IsActive {
			continue
		}
		if err = w.Write([]string{"bittrex", record.Name, record.MarketCurrency + record.BaseCurrency}); err != nil {
			log.Error().Err(err).Str("exchange", "bittrex").Msg("writing markets to csv")
			return
		}
	}

	fmt.Println("CSV file generated successfully at ./examples/markets.csv")
}

type bittrexResp struct {
	Success bool             `json:"success"`
	Result  []bittrexRespRes `json:"result"`
}

type bittrexRespRes struct {
	Name           string `json:"MarketName"`
	BaseCurrency   string `json:"BaseCurrency"`
	MarketCurrency string `json:"MarketCurrency"`
	IsActive       bool   `json:"IsActive"`
}
