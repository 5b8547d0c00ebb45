package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v7"
	jsoniter "github.com/json-iterator/go"
	"github.com/milkywaybrain/bitfeeds/internal/config"
	"github.com/pkg/errors"
)

// ElasticSearch is for connecting and indexing data to elastic search.
type ElasticSearch struct {
	ES        *elasticsearch.Client
	IndexName string
	Cfg       *config.ES
}

// InitElasticSearch initializes elastic search connection with configured values.
func InitElasticSearch(ctx context.Context, cfg *config.ES) (*ElasticSearch, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = cfg.MaxIdleConns
	t.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: t,
	}
	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, err
	}
	e := &ElasticSearch{
		ES:        es,
		IndexName: cfg.IndexName,
		Cfg:       cfg,
	}
	pingCtx, cancel := e.reqCtx(ctx)
	defer cancel()
	resp, err := es.Ping(es.Ping.WithContext(pingCtx))
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return e, nil
}

func (e *ElasticSearch) reqCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.Cfg.ReqTimeoutSec > 0 {
		return context.WithTimeout(ctx, time.Duration(e.Cfg.ReqTimeoutSec)*time.Second)
	}
	return context.WithCancel(ctx)
}

// esData holds either order book or trade data which will be sent to elastic search.
type esData struct {
	Channel    string    `json:"channel"`
	Table      string    `json:"table"`
	Exchange   string    `json:"exchange"`
	Instrument string    `json:"instrument"`
	Sequence   uint64    `json:"sequence"`
	Bids       []esLevel `json:"bids,omitempty"`
	Asks       []esLevel `json:"asks,omitempty"`
	TradeID    string    `json:"trade_id,omitempty"`
	Side       string    `json:"side,omitempty"`
	Size       string    `json:"size,omitempty"`
	Price      string    `json:"price,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	CreatedAt  time.Time `json:"created_at"`
}

type esLevel struct {
	Price  string `json:"price"`
	Volume string `json:"volume"`
}

// Name returns the storage name.
func (e *ElasticSearch) Name() string { return "elastic_search" }

// EnsureSnapshotTable does nothing as documents of all instruments go to
// the configured index, which elastic search creates on first write.
func (e *ElasticSearch) EnsureSnapshotTable(_ context.Context, _ string) (Resume, error) {
	return Resume{}, nil
}

// InsertOrderBook indexes the snapshot, replacing any document with the same sequence.
func (e *ElasticSearch) InsertOrderBook(ctx context.Context, s Snapshot) error {
	ed := esData{
		Channel:    "order_book",
		Table:      s.Table,
		Exchange:   s.Exchange,
		Instrument: s.Instrument,
		Sequence:   s.Sequence,
		Timestamp:  s.Depth.DateTime,
		CreatedAt:  time.Now().UTC(),
	}
	for _, l := range s.Depth.Bids {
		ed.Bids = append(ed.Bids, esLevel{Price: l.Price.String(), Volume: l.Volume.String()})
	}
	for _, l := range s.Depth.Asks {
		ed.Asks = append(ed.Asks, esLevel{Price: l.Price.String(), Volume: l.Volume.String()})
	}
	return e.index(ctx, docID(s.Table, "order_book", s.Sequence), ed)
}

// InsertTrade indexes the trade, replacing any document with the same sequence.
func (e *ElasticSearch) InsertTrade(ctx context.Context, r TradeRecord) error {
	ed := esData{
		Channel:    "trade",
		Table:      r.Table,
		Exchange:   r.Exchange,
		Instrument: r.Instrument,
		Sequence:   r.Sequence,
		TradeID:    r.Trade.TradeID,
		Side:       r.Trade.Side.String(),
		Size:       r.Trade.Volume.String(),
		Price:      r.Trade.Price.String(),
		Timestamp:  r.Trade.DateTime,
		CreatedAt:  time.Now().UTC(),
	}
	return e.index(ctx, docID(r.Table, "trade", r.Sequence), ed)
}

func docID(table, channel string, seq uint64) string {
	return table + "-" + channel + "-" + strconv.FormatUint(seq, 10)
}

func (e *ElasticSearch) index(appCtx context.Context, id string, ed esData) error {
	var buf bytes.Buffer
	meta, err := jsoniter.Marshal(map[string]map[string]string{"index": {"_id": id}})
	if err != nil {
		return err
	}
	esBytes, err := jsoniter.Marshal(ed)
	if err != nil {
		return err
	}
	buf.Grow(len(meta) + len(esBytes) + 2)
	buf.Write(meta)
	buf.WriteByte('\n')
	buf.Write(esBytes)
	buf.WriteByte('\n')

	ctx, cancel := e.reqCtx(appCtx)
	defer cancel()
	resp, err := e.ES.Bulk(bytes.NewReader(buf.Bytes()), e.ES.Bulk.WithIndex(e.IndexName), e.ES.Bulk.WithContext(ctx))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("code : %v, status : %v", resp.StatusCode, resp.Status())
	}

	// A bulk request succeeds as a whole even when its document is rejected.
	var br esBulkResp
	if err = jsoniter.NewDecoder(resp.Body).Decode(&br); err != nil {
		return errors.Wrap(err, "decode bulk response")
	}
	if !br.Errors {
		return nil
	}
	for _, item := range br.Items {
		if res, ok := item["index"]; ok && res.Status > 299 {
			return errors.Errorf("document %v rejected, status : %v, type : %v, reason : %v", id, res.Status, res.Error.Type, res.Error.Reason)
		}
	}
	return errors.Errorf("document %v rejected", id)
}

type esBulkResp struct {
	Errors bool                        `json:"errors"`
	Items  []map[string]esBulkRespItem `json:"items"`
}

type esBulkRespItem struct {
	Status int `json:"status"`
	Error  struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// Close does nothing as the client holds no dedicated connection.
func (e *ElasticSearch) Close() error { return nil }
