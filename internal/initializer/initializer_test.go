package initializer

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/milkywaybrain/bitfeeds/internal/config"
	"github.com/milkywaybrain/bitfeeds/internal/connector"
	"github.com/milkywaybrain/bitfeeds/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *config.Config {
	return &config.Config{
		Exchanges: []config.Exchange{{
			Name: "bittrex",
			Markets: []config.Market{{
				ID:             "BTC-ETH",
				CommitName:     "BTCETH",
				RESTPingIntSec: 1,
				Storages:       []string{"sqlite"},
			}},
		}},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(validConfig()))

	cfg := validConfig()
	cfg.Exchanges[0].Markets[0].RESTPingIntSec = 0
	assert.Error(t, Validate(cfg))

	cfg = validConfig()
	cfg.Exchanges[0].Name = "ftx"
	assert.Error(t, Validate(cfg))

	cfg = validConfig()
	cfg.Exchanges[0].Markets[0].Storages = []string{"mongo"}
	assert.Error(t, Validate(cfg))

	assert.Error(t, Validate(&config.Config{}))
}

func TestConnectStoragesOncePerName(t *testing.T) {
	cfg := validConfig()
	cfg.Connection.SQLite.Path = filepath.Join(t.TempDir(), "bitfeeds.sqlite")
	cfg.Exchanges[0].Markets = append(cfg.Exchanges[0].Markets, config.Market{
		ID: "BTC-LTC", RESTPingIntSec: 1, Storages: []string{"sqlite", "terminal"},
	})

	sinks, err := connectStorages(context.Background(), cfg)
	require.NoError(t, err)
	defer func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}()
	assert.Len(t, sinks, 2)
	assert.Equal(t, "sqlite", sinks["sqlite"].Name())
	assert.Equal(t, "terminal", sinks["terminal"].Name())
}

func TestStartStopsOnCancel(t *testing.T) {
	cfg := validConfig()
	dir := t.TempDir()
	cfg.Log.FilePath = filepath.Join(dir, "bitfeeds.log")
	cfg.Log.Level = "error"
	cfg.Connection.REST.ReqTimeoutSec = 1
	cfg.Exchanges[0].Markets[0].Storages = []string{"terminal"}

	// Workers see the canceled context on their first request and stop.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, Start(ctx, cfg))
}

func TestStartExchangeUsesSharedREST(t *testing.T) {
	connector.InitREST(&config.REST{ReqTimeoutSec: 1})
	exch := validConfig().Exchanges[0]
	exch.Markets[0].Storages = []string{"terminal"}
	sinks := map[string]storage.Sink{"terminal": storage.InitTerminal(&bytes.Buffer{})}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, startExchange(ctx, exch, sinks), context.Canceled)
}

func TestStartExchangeLogsStack(t *testing.T) {
	var buf bytes.Buffer
	prevLogger, prevMarshaler := log.Logger, zerolog.ErrorStackMarshaler
	defer func() {
		log.Logger = prevLogger
		zerolog.ErrorStackMarshaler = prevMarshaler
	}()
	log.Logger = zerolog.New(&buf)
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	connector.InitREST(&config.REST{ReqTimeoutSec: 1})
	exch := config.Exchange{Name: "mtgox"}
	require.Error(t, startExchange(context.Background(), exch, nil))
	assert.Contains(t, buf.String(), `"stack":[`)
	assert.Contains(t, buf.String(), `"exchange":"mtgox"`)
}
