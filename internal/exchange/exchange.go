package exchange

import (
	"context"

	"github.com/milkywaybrain/bitfeeds/internal/instrument"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Requester queries a url and returns the response body.
// connector.REST satisfies it.
type Requester interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// NewAdapter returns the adapter of the named exchange.
func NewAdapter(name string, rest Requester, baseURL string) (Adapter, error) {
	switch name {
	case "bittrex":
		return NewBittrex(rest, baseURL), nil
	default:
		return nil, errors.Errorf("exchange %v is not supported", name)
	}
}

// logInstErr logs error of an instrument worker with stack trace.
func logInstErr(inst *instrument.Instrument, fn string, err error) {
	log.Error().Stack().Err(errors.WithStack(err)).
		Str("exchange", inst.Exchange()).
		Str("instrument", inst.Name()).
		Str("func", fn).
		Msg("")
}
