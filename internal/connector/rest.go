package connector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/milkywaybrain/bitfeeds/internal/config"
	"github.com/pkg/errors"
)

// REST is for REST API connection.
type REST struct {
	HTTPClient *http.Client
}

var rest REST

// InitREST initializes http client with configured values.
func InitREST(cfg *config.REST) *REST {
	if rest.HTTPClient == nil {
		rest = REST{HTTPClient: NewHTTPClient(cfg)}
	}
	return &rest
}

// GetREST returns already prepared REST client instance.
func GetREST() (*REST, error) {
	if rest.HTTPClient == nil {
		return nil, errors.New("REST connection is not initialized")
	}
	return &rest, nil
}

// NewHTTPClient creates a http client with configured transport values.
func NewHTTPClient(cfg *config.REST) *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.MaxIdleConns > 0 {
		t.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.MaxIdleConnsPerHost > 0 {
		t.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	}
	return &http.Client{
		Timeout:   time.Duration(cfg.ReqTimeoutSec) * time.Second,
		Transport: t,
	}
}

// Request creates a new GET request with the context.
func (r *REST) Request(ctx context.Context, url string) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
}

// Do sends the request to the exchange.
func (r *REST) Do(req *http.Request) (*http.Response, error) {
	return r.HTTPClient.Do(req)
}

// Get queries url and returns the response body.
// Any non 2xx status is returned as an error.
func (r *REST) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := r.Request(ctx, url)
	if err != nil {
		return nil, err
	}
	resp, err := r.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("code : %v, status : %v", resp.StatusCode, resp.Status)
	}
	return body, nil
}
