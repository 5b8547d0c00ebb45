package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/milkywaybrain/bitfeeds/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRESTGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	r := &REST{HTTPClient: NewHTTPClient(&config.REST{ReqTimeoutSec: 5})}

	body, err := r.Get(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))

	_, err = r.Get(context.Background(), srv.URL+"/fail")
	assert.Error(t, err)
}

func TestInitREST(t *testing.T) {
	r := InitREST(&config.REST{ReqTimeoutSec: 1})
	got, err := GetREST()
	require.NoError(t, err)
	assert.Same(t, r, got)
}
