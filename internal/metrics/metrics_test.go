package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krazyTry/spl-toolkit/tokens"
)

var _ tokens.Recorder = (*Metrics)(nil)

func TestRecorder(t *testing.T) {
	m := New("")

	m.ObserveRPC("getAccountInfo", 10*time.Millisecond, nil)
	m.ObserveRPC("getAccountInfo", 10*time.Millisecond, errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCCallErrors.WithLabelValues("getAccountInfo")))

	m.ObserveTx("transfer", "ok", time.Second)
	m.ObserveTx("transfer", "non_transferable", time.Second)
	m.ObserveTx("transfer", "ok", time.Second)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TxTotal.WithLabelValues("transfer", "ok")))

	m.CacheLookup("tokens", true)
	m.CacheLookup("tokens", false)
	m.CacheLookup("tokens", false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("tokens", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("tokens", "miss")))
}

func TestHandler(t *testing.T) {
	m := New("test")
	m.ObserveHTTP("/api/v1/wallets/:owner/tokens", "200", time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "test_http_requests_total")
	assert.Contains(t, string(body), "go_goroutines")
}
