package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ValentinKolb/gridlock/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler func([]byte) []byte) *httptest.Server {
	t.Helper()
	st := &httpServerTransport{config: common.ServerConfig{Transport: common.TransportConfig{MaxFrameSize: 64}}}
	st.RegisterHandler(handler)

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+rpcPath, st.handleRequest)
	mux.HandleFunc("GET "+metricsPath, handleMetrics)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestHttpRoundTrip(t *testing.T) {
	server := newTestServer(t, func(req []byte) []byte {
		return bytes.ToUpper(req)
	})

	client := NewHttpClientTransport()
	require.NoError(t, client.Connect(common.ClientConfig{
		Endpoints:     []string{server.URL},
		TimeoutSecond: 2,
	}))
	defer client.Close()

	resp, err := client.Send([]byte("acquire"))
	require.NoError(t, err)
	assert.Equal(t, "ACQUIRE", string(resp))
}

func TestHttpEndpointWithoutScheme(t *testing.T) {
	server := newTestServer(t, func(req []byte) []byte { return req })

	client := NewHttpClientTransport()
	require.NoError(t, client.Connect(common.ClientConfig{
		Endpoints: []string{strings.TrimPrefix(server.URL, "http://")},
	}))
	defer client.Close()

	resp, err := client.Send([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(resp))
}

func TestHttpBodyLimit(t *testing.T) {
	server := newTestServer(t, func(req []byte) []byte { return req })

	client := NewHttpClientTransport()
	require.NoError(t, client.Connect(common.ClientConfig{Endpoints: []string{server.URL}}))
	defer client.Close()

	_, err := client.Send(bytes.Repeat([]byte{'a'}, 65))
	assert.Error(t, err)
}

func TestHttpMetrics(t *testing.T) {
	metrics.GetOrCreateCounter(`gridlock_http_test_total`).Inc()
	server := newTestServer(t, func(req []byte) []byte { return req })

	resp, err := http.Get(server.URL + metricsPath)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body.String(), "gridlock_http_test_total 1")
}

func TestHttpNotConnected(t *testing.T) {
	client := NewHttpClientTransport()
	_, err := client.Send([]byte("x"))
	assert.Error(t, err)
	assert.Error(t, client.Connect(common.ClientConfig{}))
}
