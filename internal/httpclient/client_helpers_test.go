package httpclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// newClient builds a Client from DefaultConfig adjusted by mutate
func newClient(t *testing.T, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := DefaultConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}
	c := New(&cfg)
	t.Cleanup(c.Close)
	return c
}

// serve starts handler on a local server and returns its URL
func serve(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.URL
}

// readBody reads and closes resp.Body
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}
