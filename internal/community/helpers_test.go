package community

import (
	"net/http"
	"net/http/httptest"
	"steamcommunity/internal/components/telemetry"
	"sync"
	"testing"
)

func newTestClient(t testing.TB, handler http.Handler, opts Options) (*Client, *httptest.Server, *telemetry.Recorder) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts.CommunityURL = server.URL
	opts.APIURL = server.URL
	if opts.ExtraCookieHosts == nil {
		opts.ExtraCookieHosts = []string{}
	}

	rec := telemetry.NewRecorder()
	client, err := NewClient(opts, rec)
	if err != nil {
		t.Fatal(err)
	}
	return client, server, rec
}

// captured collects values seen by handlers, which run on server goroutines.
type captured struct {
	mu     sync.Mutex
	values map[string][]string
}

func newCaptured() *captured {
	return &captured{values: map[string][]string{}}
}

func (c *captured) add(key, value string) {
	c.mu.Lock()
	c.values[key] = append(c.values[key], value)
	c.mu.Unlock()
}

func (c *captured) get(key string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.values[key]...)
}
