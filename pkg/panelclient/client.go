// JSON client for the panel backend. All outgoing calls are serialized
// through a request coordinator so dashboard bursts cannot trip the backend's
// rate limits, and GET payloads are cached for a short TTL.
package panelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/azadnet/vpnops/pkg/requestqueue"
	"github.com/azadnet/vpnops/pkg/ttlcache"
	"github.com/function61/gokit/logex"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	queue      *requestqueue.Coordinator
	cache      *ttlcache.Cache
	logl       *logex.Leveled
}

func New(baseURL string, logger *log.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		queue:      requestqueue.New(0, logger),
		cache:      ttlcache.New(0, 0, logger),
		logl:       logex.Levels(logger),
	}
}

// GetJSON serves from cache when the payload is fresh; otherwise the fetch
// goes through the coordinator and the response body is cached.
func (c *Client) GetJSON(ctx context.Context, path string, out interface{}) error {
	cacheKey := "GET " + path

	if payload, found := c.cache.Read(cacheKey); found {
		return json.Unmarshal(payload.([]byte), out)
	}

	value, err := c.queue.Enqueue(ctx, func(ctx context.Context) (interface{}, error) {
		return c.fetch(ctx, http.MethodGet, path, nil)
	}).Wait(ctx)
	if err != nil {
		return err
	}

	body := value.([]byte)
	c.cache.Write(cacheKey, body)

	return json.Unmarshal(body, out)
}

// PostJSON sends a mutation and invalidates cached payloads whose key
// contains the path, since they may now be stale.
func (c *Client) PostJSON(ctx context.Context, path string, in interface{}, out interface{}) error {
	reqBody, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("POST %s: encode: %w", path, err)
	}

	value, err := c.queue.Enqueue(ctx, func(ctx context.Context) (interface{}, error) {
		return c.fetch(ctx, http.MethodPost, path, reqBody)
	}).Wait(ctx)
	if err != nil {
		return err
	}

	c.cache.Invalidate(path)

	if out == nil {
		return nil
	}

	return json.Unmarshal(value.([]byte), out)
}

func (c *Client) InvalidateCache(pattern string) int {
	return c.cache.Invalidate(pattern)
}

func (c *Client) CacheStats() ttlcache.Stats {
	return c.cache.Stats()
}

func (c *Client) fetch(ctx context.Context, method string, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// transient network errors propagate as-is, retrying is the caller's call
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return nil, &RateLimitedError{RetryAfter: retryAfterFrom(resp)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%s %s: unexpected status: %s", method, path, resp.Status)
	}

	return io.ReadAll(resp.Body)
}
