package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mfleet/streamvault/internal/cache"
	"github.com/mfleet/streamvault/internal/ratelimit"
)

// errNotFound marks an upstream 404. For paginated listings this is the end
// of pagination, not a failure.
var errNotFound = errors.New("upstream: not found")

// upstreamClient is the adapters' HTTP path: every request is admitted by
// the provider's reservoir and answered from the blob cache when fresh.
type upstreamClient struct {
	http    *http.Client
	limiter *ratelimit.Reservoir
	cache   *cache.Store
}

func newUpstreamClient(limiter *ratelimit.Reservoir, store *cache.Store) *upstreamClient {
	return &upstreamClient{
		http:    &http.Client{Timeout: 90 * time.Second},
		limiter: limiter,
		cache:   store,
	}
}

// get fetches url, serving from cache when the blob under cacheKey is fresh.
// A nil cacheKey bypasses caching entirely.
func (c *upstreamClient) get(ctx context.Context, url string, cacheKey []string) ([]byte, error) {
	if cacheKey != nil {
		if data, ok := c.cache.Fetch(cacheKey...); ok {
			return data, nil
		}
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.limiter.Release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream: %s returned %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if cacheKey != nil {
		if err := c.cache.Put(cacheKey, data, nil); err != nil {
			return nil, fmt.Errorf("upstream: cache write: %w", err)
		}
	}
	return data, nil
}
