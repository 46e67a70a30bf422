package platforms

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/crytic/crytic-compile-go/logging"
	"github.com/crytic/crytic-compile-go/utils"
	"go.etcd.io/bbolt"
	"golang.org/x/time/rate"
)

const (
	// fetchCacheFile is the response cache location under the export directory.
	fetchCacheFile = "cache/fetch.db"

	// fetchCacheBucket holds cached response bodies keyed by URL.
	fetchCacheBucket = "responses"

	// fetchUserAgent identifies the tool to verification services.
	fetchUserAgent = "crytic-compile"

	// fetchMaxAttempts bounds retries of rate-limited or transiently failing requests.
	fetchMaxAttempts = 5

	// fetchBackoffBase is the first retry delay, doubled per attempt with jitter on top.
	fetchBackoffBase = time.Second
)

// fetchClient retrieves documents from verification services. Requests are rate limited, retried with backoff on
// transient failures, and successful bodies are cached on disk so repeated runs stay off the network.
type fetchClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *bbolt.DB
}

// newFetchClient opens a fetch client whose cache lives under the export directory. A cache that cannot be
// opened degrades to uncached fetching rather than failing the run.
func newFetchClient(exportDirectory string) *fetchClient {
	client := &fetchClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		// Free verification API tiers allow around five requests per second.
		limiter: rate.NewLimiter(rate.Limit(5), 1),
	}

	cachePath := filepath.Join(exportDirectory, fetchCacheFile)
	if err := utils.MakeDirectory(filepath.Dir(cachePath)); err != nil {
		logging.GlobalLogger.Warn("Could not create the fetch cache directory: ", err)
		return client
	}
	cache, err := bbolt.Open(cachePath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		logging.GlobalLogger.Warn("Could not open the fetch cache: ", err)
		return client
	}
	client.cache = cache
	return client
}

// Close releases the response cache.
func (c *fetchClient) Close() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Close()
}

// Get fetches a URL and returns the response body and status code. Bodies of successful responses are served
// from and stored into the cache; HTTP errors other than rate limiting are returned to the caller undecorated.
func (c *fetchClient) Get(ctx context.Context, url string) ([]byte, int, error) {
	if cached, ok := c.cachedResponse(url); ok {
		return cached, http.StatusOK, nil
	}

	var lastErr error
	for attempt := 0; attempt < fetchMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoffDelay(attempt)):
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}

		request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, 0, err
		}
		request.Header.Set("User-Agent", fetchUserAgent)

		response, err := c.httpClient.Do(request)
		if err != nil {
			// Network level failures are worth retrying, the service may just be flapping.
			lastErr = err
			continue
		}
		body, err := io.ReadAll(response.Body)
		response.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if response.StatusCode == http.StatusTooManyRequests || response.StatusCode >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("%s returned status %d", url, response.StatusCode)
			continue
		}
		if response.StatusCode == http.StatusOK {
			c.storeResponse(url, body)
		}
		return body, response.StatusCode, nil
	}
	return nil, 0, fmt.Errorf("%w: %v", types.ErrNetworkError, lastErr)
}

// cachedResponse looks a URL up in the response cache.
func (c *fetchClient) cachedResponse(url string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}
	var cached []byte
	_ = c.cache.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(fetchCacheBucket))
		if bucket == nil {
			return nil
		}
		if value := bucket.Get([]byte(url)); value != nil {
			cached = make([]byte, len(value))
			copy(cached, value)
		}
		return nil
	})
	return cached, cached != nil
}

// forget drops a cached response, used when a service reports rate limiting in-band with a successful status.
func (c *fetchClient) forget(url string) {
	if c.cache == nil {
		return
	}
	_ = c.cache.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(fetchCacheBucket))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(url))
	})
}

// storeResponse records a successful response body for a URL.
func (c *fetchClient) storeResponse(url string, body []byte) {
	if c.cache == nil {
		return
	}
	err := c.cache.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(fetchCacheBucket))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(url), body)
	})
	if err != nil {
		logging.GlobalLogger.Warn("Could not cache the response for ", url, ": ", err)
	}
}

// backoffDelay returns the delay before the given retry attempt, exponential with jitter so synchronized clients
// spread out.
func backoffDelay(attempt int) time.Duration {
	delay := fetchBackoffBase << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(fetchBackoffBase)))
	return delay + jitter
}

// safeJoin joins an untrusted relative path below a root, rejecting paths that would escape it. Fetched source
// trees name their own files, so the names cannot be trusted with the filesystem.
func safeJoin(root string, untrusted string) (string, error) {
	cleaned := filepath.Clean(strings.TrimPrefix(filepath.ToSlash(untrusted), "/"))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: source path %q escapes the contract directory", types.ErrInvalidTarget, untrusted)
	}
	return filepath.Join(root, filepath.FromSlash(cleaned)), nil
}

// SanitizeRemappings rewrites recovered import remappings to stay within the materialized contract directory.
// Absolute targets are re-rooted and targets that still escape are dropped.
func SanitizeRemappings(remappings []string) []string {
	sanitized := make([]string, 0, len(remappings))
	for _, remapping := range remappings {
		prefix, target, found := strings.Cut(remapping, "=")
		if !found {
			sanitized = append(sanitized, remapping)
			continue
		}
		slashed := filepath.ToSlash(target)
		cleaned := filepath.ToSlash(filepath.Clean(strings.TrimPrefix(slashed, "/")))
		if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
			logging.GlobalLogger.Warn("Dropping a remapping escaping the contract directory: ", remapping)
			continue
		}
		// Clean strips the trailing separator, which solc's textual prefix replacement needs.
		if strings.HasSuffix(slashed, "/") && !strings.HasSuffix(cleaned, "/") {
			cleaned += "/"
		}
		sanitized = append(sanitized, prefix+"="+cleaned)
	}
	return sanitized
}
