package platforms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestFetchClientCachesResponses(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"verified":true}`))
	}))
	defer server.Close()

	client := newFetchClient(t.TempDir())
	defer client.Close()

	body, status, err := client.Get(context.Background(), server.URL+"/contract")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `{"verified":true}`, string(body))

	// The second fetch is served from the cache without touching the network.
	body, status, err = client.Get(context.Background(), server.URL+"/contract")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `{"verified":true}`, string(body))
	assert.Equal(t, int32(1), hits.Load())

	// A different URL misses the cache.
	_, _, err = client.Get(context.Background(), server.URL+"/other")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchClientRetriesRateLimiting(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := newFetchClient(t.TempDir())
	defer client.Close()

	body, status, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchClientReturnsClientErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no such contract"))
	}))
	defer server.Close()

	client := newFetchClient(t.TempDir())
	defer client.Close()

	body, status, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "no such contract", string(body))

	// Error responses are not cached, so the next fetch goes back out.
	_, _, err = client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchClientForget(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("attempt"))
	}))
	defer server.Close()

	client := newFetchClient(t.TempDir())
	defer client.Close()

	_, _, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)

	// Dropping the cached body forces the next fetch onto the network again.
	client.forget(server.URL)
	_, _, err = client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchClientWithoutCache(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("uncached"))
	}))
	defer server.Close()

	// A cache that cannot be opened degrades to direct fetching.
	client := &fetchClient{httpClient: server.Client(), limiter: rate.NewLimiter(rate.Limit(5), 1)}
	_, _, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	_, _, err = client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
	require.NoError(t, client.Close())
}

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()

	path, err := safeJoin(root, "contracts/Token.sol")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "contracts", "Token.sol"), path)

	// Absolute names are re-rooted below the contract directory.
	path, err = safeJoin(root, "/node_modules/@openzeppelin/Ownable.sol")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "node_modules", "@openzeppelin", "Ownable.sol"), path)

	// Redundant segments collapse before the join.
	path, err = safeJoin(root, "./contracts//Token.sol")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "contracts", "Token.sol"), path)

	_, err = safeJoin(root, "../secret.sol")
	assert.ErrorIs(t, err, types.ErrInvalidTarget)

	_, err = safeJoin(root, "contracts/../../secret.sol")
	assert.ErrorIs(t, err, types.ErrInvalidTarget)
}

func TestSanitizeRemappings(t *testing.T) {
	sanitized := SanitizeRemappings([]string{
		"@openzeppelin/=node_modules/@openzeppelin/",
		"ds-test/=lib/ds-test/src/",
		"@oz/=/node_modules/@oz/",
		"evil/=../../etc/",
		"forge-std/=lib/forge-std/src/StdCheats.sol",
	})

	assert.Equal(t, []string{
		// Trailing separators survive, solc replaces prefixes textually.
		"@openzeppelin/=node_modules/@openzeppelin/",
		"ds-test/=lib/ds-test/src/",
		"@oz/=node_modules/@oz/",
		"forge-std/=lib/forge-std/src/StdCheats.sol",
	}, sanitized)
}

func TestSanitizeRemappingsPassthrough(t *testing.T) {
	// Entries without a target are kept untouched.
	assert.Equal(t, []string{"plain"}, SanitizeRemappings([]string{"plain"}))
	assert.Empty(t, SanitizeRemappings(nil))
}
