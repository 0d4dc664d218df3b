package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// keyFetchTimeout bounds a single JWKS fetch; a timed-out fetch surfaces as
// ErrProviderUnavailable, never as ErrUnauthenticated.
const keyFetchTimeout = 10 * time.Second

// keyCache holds the provider's current public keys, indexed by kid. Reads
// are concurrent; a refresh replaces the whole map under the write lock and
// concurrent refreshers collapse into a single fetch. The cache is refreshed
// at most once per verification attempt, on a kid miss.
type keyCache struct {
	provider Provider
	client   *http.Client

	group singleflight.Group
	mu    sync.RWMutex
	keys  map[string]*rsa.PublicKey
}

func newKeyCache(provider Provider, client *http.Client) *keyCache {
	if client == nil {
		client = &http.Client{Timeout: keyFetchTimeout}
	}
	return &keyCache{
		provider: provider,
		client:   client,
		keys:     map[string]*rsa.PublicKey{},
	}
}

// key returns the cached public key for kid. A kid of "" matches single-key
// providers that omit key ids.
func (c *keyCache) key(kid string) (*rsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.keys[kid]
	return k, ok
}

// refresh fetches the provider's key set and replaces the cache. Concurrent
// callers share one fetch. Any failure is ErrProviderUnavailable.
func (c *keyCache) refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("jwks", func() (interface{}, error) {
		keys, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.keys = keys
		c.mu.Unlock()
		return nil, nil
	})
	return err
}

func (c *keyCache) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	jwksURL, err := c.provider.JWKSURL(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, keyFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build jwks request: %v", ErrProviderUnavailable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch jwks: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: jwks endpoint returned status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var doc struct {
		Keys []jsonWebKey `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode jwks: %v", ErrProviderUnavailable, err)
	}
	if len(doc.Keys) == 0 {
		return nil, fmt.Errorf("%w: jwks contains no keys", ErrProviderUnavailable)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, jwk := range doc.Keys {
		if jwk.Kty != "RSA" {
			continue
		}
		pub, err := jwk.rsaPublicKey()
		if err != nil {
			continue
		}
		keys[jwk.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: jwks contains no usable RSA keys", ErrProviderUnavailable)
	}
	return keys, nil
}

type jsonWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (k jsonWebKey) rsaPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e <= 0 {
		return nil, fmt.Errorf("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}
