// Package jwks fetches and caches the RSA public keys the hosted auth
// provider publishes for verifying its session tokens.
package jwks

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"
)

const defaultTTL = 30 * time.Minute

var ErrNoMatchingKey = errors.New("no matching public key found")

// Cache holds the provider's key set, keyed by kid.
type Cache struct {
	url    string
	ttl    time.Duration
	client *http.Client

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt map[string]time.Time
}

func NewCache(url string) *Cache {
	return &Cache{
		url:       url,
		ttl:       defaultTTL,
		client:    &http.Client{Timeout: 10 * time.Second},
		keys:      make(map[string]*rsa.PublicKey),
		fetchedAt: make(map[string]time.Time),
	}
}

// Key returns the public key for kid, refreshing the set from the provider
// when the cached copy is missing, expired or a refresh is forced.
func (c *Cache) Key(kid string, forceRefresh bool) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, errors.New("missing kid in token header")
	}

	c.mu.RLock()
	key, exists := c.keys[kid]
	fetched, fetchedExists := c.fetchedAt[kid]
	c.mu.RUnlock()

	if exists && fetchedExists && time.Since(fetched) <= c.ttl && !forceRefresh {
		return key, nil
	}

	resp, err := c.client.Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch public keys: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch public keys: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key response: %w", err)
	}

	var keySet struct {
		Keys []struct {
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.Unmarshal(body, &keySet); err != nil {
		return nil, fmt.Errorf("failed to parse public key JSON: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, keyData := range keySet.Keys {
		nBytes, err := decodeBase64URL(keyData.N)
		if err != nil {
			return nil, fmt.Errorf("failed to decode public key modulus: %w", err)
		}
		eBytes, err := decodeBase64URL(keyData.E)
		if err != nil {
			return nil, fmt.Errorf("failed to decode public key exponent: %w", err)
		}

		c.keys[keyData.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(nBytes),
			E: bigEndianBytesToInt(eBytes),
		}
		c.fetchedAt[keyData.Kid] = now
	}

	if key, ok := c.keys[kid]; ok {
		return key, nil
	}
	return nil, ErrNoMatchingKey
}

func decodeBase64URL(value string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(value)
}

func bigEndianBytesToInt(b []byte) int {
	result := 0
	for _, v := range b {
		result = result<<8 + int(v)
	}
	return result
}
