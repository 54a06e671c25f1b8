package jwks

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jwksServer(t *testing.T, keys map[string]*rsa.PublicKey, hits *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits != nil {
			*hits++
		}
		body := `{"keys":[`
		first := true
		for kid, key := range keys {
			if !first {
				body += ","
			}
			first = false
			n := base64.RawURLEncoding.EncodeToString(key.N.Bytes())
			e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes())
			body += fmt.Sprintf(`{"kid":%q,"n":%q,"e":%q}`, kid, n, e)
		}
		body += `]}`
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
}

func generateKey(t *testing.T) *rsa.PublicKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &priv.PublicKey
}

func TestKey_FetchAndCache(t *testing.T) {
	pub := generateKey(t)
	hits := 0
	server := jwksServer(t, map[string]*rsa.PublicKey{"key-1": pub}, &hits)
	defer server.Close()

	cache := NewCache(server.URL)

	got, err := cache.Key("key-1", false)
	require.NoError(t, err)
	assert.Zero(t, got.N.Cmp(pub.N))
	assert.Equal(t, pub.E, got.E)
	assert.Equal(t, 1, hits)

	// Second lookup within the TTL is served from the cache.
	_, err = cache.Key("key-1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
}

func TestKey_ForceRefresh(t *testing.T) {
	pub := generateKey(t)
	hits := 0
	server := jwksServer(t, map[string]*rsa.PublicKey{"key-1": pub}, &hits)
	defer server.Close()

	cache := NewCache(server.URL)

	_, err := cache.Key("key-1", false)
	require.NoError(t, err)
	_, err = cache.Key("key-1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, hits)
}

func TestKey_UnknownKid(t *testing.T) {
	server := jwksServer(t, map[string]*rsa.PublicKey{"key-1": generateKey(t)}, nil)
	defer server.Close()

	cache := NewCache(server.URL)

	_, err := cache.Key("key-2", false)
	assert.ErrorIs(t, err, ErrNoMatchingKey)
}

func TestKey_MissingKid(t *testing.T) {
	cache := NewCache("http://unused.invalid")
	_, err := cache.Key("", false)
	assert.Error(t, err)
}

func TestKey_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cache := NewCache(server.URL)
	_, err := cache.Key("key-1", false)
	assert.Error(t, err)
}
