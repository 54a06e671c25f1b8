package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKid = "key-1"

func newJWKSServer(t *testing.T, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()
	pub := key.Public().(*rsa.PublicKey)
	jwksDoc := map[string]any{
		"keys": []map[string]string{
			{
				"kid": testKid,
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jwksDoc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims, kid string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestVerifyToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := newJWKSServer(t, key)
	svc := NewService(srv.URL, srv.URL+"/logout", nil)

	t.Run("valid token", func(t *testing.T) {
		tokenString := signToken(t, key, jwt.MapClaims{
			"sub":   "user-123",
			"email": "a@b.c",
			"exp":   time.Now().Add(time.Hour).Unix(),
		}, testKid)

		identity, err := svc.VerifyToken(tokenString)
		require.NoError(t, err)
		assert.Equal(t, "user-123", identity.UserID)
		assert.Equal(t, "a@b.c", identity.Email)
	})

	t.Run("expired token", func(t *testing.T) {
		tokenString := signToken(t, key, jwt.MapClaims{
			"sub": "user-123",
			"exp": time.Now().Add(-time.Hour).Unix(),
		}, testKid)

		_, err := svc.VerifyToken(tokenString)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing sub claim", func(t *testing.T) {
		tokenString := signToken(t, key, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		}, testKid)

		_, err := svc.VerifyToken(tokenString)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown kid", func(t *testing.T) {
		tokenString := signToken(t, key, jwt.MapClaims{
			"sub": "user-123",
			"exp": time.Now().Add(time.Hour).Unix(),
		}, "other-key")

		_, err := svc.VerifyToken(tokenString)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("signed by a different key", func(t *testing.T) {
		otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		tokenString := signToken(t, otherKey, jwt.MapClaims{
			"sub": "user-123",
			"exp": time.Now().Add(time.Hour).Unix(),
		}, testKid)

		_, err = svc.VerifyToken(tokenString)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.VerifyToken("not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestSignOut(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		svc := &Service{logoutURL: srv.URL, client: srv.Client(), timeout: time.Second}
		err := svc.SignOut(context.Background(), "tok-1")
		require.NoError(t, err)
		assert.Equal(t, "Bearer tok-1", gotAuth)
	})

	t.Run("provider error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		svc := &Service{logoutURL: srv.URL, client: srv.Client(), timeout: time.Second}
		err := svc.SignOut(context.Background(), "tok-1")
		assert.Error(t, err)
	})

	t.Run("timeout fires before a hung provider responds", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer srv.Close()
		defer close(release)

		svc := &Service{logoutURL: srv.URL, client: srv.Client(), timeout: 50 * time.Millisecond}
		start := time.Now()
		err := svc.SignOut(context.Background(), "tok-1")
		assert.Error(t, err)
		assert.Less(t, time.Since(start), time.Second)
	})
}
