package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/sirupsen/logrus"

	"github.com/nextcoding/saas-api/internal/jwks"
)

// signOutTimeout bounds the provider sign-out call. The session cookie is
// cleared either way, so a hung provider only costs these few seconds.
const signOutTimeout = 5 * time.Second

var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is what a verified session token asserts about the caller.
type Identity struct {
	UserID string
	Email  string
}

// Service verifies the hosted auth provider's session tokens and performs
// remote sign-out.
type Service struct {
	keys      *jwks.Cache
	logoutURL string
	client    *http.Client
	timeout   time.Duration
	log       *logrus.Entry
}

func NewService(jwksURL, logoutURL string, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		keys:      jwks.NewCache(jwksURL),
		logoutURL: logoutURL,
		client:    &http.Client{},
		timeout:   signOutTimeout,
		log:       log.WithField("component", "auth"),
	}
}

// VerifyToken validates an RS256 session token against the provider's key
// set and extracts the caller's identity. A verification failure triggers one
// retry with a forced key refresh, covering provider key rotation.
func (s *Service) VerifyToken(tokenString string) (*Identity, error) {
	token, err := s.parse(tokenString, false)
	if err != nil || !token.Valid {
		token, err = s.parse(tokenString, true)
		if err != nil || !token.Valid {
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrInvalidToken
	}
	email, _ := claims["email"].(string)

	return &Identity{UserID: sub, Email: email}, nil
}

func (s *Service) parse(tokenString string, forceRefresh bool) (*jwt.Token, error) {
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, jwt.NewValidationError("unexpected signing method", jwt.ValidationErrorSignatureInvalid)
		}
		kid, _ := token.Header["kid"].(string)
		return s.keys.Key(kid, forceRefresh)
	})
}

// SignOut revokes the session at the provider, giving up after the timeout.
// Callers clear local session state regardless of the returned error; this is
// a best-effort call for a non-critical operation.
func (s *Service) SignOut(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.logoutURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build sign-out request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sign-out call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sign-out call failed: HTTP %d", resp.StatusCode)
	}
	return nil
}
