package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/nextcoding/saas-api/pkg/service/auth"
)

type contextKey string

const identityContextKey contextKey = "identity"

// IdentityFromContext returns the verified caller identity set by RequireUser.
func IdentityFromContext(ctx context.Context) (*auth.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*auth.Identity)
	return identity, ok
}

// RequireUser gates protected routes on a valid session. Anonymous or
// invalid-session requests are redirected to sign-in with the originally
// requested path preserved as the return target.
func (h *Handler) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			h.redirectToSignIn(w, r)
			return
		}

		identity, err := h.sessions.VerifyToken(token)
		if err != nil {
			h.redirectToSignIn(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePremium gates on entitlement. A store read failure counts as not
// entitled; the gate fails closed rather than retrying.
func (h *Handler) RequirePremium(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			h.redirectToSignIn(w, r)
			return
		}

		user, err := h.users.GetByID(r.Context(), identity.UserID)
		if err != nil || !user.IsPremium() {
			http.Redirect(w, r, "/pricing", http.StatusFound)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) redirectToSignIn(w http.ResponseWriter, r *http.Request) {
	target := "/auth/signin?redirect=" + url.QueryEscape(r.URL.Path)
	http.Redirect(w, r, target, http.StatusFound)
}
