package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"

	"github.com/nextcoding/saas-api/pkg/config"
	"github.com/nextcoding/saas-api/pkg/domain"
	"github.com/nextcoding/saas-api/pkg/pricing"
	"github.com/nextcoding/saas-api/pkg/repository/userstore"
	"github.com/nextcoding/saas-api/pkg/service/auth"
	"github.com/nextcoding/saas-api/pkg/service/billing"
	"github.com/nextcoding/saas-api/pkg/service/webhook"
)

// maxWebhookBody bounds what the webhook endpoint will read before verifying.
const maxWebhookBody = 1 << 20

// SessionService is the slice of the auth service the API needs.
type SessionService interface {
	VerifyToken(token string) (*auth.Identity, error)
	SignOut(ctx context.Context, token string) error
}

type Handler struct {
	app      config.App
	catalog  *pricing.Catalog
	billing  billing.Service
	webhooks *webhook.Receiver
	users    userstore.Store
	sessions SessionService
	metrics  *Metrics
	log      *logrus.Entry
}

func NewHandler(app config.App, catalog *pricing.Catalog, billingSvc billing.Service, webhooks *webhook.Receiver, users userstore.Store, sessions SessionService, metrics *Metrics, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{
		app:      app,
		catalog:  catalog,
		billing:  billingSvc,
		webhooks: webhooks,
		users:    users,
		sessions: sessions,
		metrics:  metrics,
		log:      log.WithField("component", "api"),
	}
}

func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	// Routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/stripe/checkout", h.HandleCreateCheckout)
		r.Get("/stripe/checkout", h.HandleGetCheckoutSession)
		r.Post("/stripe/billing-portal", h.HandleBillingPortal)
		r.Post("/stripe/webhook", h.HandleWebhook)
		r.Get("/favicon", h.HandleFavicon)
		r.Post("/auth/signout", h.HandleSignOut)
	})

	// Protected area
	r.Group(func(r chi.Router) {
		r.Use(h.RequireUser)
		r.Use(h.RequirePremium)
		r.Get("/dashboard", h.HandleDashboard)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

type CheckoutRequest struct {
	Plan       string `json:"plan"`
	UserID     string `json:"userId"`
	UserEmail  string `json:"userEmail"`
	SuccessURL string `json:"successUrl,omitempty"`
	CancelURL  string `json:"cancelUrl,omitempty"`
}

type CheckoutResponse struct {
	Success     bool   `json:"success"`
	SessionID   string `json:"sessionId,omitempty"`
	URL         string `json:"url,omitempty"`
	Plan        string `json:"plan,omitempty"`
	Amount      int64  `json:"amount,omitempty"`
	Message     string `json:"message,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

func (h *Handler) HandleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.billing.CreateCheckoutSession(r.Context(), billing.CheckoutRequest{
		Plan:       domain.PlanID(req.Plan),
		UserID:     req.UserID,
		UserEmail:  req.UserEmail,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		h.respondBillingError(w, err, "Payment processing error")
		return
	}

	if result.Free() {
		respondWithJSON(w, http.StatusOK, CheckoutResponse{
			Success:     true,
			Message:     result.Message,
			RedirectURL: result.RedirectURL,
		})
		return
	}

	h.metrics.CheckoutSessionsCreated.Inc()
	respondWithJSON(w, http.StatusOK, CheckoutResponse{
		Success:   true,
		SessionID: result.SessionID,
		URL:       result.URL,
		Plan:      string(result.Plan),
		Amount:    result.Amount,
	})
}

func (h *Handler) HandleGetCheckoutSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondWithError(w, http.StatusBadRequest, "Missing session_id parameter")
		return
	}

	session, err := h.billing.GetCheckoutSession(r.Context(), sessionID)
	if err != nil {
		h.log.WithError(err).WithField("session_id", sessionID).Error("failed to retrieve checkout session")
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve session")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"session": session,
	})
}

type BillingPortalRequest struct {
	UserID    string `json:"userId"`
	ReturnURL string `json:"returnUrl,omitempty"`
}

func (h *Handler) HandleBillingPortal(w http.ResponseWriter, r *http.Request) {
	var req BillingPortalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		respondWithError(w, http.StatusBadRequest, "Missing required field: userId")
		return
	}

	user, err := h.users.GetByID(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, userstore.ErrUserNotFound) {
			respondWithError(w, http.StatusNotFound, "User not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if user.StripeCustomerID == nil {
		respondWithError(w, http.StatusBadRequest, "User has no billing account")
		return
	}

	url, err := h.billing.CreateBillingPortalSession(r.Context(), *user.StripeCustomerID, req.ReturnURL)
	if err != nil {
		h.respondBillingError(w, err, "Billing portal error")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"url":     url,
	})
}

func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		respondWithError(w, http.StatusBadRequest, "Missing Stripe signature")
		return
	}

	outcome, err := h.webhooks.Process(r.Context(), payload, sigHeader)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.log.WithError(err).Warn("webhook signature verification failed")
			respondWithError(w, http.StatusBadRequest, "Invalid signature")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.metrics.WebhookEvents.WithLabelValues(string(outcome.EventType), string(outcome.Status)).Inc()

	// Always acknowledge once the signature verified; failed effects are in
	// the dead-letter store, and a non-200 here would only trigger provider
	// retry storms.
	respondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if token != "" {
		if err := h.sessions.SignOut(r.Context(), token); err != nil {
			// Local session artifacts are cleared regardless; the remote
			// session expires on its own.
			h.log.WithError(err).Warn("provider sign-out did not complete")
		}
	}
	clearSessionCookie(w)
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type ProfileResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Premium   int64  `json:"premium"`
	IsPremium bool   `json:"isPremium"`
	IsActive  bool   `json:"isActive"`
	UpdatedAt string `json:"updatedAt"`
}

func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	user, err := h.users.GetByID(r.Context(), identity.UserID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load profile")
		return
	}

	respondWithJSON(w, http.StatusOK, ProfileResponse{
		ID:        user.ID,
		Email:     user.Email,
		Premium:   user.Premium,
		IsPremium: user.IsPremium(),
		IsActive:  user.IsActive,
		UpdatedAt: user.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

// respondBillingError maps billing failures onto the error taxonomy:
// validation problems and provider rejections are the caller's 400, anything
// else a 500.
func (h *Handler) respondBillingError(w http.ResponseWriter, err error, providerMessage string) {
	var verr *billing.ValidationError
	if errors.As(err, &verr) {
		respondWithError(w, http.StatusBadRequest, verr.Message)
		return
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		respondWithJSON(w, http.StatusBadRequest, map[string]any{
			"error":   providerMessage,
			"message": stripeErr.Msg,
			"type":    string(stripeErr.Type),
		})
		return
	}

	h.log.WithError(err).Error("billing operation failed")
	respondWithError(w, http.StatusInternalServerError, "Internal server error")
}

// sessionToken pulls the session token from the session cookie or the
// Authorization header.
func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

const sessionCookieName = "sb-access-token"

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// Helper functions for JSON responses
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
