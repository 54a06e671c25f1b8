package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/nextcoding/saas-api/pkg/config"
	"github.com/nextcoding/saas-api/pkg/domain"
	"github.com/nextcoding/saas-api/pkg/pricing"
)

// ValidationError marks a request rejected before any provider call. The API
// layer maps it to a plain 400, distinct from provider errors.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type CheckoutRequest struct {
	Plan       domain.PlanID
	UserID     string
	UserEmail  string
	SuccessURL string
	CancelURL  string
}

// CheckoutResult is either a hosted checkout session (paid plans) or a plain
// signup redirect (free plan, no provider involvement).
type CheckoutResult struct {
	SessionID   string
	URL         string
	Plan        domain.PlanID
	Amount      int64
	Message     string
	RedirectURL string
}

// Free reports whether the result is the free-plan signup redirect.
func (r *CheckoutResult) Free() bool {
	return r.RedirectURL != ""
}

// SessionStatus is the projection clients poll after being redirected back
// from the provider.
type SessionStatus struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	CustomerEmail string            `json:"customer_email"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

type Service interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*SessionStatus, error)
	CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	SubscriptionCustomerID(ctx context.Context, subscriptionID string) (string, error)
	CustomerEmail(ctx context.Context, customerID string) (string, error)
}

// StripeService implements Service against the Stripe API.
type StripeService struct {
	api     *client.API
	app     config.App
	catalog *pricing.Catalog
}

func NewStripeService(secretKey string, app config.App, catalog *pricing.Catalog) *StripeService {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeService{api: api, app: app, catalog: catalog}
}

// NewStripeServiceWithBackends is used by tests to intercept HTTP traffic.
func NewStripeServiceWithBackends(secretKey string, backends *stripe.Backends, app config.App, catalog *pricing.Catalog) *StripeService {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeService{api: api, app: app, catalog: catalog}
}

func (s *StripeService) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if req.Plan == "" || req.UserID == "" || req.UserEmail == "" {
		return nil, &ValidationError{Message: "Missing required fields: plan, userId, userEmail"}
	}
	if !s.catalog.IsValidPlan(string(req.Plan)) {
		return nil, &ValidationError{
			Message: fmt.Sprintf("Invalid plan. Must be one of: %s", strings.Join(s.catalog.ValidPlans(), ", ")),
		}
	}

	plan, _ := s.catalog.Plan(req.Plan)

	// The free tier never touches the provider; the client is sent straight
	// to signup with the plan tagged.
	if plan.Stripe.Type == domain.PlanTypeFree {
		return &CheckoutResult{
			Plan:        req.Plan,
			Message:     "Free plan - redirect to signup",
			RedirectURL: "/auth/signup?plan=" + string(req.Plan),
		}, nil
	}

	params := s.buildSessionParams(plan, req)
	params.Context = ctx

	session, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}

	return &CheckoutResult{
		SessionID: session.ID,
		URL:       session.URL,
		Plan:      req.Plan,
		Amount:    plan.Stripe.Amount,
	}, nil
}

// buildSessionParams assembles the hosted checkout request. Subscription mode
// references the provider-side price; one-time mode prices the line item
// inline at request time.
func (s *StripeService) buildSessionParams(plan pricing.Plan, req CheckoutRequest) *stripe.CheckoutSessionParams {
	successURL := req.SuccessURL
	if successURL == "" {
		successURL = s.app.SiteURL + "/dashboard?session_id={CHECKOUT_SESSION_ID}"
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = s.app.SiteURL + "/pricing?cancelled=true"
	}

	params := &stripe.CheckoutSessionParams{
		Mode:                     stripe.String(string(plan.Stripe.Mode)),
		CustomerEmail:            stripe.String(req.UserEmail),
		ClientReferenceID:        stripe.String(req.UserID),
		SuccessURL:               stripe.String(successURL),
		CancelURL:                stripe.String(cancelURL),
		PaymentMethodTypes:       stripe.StringSlice([]string{"card"}),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionAuto)),
		AllowPromotionCodes:      stripe.Bool(true),
	}
	// The webhook recovers the local account from this metadata.
	params.AddMetadata("userId", req.UserID)
	params.AddMetadata("plan", string(plan.ID))
	params.AddMetadata("userEmail", req.UserEmail)

	if plan.Stripe.Mode == domain.CheckoutModeSubscription {
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(plan.Stripe.PriceID),
				Quantity: stripe.Int64(1),
			},
		}
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"userId": req.UserID,
				"plan":   string(plan.ID),
			},
		}
	} else {
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(plan.Stripe.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(s.app.Name + " - " + plan.Name),
						Description: stripe.String(plan.Description),
					},
					UnitAmount: stripe.Int64(plan.Stripe.Amount),
				},
				Quantity: stripe.Int64(1),
			},
		}
	}

	return params
}

func (s *StripeService) GetCheckoutSession(ctx context.Context, sessionID string) (*SessionStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	session, err := s.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, err
	}

	return &SessionStatus{
		ID:            session.ID,
		Status:        string(session.PaymentStatus),
		CustomerEmail: session.CustomerEmail,
		AmountTotal:   session.AmountTotal,
		Currency:      string(session.Currency),
		Metadata:      session.Metadata,
	}, nil
}

func (s *StripeService) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if returnURL == "" {
		returnURL = s.app.SiteURL + "/dashboard"
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	session, err := s.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", err
	}
	return session.URL, nil
}

// SubscriptionCustomerID resolves the customer reference behind a
// subscription. Invoice events only carry the subscription id.
func (s *StripeService) SubscriptionCustomerID(ctx context.Context, subscriptionID string) (string, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := s.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return "", err
	}
	if sub.Customer == nil {
		return "", fmt.Errorf("subscription %s has no customer", subscriptionID)
	}
	return sub.Customer.ID, nil
}

func (s *StripeService) CustomerEmail(ctx context.Context, customerID string) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	customer, err := s.api.Customers.Get(customerID, params)
	if err != nil {
		return "", err
	}
	return customer.Email, nil
}
