package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"

	"github.com/nextcoding/saas-api/pkg/domain"
	"github.com/nextcoding/saas-api/pkg/pricing"
	"github.com/nextcoding/saas-api/pkg/repository/deadletter"
	"github.com/nextcoding/saas-api/pkg/repository/userstore"
)

// ErrInvalidSignature is returned before any event parsing when the signature
// header is missing or does not verify against the raw payload bytes.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// EventType is the closed set of provider events this service reacts to.
// Adding a new event means adding a constant and a dispatch arm.
type EventType string

const (
	EventCheckoutSessionCompleted EventType = "checkout.session.completed"
	EventSubscriptionCreated      EventType = "customer.subscription.created"
	EventSubscriptionUpdated      EventType = "customer.subscription.updated"
	EventSubscriptionDeleted      EventType = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded  EventType = "invoice.payment_succeeded"
	EventInvoicePaymentFailed     EventType = "invoice.payment_failed"
	EventCustomerCreated          EventType = "customer.created"
	EventCustomerUpdated          EventType = "customer.updated"
)

// Status classifies the effect of a verified event.
type Status string

const (
	StatusApplied          Status = "applied"
	StatusSkippedStale     Status = "skipped_stale"
	StatusIgnored          Status = "ignored"
	StatusRetryableFailure Status = "retryable_failure"
	StatusPermanentFailure Status = "permanent_failure"
)

// Outcome is the explicit per-event result. The HTTP layer acknowledges the
// provider regardless; failures are routed to the dead-letter store instead of
// being swallowed.
type Outcome struct {
	EventID   string
	EventType EventType
	Status    Status
	Reason    string
}

func (o Outcome) failed() bool {
	return o.Status == StatusRetryableFailure || o.Status == StatusPermanentFailure
}

// Resolver performs the secondary provider lookups some events need.
// billing.StripeService satisfies it.
type Resolver interface {
	SubscriptionCustomerID(ctx context.Context, subscriptionID string) (string, error)
	CustomerEmail(ctx context.Context, customerID string) (string, error)
}

type Receiver struct {
	secret      string
	users       userstore.Store
	catalog     *pricing.Catalog
	resolver    Resolver
	deadLetters deadletter.Store
	log         *logrus.Entry
}

func NewReceiver(secret string, users userstore.Store, catalog *pricing.Catalog, resolver Resolver, deadLetters deadletter.Store, log *logrus.Entry) *Receiver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Receiver{
		secret:      secret,
		users:       users,
		catalog:     catalog,
		resolver:    resolver,
		deadLetters: deadLetters,
		log:         log.WithField("component", "webhook"),
	}
}

// Process verifies the signature over the exact raw bytes, dispatches the
// event and records failed effects. A non-nil error is returned only for
// signature failures; everything after verification resolves to an Outcome.
func (r *Receiver) Process(ctx context.Context, payload []byte, sigHeader string) (Outcome, error) {
	if sigHeader == "" {
		return Outcome{}, fmt.Errorf("%w: missing stripe-signature header", ErrInvalidSignature)
	}
	event, err := stripewebhook.ConstructEvent(payload, sigHeader, r.secret)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	outcome := r.dispatch(ctx, event)
	outcome.EventID = event.ID
	outcome.EventType = EventType(event.Type)

	log := r.log.WithFields(logrus.Fields{
		"event_id":   outcome.EventID,
		"event_type": outcome.EventType,
		"status":     outcome.Status,
	})
	if outcome.Reason != "" {
		log = log.WithField("reason", outcome.Reason)
	}

	if outcome.failed() {
		log.Warn("webhook event effect failed")
		r.recordDeadLetter(ctx, outcome, payload)
	} else {
		log.Info("webhook event processed")
	}
	return outcome, nil
}

func (r *Receiver) recordDeadLetter(ctx context.Context, outcome Outcome, payload []byte) {
	class := deadletter.Retryable
	if outcome.Status == StatusPermanentFailure {
		class = deadletter.Permanent
	}
	err := r.deadLetters.Record(ctx, deadletter.Entry{
		EventID:        outcome.EventID,
		EventType:      string(outcome.EventType),
		Classification: class,
		Reason:         outcome.Reason,
		Payload:        payload,
	})
	if err != nil {
		r.log.WithError(err).WithField("event_id", outcome.EventID).
			Error("failed to record webhook dead letter")
	}
}

func (r *Receiver) dispatch(ctx context.Context, event stripe.Event) Outcome {
	switch EventType(event.Type) {
	case EventCheckoutSessionCompleted:
		return r.handleCheckoutCompleted(ctx, event)
	case EventSubscriptionCreated:
		return r.handleSubscriptionCreated(ctx, event)
	case EventSubscriptionUpdated:
		return r.handleSubscriptionUpdated(ctx, event)
	case EventSubscriptionDeleted:
		return r.handleSubscriptionDeleted(ctx, event)
	case EventInvoicePaymentSucceeded:
		return r.handleInvoice(ctx, event, r.catalog.Amount(domain.PlanPro))
	case EventInvoicePaymentFailed:
		return r.handleInvoice(ctx, event, 0)
	case EventCustomerCreated, EventCustomerUpdated:
		return Outcome{Status: StatusIgnored, Reason: "customer events carry no entitlement effect"}
	default:
		return Outcome{Status: StatusIgnored, Reason: "unhandled event type"}
	}
}

// handleCheckoutCompleted fires for both one-time payments and new
// subscriptions. It is the only event keyed by the local account id, which
// travels in the session metadata set at checkout creation.
func (r *Receiver) handleCheckoutCompleted(ctx context.Context, event stripe.Event) Outcome {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return Outcome{Status: StatusPermanentFailure, Reason: fmt.Sprintf("malformed checkout session payload: %v", err)}
	}

	userID := session.Metadata["userId"]
	if userID == "" {
		return Outcome{Status: StatusPermanentFailure, Reason: "no userId in session metadata"}
	}

	plan := domain.PlanID(session.Metadata["plan"])
	var premium int64
	switch plan {
	case domain.PlanPro, domain.PlanLifetime:
		premium = r.catalog.Amount(plan)
	default:
		// starter or unrecognized metadata stays at zero
	}

	var customerID *string
	if session.Customer != nil && session.Customer.ID != "" {
		customerID = &session.Customer.ID
	}

	return r.applyByID(ctx, userID, premium, customerID, event.Created)
}

func (r *Receiver) handleSubscriptionCreated(ctx context.Context, event stripe.Event) Outcome {
	sub, outcome := r.subscriptionFromEvent(event)
	if outcome != nil {
		return *outcome
	}

	if email, err := r.resolver.CustomerEmail(ctx, sub.Customer.ID); err == nil {
		r.log.WithFields(logrus.Fields{
			"subscription_id": sub.ID,
			"customer_id":     sub.Customer.ID,
			"customer_email":  email,
		}).Info("new subscription created")
	}

	return r.applyByCustomer(ctx, sub.Customer.ID, r.catalog.Amount(domain.PlanPro), event.Created)
}

func (r *Receiver) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) Outcome {
	sub, outcome := r.subscriptionFromEvent(event)
	if outcome != nil {
		return *outcome
	}

	// Only a transition to active restores the entitlement; past_due and the
	// like are left alone until a terminal event arrives.
	if sub.Status != stripe.SubscriptionStatusActive {
		return Outcome{Status: StatusIgnored, Reason: fmt.Sprintf("subscription status %s has no entitlement effect", sub.Status)}
	}

	return r.applyByCustomer(ctx, sub.Customer.ID, r.catalog.Amount(domain.PlanPro), event.Created)
}

func (r *Receiver) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) Outcome {
	sub, outcome := r.subscriptionFromEvent(event)
	if outcome != nil {
		return *outcome
	}
	return r.applyByCustomer(ctx, sub.Customer.ID, 0, event.Created)
}

// handleInvoice covers payment success and failure; both resolve the customer
// through the subscription referenced on the invoice.
func (r *Receiver) handleInvoice(ctx context.Context, event stripe.Event, premium int64) Outcome {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return Outcome{Status: StatusPermanentFailure, Reason: fmt.Sprintf("malformed invoice payload: %v", err)}
	}
	if invoice.Subscription == nil || invoice.Subscription.ID == "" {
		return Outcome{Status: StatusPermanentFailure, Reason: "no subscription on invoice"}
	}

	customerID, err := r.resolver.SubscriptionCustomerID(ctx, invoice.Subscription.ID)
	if err != nil {
		return Outcome{Status: StatusRetryableFailure, Reason: fmt.Sprintf("failed to resolve customer for subscription %s: %v", invoice.Subscription.ID, err)}
	}

	return r.applyByCustomer(ctx, customerID, premium, event.Created)
}

func (r *Receiver) subscriptionFromEvent(event stripe.Event) (*stripe.Subscription, *Outcome) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, &Outcome{Status: StatusPermanentFailure, Reason: fmt.Sprintf("malformed subscription payload: %v", err)}
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return nil, &Outcome{Status: StatusPermanentFailure, Reason: "no customer on subscription"}
	}
	return &sub, nil
}

func (r *Receiver) applyByID(ctx context.Context, userID string, premium int64, customerID *string, eventTS int64) Outcome {
	err := r.users.ApplyEntitlementByID(ctx, userID, premium, customerID, eventTS)
	return r.applyOutcome(err, fmt.Sprintf("user %s", userID))
}

func (r *Receiver) applyByCustomer(ctx context.Context, customerID string, premium int64, eventTS int64) Outcome {
	err := r.users.ApplyEntitlementByCustomer(ctx, customerID, premium, eventTS)
	return r.applyOutcome(err, fmt.Sprintf("customer %s", customerID))
}

func (r *Receiver) applyOutcome(err error, key string) Outcome {
	switch {
	case err == nil:
		return Outcome{Status: StatusApplied}
	case errors.Is(err, userstore.ErrStaleEvent):
		// An older event arriving after a newer one already applied; the
		// guard did its job, nothing to replay.
		return Outcome{Status: StatusSkippedStale, Reason: fmt.Sprintf("stale event for %s", key)}
	case errors.Is(err, userstore.ErrUserNotFound):
		// The row may not be provisioned yet (sign-up trigger lag) or the
		// customer reference not recorded yet; worth a replay.
		return Outcome{Status: StatusRetryableFailure, Reason: fmt.Sprintf("no user found for %s", key)}
	default:
		return Outcome{Status: StatusRetryableFailure, Reason: fmt.Sprintf("store write failed for %s: %v", key, err)}
	}
}
