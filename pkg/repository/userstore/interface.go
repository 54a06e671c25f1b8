package userstore

import (
	"context"
	"errors"

	"github.com/nextcoding/saas-api/pkg/domain"
)

var (
	ErrUserNotFound = errors.New("user not found")
	// ErrStaleEvent is returned when an entitlement write carries an event
	// timestamp older than the one already applied to the row.
	ErrStaleEvent = errors.New("entitlement event is older than the applied one")
)

// Store is the access surface over the users table used by the webhook
// receiver and the access gate.
type Store interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.User, error)

	// ApplyEntitlementByID writes premium (and optionally the Stripe customer
	// reference) to the user row, guarded by eventTS: writes older than the
	// row's applied event timestamp fail with ErrStaleEvent so an out-of-order
	// delivery cannot clobber newer state.
	ApplyEntitlementByID(ctx context.Context, id string, premium int64, stripeCustomerID *string, eventTS int64) error

	// ApplyEntitlementByCustomer is the same conditional write keyed by the
	// Stripe customer reference instead of the account id.
	ApplyEntitlementByCustomer(ctx context.Context, customerID string, premium int64, eventTS int64) error

	Create(ctx context.Context, user *domain.User) error
}
