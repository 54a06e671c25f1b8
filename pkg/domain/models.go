package domain

import (
	"time"
)

type PlanID string

const (
	PlanStarter  PlanID = "starter"
	PlanPro      PlanID = "pro"
	PlanLifetime PlanID = "lifetime"
)

type PlanType string

const (
	PlanTypeFree         PlanType = "free"
	PlanTypeSubscription PlanType = "subscription"
	PlanTypePayment      PlanType = "payment"
)

type CheckoutMode string

const (
	CheckoutModePayment      CheckoutMode = "payment"
	CheckoutModeSubscription CheckoutMode = "subscription"
)

// User mirrors the users table. Rows are provisioned by the auth provider's
// sign-up flow; this service only ever mutates the entitlement fields.
type User struct {
	ID               string    `json:"id" db:"id"`
	Email            string    `json:"email" db:"email"`
	Premium          int64     `json:"premium" db:"premium"`
	StripeCustomerID *string   `json:"stripe_customer_id,omitempty" db:"stripe_customer_id"`
	IsActive         bool      `json:"is_active" db:"is_active"`
	PremiumEventTS   int64     `json:"-" db:"premium_event_ts"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// IsPremium reports whether the user holds an active paid entitlement.
// Premium stores the cents amount of the last paid plan; any positive value
// means entitled.
func (u *User) IsPremium() bool {
	return u.Premium > 0
}
