package pricing

import (
	"fmt"
	"strings"

	"github.com/nextcoding/saas-api/pkg/domain"
)

// DefaultCurrency is the formatting fallback when a plan has no currency.
const DefaultCurrency = "usd"

// StripeConfig is the payment descriptor attached to each plan.
type StripeConfig struct {
	Type     domain.PlanType
	PriceID  string // provider-side price, empty for free and inline-priced plans
	Mode     domain.CheckoutMode
	Amount   int64 // cents
	Currency string
}

// Plan is a purchasable tier: display metadata plus its payment descriptor.
type Plan struct {
	ID          domain.PlanID
	Name        string
	Price       string
	Period      string
	Description string
	Popular     bool
	Features    []string
	Limitations []string
	CTA         string
	Href        string
	Stripe      StripeConfig
}

// Catalog is the closed set of plans, built once at startup and passed to
// every component that needs it.
type Catalog struct {
	plans map[domain.PlanID]Plan
	order []domain.PlanID
}

// NewCatalog builds the catalog. Provider price ids come from configuration
// because they differ per Stripe account.
func NewCatalog(proPriceID, lifetimePriceID string) *Catalog {
	plans := []Plan{
		{
			ID:          domain.PlanStarter,
			Name:        "Starter",
			Price:       "Free",
			Period:      "forever",
			Description: "Perfect for personal projects and learning",
			Features: []string{
				"Application template",
				"UI components",
				"Basic documentation",
				"Community support",
			},
			Limitations: []string{
				"No database integration",
				"No Stripe integration",
				"No deployment guides",
			},
			CTA:  "Get Started",
			Href: "/auth/signup?plan=starter",
			Stripe: StripeConfig{
				Type:     domain.PlanTypeFree,
				Mode:     domain.CheckoutModePayment,
				Amount:   0,
				Currency: DefaultCurrency,
			},
		},
		{
			ID:          domain.PlanPro,
			Name:        "Pro",
			Price:       "$12",
			Period:      "month",
			Description: "Everything you need for production apps",
			Popular:     true,
			Features: []string{
				"Everything in Starter",
				"Database integration",
				"Stripe payments",
				"Authentication system",
				"API routes examples",
				"Deployment guides",
				"Email support",
			},
			CTA:  "Subscribe",
			Href: "/auth/signup?plan=pro",
			Stripe: StripeConfig{
				Type:     domain.PlanTypeSubscription,
				PriceID:  proPriceID,
				Mode:     domain.CheckoutModeSubscription,
				Amount:   1200,
				Currency: DefaultCurrency,
			},
		},
		{
			ID:          domain.PlanLifetime,
			Name:        "Lifetime",
			Price:       "$99",
			Period:      "one-time",
			Description: "One-time payment for lifetime access",
			Features: []string{
				"Everything in Pro",
				"Lifetime updates",
				"Priority support",
				"Commercial license",
				"Source code access",
			},
			CTA:  "Buy Lifetime",
			Href: "/auth/signup?plan=lifetime",
			Stripe: StripeConfig{
				Type:     domain.PlanTypePayment,
				PriceID:  lifetimePriceID,
				Mode:     domain.CheckoutModePayment,
				Amount:   9900,
				Currency: DefaultCurrency,
			},
		},
	}

	c := &Catalog{plans: make(map[domain.PlanID]Plan, len(plans))}
	for _, p := range plans {
		c.plans[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	return c
}

// Plan returns the full descriptor for a plan id. The second return is false
// for unknown ids.
func (c *Catalog) Plan(id domain.PlanID) (Plan, bool) {
	p, ok := c.plans[id]
	return p, ok
}

// AllPlans returns every plan in display order.
func (c *Catalog) AllPlans() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plans[id])
	}
	return out
}

// PlansByType returns the plans with the given payment descriptor type.
func (c *Catalog) PlansByType(t domain.PlanType) []Plan {
	var out []Plan
	for _, id := range c.order {
		if c.plans[id].Stripe.Type == t {
			out = append(out, c.plans[id])
		}
	}
	return out
}

// PopularPlan returns the highlighted plan, or false if none is marked.
func (c *Catalog) PopularPlan() (Plan, bool) {
	for _, id := range c.order {
		if c.plans[id].Popular {
			return c.plans[id], true
		}
	}
	return Plan{}, false
}

// StripeConfig returns only the payment descriptor for a plan.
func (c *Catalog) StripeConfig(id domain.PlanID) (StripeConfig, bool) {
	p, ok := c.plans[id]
	return p.Stripe, ok
}

// IsValidPlan reports whether id names a known plan.
func (c *Catalog) IsValidPlan(id string) bool {
	_, ok := c.plans[domain.PlanID(id)]
	return ok
}

// ValidPlans returns the known plan ids in display order.
func (c *Catalog) ValidPlans() []string {
	out := make([]string, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, string(id))
	}
	return out
}

// Amount returns the plan amount in cents; 0 for unknown plans.
func (c *Catalog) Amount(id domain.PlanID) int64 {
	return c.plans[id].Stripe.Amount
}

// Currency returns the plan currency, falling back to the default.
func (c *Catalog) Currency(id domain.PlanID) string {
	if p, ok := c.plans[id]; ok && p.Stripe.Currency != "" {
		return p.Stripe.Currency
	}
	return DefaultCurrency
}

func (c *Catalog) IsFreePlan(id domain.PlanID) bool {
	return c.plans[id].Stripe.Type == domain.PlanTypeFree
}

func (c *Catalog) IsSubscriptionPlan(id domain.PlanID) bool {
	return c.plans[id].Stripe.Type == domain.PlanTypeSubscription
}

func (c *Catalog) IsOneTimePayment(id domain.PlanID) bool {
	return c.plans[id].Stripe.Type == domain.PlanTypePayment
}

// FormattedAmount renders the plan amount for display, e.g. "$12.00".
// Non-USD currencies are rendered as "12.00 EUR".
func (c *Catalog) FormattedAmount(id domain.PlanID) string {
	p, ok := c.plans[id]
	if !ok {
		return ""
	}
	if p.Stripe.Amount == 0 {
		return "Free"
	}
	value := fmt.Sprintf("%.2f", float64(p.Stripe.Amount)/100)
	if strings.EqualFold(c.Currency(id), "usd") {
		return "$" + value
	}
	return value + " " + strings.ToUpper(c.Currency(id))
}
