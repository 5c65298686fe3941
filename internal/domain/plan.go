package domain

import (
	"strings"
	"time"
)

// PlanMode distinguishes a one-time purchase from a recurring subscription.
type PlanMode string

const (
	PlanModeOneTime      PlanMode = "one_time"
	PlanModeSubscription PlanMode = "subscription"
)

// Plan is a purchasable offer. Amount and currency are used to cross-check
// one-time payments; provider ids map the plan onto each checkout.
type Plan struct {
	ID                    string   `yaml:"id"                      json:"id"`
	Name                  string   `yaml:"name"                    json:"name"`
	Mode                  PlanMode `yaml:"mode"                    json:"mode"`
	PeriodDays            int      `yaml:"period_days"             json:"period_days,omitempty"`
	AmountMinor           int64    `yaml:"amount"                  json:"amount"`
	Currency              string   `yaml:"currency"                json:"currency"`
	StripePriceID         string   `yaml:"stripe_price_id"         json:"-"`
	LemonSqueezyVariantID string   `yaml:"lemonsqueezy_variant_id" json:"-"`
}

// Period returns the billing period of a subscription plan, defaulting to
// DefaultBillingPeriod when unset.
func (p Plan) Period() time.Duration {
	if p.PeriodDays <= 0 {
		return DefaultBillingPeriod
	}
	return time.Duration(p.PeriodDays) * 24 * time.Hour
}

// Catalog is the set of plans offered by the funnel.
type Catalog struct {
	Plans []Plan `yaml:"plans"`
}

// Lookup finds a plan by id (case-insensitive).
func (c Catalog) Lookup(id string) (Plan, bool) {
	id = strings.TrimSpace(id)
	for _, p := range c.Plans {
		if strings.EqualFold(p.ID, id) {
			return p, true
		}
	}
	return Plan{}, false
}

// PeriodFor returns the billing period of plan id, or DefaultBillingPeriod
// when the plan is unknown.
func (c Catalog) PeriodFor(id string) time.Duration {
	if p, ok := c.Lookup(id); ok {
		return p.Period()
	}
	return DefaultBillingPeriod
}
