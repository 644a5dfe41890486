package models

import "sort"

type SubscriptionPlan struct {
	Name        string   `json:"name"`
	Tier        Tier     `json:"tier"`
	Interval    Interval `json:"interval"`
	Amount      int64    `json:"amount"`
	Currency    string   `json:"currency"`
	Description string   `json:"description"`
}

var plans = map[string]SubscriptionPlan{
	"basic_monthly": {
		Name: "basic_monthly", Tier: TierBasic, Interval: IntervalMonth,
		Amount: 399, Currency: "usd", Description: "Basic - unlimited Emotion Decoder, billed monthly",
	},
	"premium_monthly": {
		Name: "premium_monthly", Tier: TierPremium, Interval: IntervalMonth,
		Amount: 599, Currency: "usd", Description: "Premium - every healing tool, billed monthly",
	},
	"basic_yearly": {
		Name: "basic_yearly", Tier: TierBasic, Interval: IntervalYear,
		Amount: 3591, Currency: "usd", Description: "Basic - unlimited Emotion Decoder, billed yearly",
	},
	"premium_yearly": {
		Name: "premium_yearly", Tier: TierPremium, Interval: IntervalYear,
		Amount: 5391, Currency: "usd", Description: "Premium - every healing tool, billed yearly",
	},
}

// LookupPlan finds a plan by name.
func LookupPlan(name string) (SubscriptionPlan, bool) {
	p, ok := plans[name]
	return p, ok
}

// Plans returns the plan table ordered by interval then amount.
func Plans() []SubscriptionPlan {
	out := make([]SubscriptionPlan, 0, len(plans))
	for _, p := range plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Interval != out[j].Interval {
			return out[i].Interval == IntervalMonth
		}
		return out[i].Amount < out[j].Amount
	})
	return out
}

// Premium price floors in minor units.
const (
	PremiumMonthlyFloor int64 = 599
	PremiumYearlyFloor  int64 = 5391
)

// TierForPrice derives the tier from a recurring price.
func TierForPrice(interval Interval, amount int64) Tier {
	switch interval {
	case IntervalYear:
		if amount >= PremiumYearlyFloor {
			return TierPremium
		}
	default:
		if amount >= PremiumMonthlyFloor {
			return TierPremium
		}
	}
	return TierBasic
}
