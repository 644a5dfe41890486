package models

import "time"

type SubscriptionStatus string

const (
	StatusNone     SubscriptionStatus = "none"
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

type Tier string

const (
	TierNone    Tier = "none"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

type Interval string

const (
	IntervalNone  Interval = ""
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// Usage holds the per-feature counters.
type Usage struct {
	Emotion int `json:"emotion"`
	Belief  int `json:"belief"`
	Allergy int `json:"allergy"`
}

// Count returns the counter for f.
func (u Usage) Count(f Feature) int {
	switch f {
	case FeatureEmotionDecoder:
		return u.Emotion
	case FeatureBeliefDecoder:
		return u.Belief
	case FeatureAllergyIdentifier:
		return u.Allergy
	}
	return 0
}

// Inc increments the counter for f.
func (u *Usage) Inc(f Feature) {
	switch f {
	case FeatureEmotionDecoder:
		u.Emotion++
	case FeatureBeliefDecoder:
		u.Belief++
	case FeatureAllergyIdentifier:
		u.Allergy++
	}
}

// Total sums every counter.
func (u Usage) Total() int {
	return u.Emotion + u.Belief + u.Allergy
}

type User struct {
	ID          string `json:"id" db:"id"`
	AuthSub     string `json:"-" db:"auth_sub"`
	Email       string `json:"email,omitempty" db:"email"`
	DisplayName string `json:"displayName,omitempty" db:"display_name"`
	Usage       Usage  `json:"usage"`

	IsSubscribed                 bool               `json:"isSubscribed" db:"is_subscribed"`
	SubscriptionStatus           SubscriptionStatus `json:"subscriptionStatus" db:"subscription_status"`
	SubscriptionTier             Tier               `json:"subscriptionTier" db:"subscription_tier"`
	SubscriptionInterval         Interval           `json:"subscriptionInterval,omitempty" db:"subscription_interval"`
	SubscriptionCurrentPeriodEnd *time.Time         `json:"subscriptionCurrentPeriodEnd,omitempty" db:"subscription_current_period_end"`
	StripeCustomerID             string             `json:"-" db:"stripe_customer_id"`
	StripeSubscriptionID         string             `json:"-" db:"stripe_subscription_id"`
	StripePriceID                string             `json:"-" db:"stripe_price_id"`

	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
	LastLogin *time.Time `json:"lastLogin,omitempty" db:"last_login"`
}

// ActiveTier returns the tier only while the subscription is active.
func (u *User) ActiveTier() Tier {
	if u == nil || u.SubscriptionStatus != StatusActive {
		return TierNone
	}
	if u.SubscriptionTier == "" {
		return TierNone
	}
	return u.SubscriptionTier
}

// Identity is what the identity provider hands us after verification.
type Identity struct {
	Subject     string
	Email       string
	DisplayName string
}
