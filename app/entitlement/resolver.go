// Package entitlement decides whether a user may use a metered feature.
package entitlement

import (
	"example/healing-api/app/apperr"
	"example/healing-api/app/models"
)

// Unlimited is reported as Remaining when a subscription covers the feature.
const Unlimited = -1

type Decision struct {
	Allowed      bool        `json:"canUse"`
	UsageCount   int         `json:"usageCount"`
	IsSubscribed bool        `json:"isSubscribed"`
	Remaining    int         `json:"remaining"`
	Reason       apperr.Kind `json:"reason,omitempty"`
}

// Covered reports whether an active subscription makes f unlimited for u.
func Covered(u *models.User, f models.Feature) bool {
	switch tier := u.ActiveTier(); {
	case f.PremiumOnly():
		return tier == models.TierPremium
	case f.BasicOrAbove():
		return tier == models.TierBasic || tier == models.TierPremium
	}
	return false
}

// CanUse applies the per-use rules. It never mutates u.
func CanUse(u *models.User, f models.Feature) Decision {
	if u == nil {
		return Decision{Reason: apperr.KindUnauthenticated}
	}
	count := u.Usage.Count(f)
	d := Decision{UsageCount: count, IsSubscribed: u.IsSubscribed}
	if Covered(u, f) {
		d.Allowed = true
		d.Remaining = Unlimited
		return d
	}
	d.Remaining = remaining(count)
	d.Allowed = count < models.FreeQuota
	if !d.Allowed {
		d.Reason = apperr.KindQuotaExceeded
	}
	return d
}

func remaining(count int) int {
	if r := models.FreeQuota - count; r > 0 {
		return r
	}
	return 0
}

// CheckUse is the per-use rule as a store.CheckFunc.
func CheckUse(f models.Feature) func(u *models.User) error {
	return func(u *models.User) error {
		if d := CanUse(u, f); !d.Allowed {
			return apperr.QuotaExceeded("free uses exhausted for " + string(f))
		}
		return nil
	}
}

// CheckSession is the session rule: premium-only features need an active
// premium subscription; the emotion decoder falls back to the free quota.
func CheckSession(f models.Feature) func(u *models.User) error {
	return func(u *models.User) error {
		if u == nil {
			return apperr.Unauthenticated("no user")
		}
		if Covered(u, f) {
			return nil
		}
		if f.PremiumOnly() {
			return apperr.TierInsufficient(string(f) + " requires an active premium subscription")
		}
		if u.Usage.Count(f) >= models.FreeQuota {
			return apperr.QuotaExceeded("free sessions exhausted for " + string(f))
		}
		return nil
	}
}

// ChargesSession reports whether completing a session of f consumes a free session for u.
func ChargesSession(u *models.User, f models.Feature) bool {
	return f.BasicOrAbove() && !Covered(u, f)
}
