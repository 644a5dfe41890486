package billing

import (
	"errors"
	"fmt"
	"time"

	"example/healing-api/app/models"
)

var (
	// ErrUnhandledEvent marks event types the reconciler ignores.
	ErrUnhandledEvent = errors.New("billing: unhandled event type")
	// ErrMalformedEvent marks events missing the fields their type requires.
	ErrMalformedEvent = errors.New("billing: malformed event")
)

// StateTransition is the set of subscription fields one event owns.
// Fields whose Set flag is false are left untouched by Apply.
type StateTransition struct {
	Status models.SubscriptionStatus

	SetPlan   bool
	Tier      models.Tier
	Interval  models.Interval
	PeriodEnd *time.Time

	SubscriptionID string
	PriceID        string
}

// Apply writes the transition onto u. Applying it twice yields the same user.
// A tier is only kept while the subscription is active.
func (t StateTransition) Apply(u *models.User) {
	u.SubscriptionStatus = t.Status
	u.IsSubscribed = t.Status == models.StatusActive
	if t.SetPlan {
		u.SubscriptionTier = t.Tier
		u.SubscriptionInterval = t.Interval
		if t.PeriodEnd != nil {
			pe := t.PeriodEnd.UTC()
			u.SubscriptionCurrentPeriodEnd = &pe
		} else {
			u.SubscriptionCurrentPeriodEnd = nil
		}
	}
	if t.SubscriptionID != "" {
		u.StripeSubscriptionID = t.SubscriptionID
	}
	if t.PriceID != "" {
		u.StripePriceID = t.PriceID
	}
	if !u.IsSubscribed {
		u.SubscriptionTier = models.TierNone
	}
}

// Transition derives the field changes for e without touching any store or provider.
func Transition(e Event) (StateTransition, error) {
	switch e.Type {
	case EventCheckoutCompleted:
		return checkoutTransition(e)

	case EventInvoicePaid:
		if e.SubscriptionID == "" {
			return StateTransition{}, fmt.Errorf("%w: invoice without subscription", ErrMalformedEvent)
		}
		return invoicePaidTransition(e), nil

	case EventInvoicePaymentFailed:
		if e.SubscriptionID == "" {
			return StateTransition{}, fmt.Errorf("%w: invoice without subscription", ErrMalformedEvent)
		}
		return StateTransition{Status: models.StatusPastDue}, nil

	case EventSubscriptionUpdated:
		if e.Subscription == nil {
			return StateTransition{}, fmt.Errorf("%w: subscription payload missing", ErrMalformedEvent)
		}
		return SubscriptionTransition(*e.Subscription), nil

	case EventSubscriptionDeleted:
		return canceled(), nil
	}
	return StateTransition{}, fmt.Errorf("%w: %s", ErrUnhandledEvent, e.Type)
}

// SubscriptionTransition mirrors a provider subscription, deriving the tier from its price.
func SubscriptionTransition(sub Subscription) StateTransition {
	status := MapStatus(sub.Status)
	if status == models.StatusCanceled {
		return canceled()
	}
	return StateTransition{
		Status:         status,
		SetPlan:        true,
		Tier:           models.TierForPrice(sub.Interval, sub.UnitAmount),
		Interval:       sub.Interval,
		PeriodEnd:      sub.CurrentPeriodEnd,
		SubscriptionID: sub.ID,
		PriceID:        sub.PriceID,
	}
}

// invoicePaidTransition restores the plan from the fetched subscription when
// available; the provider may not have flipped it back to active yet.
func invoicePaidTransition(e Event) StateTransition {
	if e.Subscription == nil {
		return StateTransition{Status: models.StatusActive}
	}
	t := SubscriptionTransition(*e.Subscription)
	if t.Status == models.StatusPastDue {
		t.Status = models.StatusActive
	}
	return t
}

func canceled() StateTransition {
	return StateTransition{
		Status:   models.StatusCanceled,
		SetPlan:  true,
		Tier:     models.TierNone,
		Interval: models.IntervalNone,
	}
}

func checkoutTransition(e Event) (StateTransition, error) {
	tier, interval, ok := planFromMetadata(e.Metadata)
	if !ok {
		return StateTransition{}, fmt.Errorf("%w: checkout metadata has no usable plan", ErrMalformedEvent)
	}
	t := StateTransition{
		Status:         models.StatusActive,
		SetPlan:        true,
		Tier:           tier,
		Interval:       interval,
		SubscriptionID: e.SubscriptionID,
	}
	if e.Subscription != nil {
		// A replayed checkout must not revive a subscription the provider has since ended.
		if e.Subscription.Status != "" {
			t.Status = MapStatus(e.Subscription.Status)
		}
		if t.Status == models.StatusCanceled {
			return canceled(), nil
		}
		t.PeriodEnd = e.Subscription.CurrentPeriodEnd
		t.PriceID = e.Subscription.PriceID
		if t.SubscriptionID == "" {
			t.SubscriptionID = e.Subscription.ID
		}
	}
	return t, nil
}

// planFromMetadata reads tier and interval, falling back to the plan table by name.
func planFromMetadata(meta map[string]string) (models.Tier, models.Interval, bool) {
	tier := models.Tier(meta[MetaTier])
	interval := models.Interval(meta[MetaInterval])
	if (tier == models.TierBasic || tier == models.TierPremium) &&
		(interval == models.IntervalMonth || interval == models.IntervalYear) {
		return tier, interval, true
	}
	if p, ok := models.LookupPlan(meta[MetaPlanName]); ok {
		return p.Tier, p.Interval, true
	}
	return "", "", false
}
