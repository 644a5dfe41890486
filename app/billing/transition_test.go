package billing

import (
	"testing"
	"time"

	"example/healing-api/app/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func periodEnd() *time.Time {
	t := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestTransition_SubscriptionUpdatedDerivesTier(t *testing.T) {
	cases := []struct {
		interval models.Interval
		amount   int64
		want     models.Tier
	}{
		{models.IntervalMonth, 599, models.TierPremium},
		{models.IntervalMonth, 399, models.TierBasic},
		{models.IntervalMonth, 999, models.TierPremium},
		{models.IntervalYear, 5391, models.TierPremium},
		{models.IntervalYear, 3591, models.TierBasic},
		{models.IntervalYear, 599, models.TierBasic},
	}
	for _, tc := range cases {
		tr, err := Transition(Event{
			Type:           EventSubscriptionUpdated,
			SubscriptionID: "sub_1",
			Subscription: &Subscription{
				ID: "sub_1", Status: "active", PriceID: "price_1",
				UnitAmount: tc.amount, Interval: tc.interval, CurrentPeriodEnd: periodEnd(),
			},
		})
		require.NoError(t, err)
		assert.Equal(t, tc.want, tr.Tier, "interval=%s amount=%d", tc.interval, tc.amount)
		assert.Equal(t, models.StatusActive, tr.Status)
		assert.Equal(t, "price_1", tr.PriceID)
	}
}

func TestMapStatus(t *testing.T) {
	assert.Equal(t, models.StatusActive, MapStatus("active"))
	assert.Equal(t, models.StatusActive, MapStatus("trialing"))
	for _, s := range []string{"past_due", "unpaid", "incomplete", "paused"} {
		assert.Equal(t, models.StatusPastDue, MapStatus(s), s)
	}
	assert.Equal(t, models.StatusCanceled, MapStatus("canceled"))
	assert.Equal(t, models.StatusCanceled, MapStatus("incomplete_expired"))
}

func TestTransition_CheckoutCompleted(t *testing.T) {
	tr, err := Transition(Event{
		Type:           EventCheckoutCompleted,
		SubscriptionID: "sub_9",
		Metadata: map[string]string{
			MetaUserID: "u1", MetaPlanName: "premium_yearly", MetaTier: "premium", MetaInterval: "year",
		},
		Subscription: &Subscription{ID: "sub_9", PriceID: "price_9", CurrentPeriodEnd: periodEnd()},
	})
	require.NoError(t, err)

	u := &models.User{SubscriptionStatus: models.StatusNone, SubscriptionTier: models.TierNone}
	tr.Apply(u)
	assert.True(t, u.IsSubscribed)
	assert.Equal(t, models.StatusActive, u.SubscriptionStatus)
	assert.Equal(t, models.TierPremium, u.SubscriptionTier)
	assert.Equal(t, models.IntervalYear, u.SubscriptionInterval)
	assert.Equal(t, periodEnd(), u.SubscriptionCurrentPeriodEnd)
	assert.Equal(t, "sub_9", u.StripeSubscriptionID)
	assert.Equal(t, "price_9", u.StripePriceID)
}

func TestTransition_CheckoutForEndedSubscription(t *testing.T) {
	meta := map[string]string{MetaUserID: "u1", MetaPlanName: "basic_monthly"}

	tr, err := Transition(Event{
		Type:           EventCheckoutCompleted,
		SubscriptionID: "sub_9",
		Metadata:       meta,
		Subscription:   &Subscription{ID: "sub_9", Status: "canceled", PriceID: "price_9"},
	})
	require.NoError(t, err)
	u := &models.User{StripeSubscriptionID: "sub_9", SubscriptionStatus: models.StatusCanceled}
	tr.Apply(u)
	assert.False(t, u.IsSubscribed)
	assert.Equal(t, models.StatusCanceled, u.SubscriptionStatus)
	assert.Equal(t, models.TierNone, u.SubscriptionTier)
	assert.Equal(t, models.IntervalNone, u.SubscriptionInterval)

	tr, err = Transition(Event{
		Type:           EventCheckoutCompleted,
		SubscriptionID: "sub_9",
		Metadata:       meta,
		Subscription:   &Subscription{ID: "sub_9", Status: "incomplete"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPastDue, tr.Status)
	u = &models.User{}
	tr.Apply(u)
	assert.False(t, u.IsSubscribed)
	assert.Equal(t, models.TierNone, u.ActiveTier())
}

func TestTransition_CheckoutFallsBackToPlanName(t *testing.T) {
	tr, err := Transition(Event{
		Type:     EventCheckoutCompleted,
		Metadata: map[string]string{MetaPlanName: "basic_monthly"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.TierBasic, tr.Tier)
	assert.Equal(t, models.IntervalMonth, tr.Interval)

	_, err = Transition(Event{Type: EventCheckoutCompleted, Metadata: map[string]string{MetaTier: "gold"}})
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestTransition_InvoiceEvents(t *testing.T) {
	u := &models.User{
		IsSubscribed: true, SubscriptionStatus: models.StatusActive,
		SubscriptionTier: models.TierBasic, SubscriptionInterval: models.IntervalMonth,
	}

	failed, err := Transition(Event{Type: EventInvoicePaymentFailed, SubscriptionID: "sub_1"})
	require.NoError(t, err)
	failed.Apply(u)
	assert.False(t, u.IsSubscribed)
	assert.Equal(t, models.StatusPastDue, u.SubscriptionStatus)
	assert.Equal(t, models.TierNone, u.SubscriptionTier)
	assert.Equal(t, models.TierNone, u.ActiveTier())

	// the provider may still report past_due when the paid invoice arrives
	paid, err := Transition(Event{
		Type:           EventInvoicePaid,
		SubscriptionID: "sub_1",
		Subscription:   &Subscription{ID: "sub_1", Status: "past_due", UnitAmount: 399, Interval: models.IntervalMonth, CurrentPeriodEnd: periodEnd()},
	})
	require.NoError(t, err)
	paid.Apply(u)
	assert.True(t, u.IsSubscribed)
	assert.Equal(t, models.StatusActive, u.SubscriptionStatus)
	assert.Equal(t, models.TierBasic, u.ActiveTier())
	assert.Equal(t, periodEnd(), u.SubscriptionCurrentPeriodEnd)

	_, err = Transition(Event{Type: EventInvoicePaid})
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestTransition_SubscriptionDeletedIdempotent(t *testing.T) {
	u := &models.User{
		IsSubscribed: true, SubscriptionStatus: models.StatusActive,
		SubscriptionTier: models.TierPremium, SubscriptionInterval: models.IntervalYear,
		SubscriptionCurrentPeriodEnd: periodEnd(), StripeSubscriptionID: "sub_1",
	}
	tr, err := Transition(Event{Type: EventSubscriptionDeleted, SubscriptionID: "sub_1"})
	require.NoError(t, err)

	tr.Apply(u)
	first := *u
	tr.Apply(u)

	assert.Equal(t, first, *u)
	assert.False(t, u.IsSubscribed)
	assert.Equal(t, models.StatusCanceled, u.SubscriptionStatus)
	assert.Equal(t, models.TierNone, u.SubscriptionTier)
	assert.Equal(t, models.IntervalNone, u.SubscriptionInterval)
	assert.Nil(t, u.SubscriptionCurrentPeriodEnd)
	assert.Equal(t, "sub_1", u.StripeSubscriptionID)
}

func TestTransition_UpdatedToCanceledClearsPlan(t *testing.T) {
	tr, err := Transition(Event{
		Type:         EventSubscriptionUpdated,
		Subscription: &Subscription{ID: "sub_1", Status: "canceled", UnitAmount: 599, Interval: models.IntervalMonth},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, tr.Status)
	assert.Equal(t, models.TierNone, tr.Tier)
}

func TestTransition_Unhandled(t *testing.T) {
	_, err := Transition(Event{Type: "customer.created"})
	assert.ErrorIs(t, err, ErrUnhandledEvent)
}
