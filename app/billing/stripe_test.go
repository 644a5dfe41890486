package billing

import (
	"testing"
	"time"

	"example/healing-api/app/apperr"
	"example/healing-api/app/config"
	"example/healing-api/app/logger"
	"example/healing-api/app/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
)

const subscriptionUpdatedPayload = `{
  "id": "evt_sub_1",
  "object": "event",
  "type": "customer.subscription.updated",
  "data": {
    "object": {
      "id": "sub_1",
      "object": "subscription",
      "status": "past_due",
      "customer": "cus_1",
      "current_period_end": 1793491200,
      "metadata": {"userId": "u1"},
      "items": {
        "object": "list",
        "data": [
          {"id": "si_1", "object": "subscription_item",
           "price": {"id": "price_1", "object": "price", "unit_amount": 5391, "recurring": {"interval": "year"}}}
        ]
      }
    }
  }
}`

const checkoutCompletedPayload = `{
  "id": "evt_cs_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {
    "object": {
      "id": "cs_1",
      "object": "checkout.session",
      "customer": "cus_1",
      "subscription": "sub_2",
      "client_reference_id": "u2",
      "metadata": {"planName": "basic_monthly", "tier": "basic", "interval": "month"}
    }
  }
}`

const invoicePaidPayload = `{
  "id": "evt_in_1",
  "object": "event",
  "type": "invoice.paid",
  "data": {"object": {"id": "in_1", "object": "invoice", "subscription": "sub_3", "customer": "cus_3"}}
}`

func newTestProvider(t *testing.T, secret string, requireSig bool) *StripeProvider {
	return NewStripeProvider(config.StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: secret,
		Timeout:       time.Second,
	}, requireSig, logger.NewTestLogger(t))
}

func TestParseWebhook_VerifiedSubscriptionUpdated(t *testing.T) {
	p := newTestProvider(t, "whsec_test", true)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(subscriptionUpdatedPayload),
		Secret:  "whsec_test",
	})

	e, err := p.ParseWebhook(signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, "evt_sub_1", e.ID)
	assert.Equal(t, EventSubscriptionUpdated, e.Type)
	assert.Equal(t, "sub_1", e.SubscriptionID)
	assert.Equal(t, "cus_1", e.CustomerID)
	assert.Equal(t, "u1", e.Metadata[MetaUserID])

	require.NotNil(t, e.Subscription)
	assert.Equal(t, "past_due", e.Subscription.Status)
	assert.Equal(t, "price_1", e.Subscription.PriceID)
	assert.Equal(t, int64(5391), e.Subscription.UnitAmount)
	assert.Equal(t, models.IntervalYear, e.Subscription.Interval)
	require.NotNil(t, e.Subscription.CurrentPeriodEnd)
	assert.Equal(t, int64(1793491200), e.Subscription.CurrentPeriodEnd.Unix())

	tr, err := Transition(e)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPastDue, tr.Status)
	assert.Equal(t, models.TierPremium, tr.Tier)
}

func TestParseWebhook_BadSignature(t *testing.T) {
	p := newTestProvider(t, "whsec_test", false)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(invoicePaidPayload),
		Secret:  "whsec_other",
	})

	_, err := p.ParseWebhook(signed.Payload, signed.Header)
	assert.True(t, apperr.Is(err, apperr.KindSignature))
}

func TestParseWebhook_UnverifiedRejectedWhenRequired(t *testing.T) {
	p := newTestProvider(t, "", true)

	_, err := p.ParseWebhook([]byte(invoicePaidPayload), "")
	assert.True(t, apperr.Is(err, apperr.KindSignature))
}

func TestParseWebhook_UnverifiedAllowedInDevelopment(t *testing.T) {
	p := newTestProvider(t, "", false)

	e, err := p.ParseWebhook([]byte(invoicePaidPayload), "")
	require.NoError(t, err)
	assert.Equal(t, EventInvoicePaid, e.Type)
	assert.Equal(t, "sub_3", e.SubscriptionID)

	e, err = p.ParseWebhook([]byte(checkoutCompletedPayload), "")
	require.NoError(t, err)
	assert.Equal(t, "sub_2", e.SubscriptionID)
	assert.Equal(t, "u2", e.Metadata[MetaUserID])
	assert.Equal(t, "basic_monthly", e.Metadata[MetaPlanName])

	_, err = p.ParseWebhook([]byte(`{not json`), "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
