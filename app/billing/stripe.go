package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"example/healing-api/app/apperr"
	"example/healing-api/app/config"
	"example/healing-api/app/logger"
	"example/healing-api/app/metrics"
	"example/healing-api/app/models"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

const defaultProviderTimeout = 10 * time.Second

// StripeProvider implements Provider on a dedicated stripe-go client.
type StripeProvider struct {
	api              *client.API
	webhookSecret    string
	requireSignature bool
	timeout          time.Duration
	log              logger.Logger
}

var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider builds a client whose HTTP transport is bounded by cfg.Timeout.
// With requireSignature set, webhooks are rejected unless a secret is configured.
func NewStripeProvider(cfg config.StripeConfig, requireSignature bool, log logger.Logger) *StripeProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	httpClient := &http.Client{Timeout: timeout}
	api := &client.API{}
	api.Init(cfg.SecretKey, stripe.NewBackends(httpClient))

	return &StripeProvider{
		api:              api,
		webhookSecret:    cfg.WebhookSecret,
		requireSignature: requireSignature,
		timeout:          timeout,
		log:              log,
	}
}

func (p *StripeProvider) call(ctx context.Context, op string) (context.Context, func()) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	start := time.Now()
	return ctx, func() {
		cancel()
		metrics.ProviderCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	ctx, done := p.call(ctx, "customer.create")
	defer done()

	params := &stripe.CustomerParams{
		Metadata: map[string]string{
			MetaUserID: req.UserID,
		},
	}
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	if req.Name != "" {
		params.Name = stripe.String(req.Name)
	}
	params.Context = ctx

	cust, err := p.api.Customers.New(params)
	if err != nil {
		return "", err
	}
	return cust.ID, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	ctx, done := p.call(ctx, "checkout.create")
	defer done()

	meta := map[string]string{
		MetaUserID:   req.UserID,
		MetaPlanName: req.Plan.Name,
		MetaTier:     string(req.Plan.Tier),
		MetaInterval: string(req.Plan.Interval),
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(req.CustomerID),
		ClientReferenceID: stripe.String(req.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Plan.Currency),
					UnitAmount: stripe.Int64(req.Plan.Amount),
					Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
						Interval: stripe.String(string(req.Plan.Interval)),
					},
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.Plan.Name),
						Description: stripe.String(req.Plan.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: meta,
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	for k, v := range meta {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	ctx, done := p.call(ctx, "subscription.get")
	defer done()

	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := p.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, err
	}
	return fromStripeSubscription(sub), nil
}

func (p *StripeProvider) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error) {
	ctx, done := p.call(ctx, "subscription.cancel")
	defer done()

	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx
	sub, err := p.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, err
	}
	return fromStripeSubscription(sub), nil
}

// ParseWebhook verifies the Stripe-Signature header when a secret is configured.
// Without a secret the payload is decoded unverified, unless signatures are required.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (Event, error) {
	var (
		event stripe.Event
		err   error
	)
	switch {
	case p.webhookSecret != "":
		event, err = webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
			webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
		if err != nil {
			return Event{}, apperr.Signature(err)
		}
	case p.requireSignature:
		return Event{}, apperr.Signature(errors.New("webhook secret not configured"))
	default:
		if err := json.Unmarshal(payload, &event); err != nil {
			return Event{}, apperr.Validation("invalid webhook payload")
		}
		p.log.Warn("accepting unverified webhook payload", map[string]interface{}{
			"event_id": event.ID,
		})
	}
	return fromStripeEvent(event)
}

func fromStripeEvent(se stripe.Event) (Event, error) {
	e := Event{ID: se.ID, Type: EventType(se.Type)}
	if se.Data == nil {
		return e, apperr.Validation("webhook payload has no data")
	}
	raw := se.Data.Raw

	switch e.Type {
	case EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(raw, &sess); err != nil {
			return e, apperr.Validation("invalid checkout session payload")
		}
		e.Metadata = sess.Metadata
		if sess.Subscription != nil {
			e.SubscriptionID = sess.Subscription.ID
		}
		if sess.Customer != nil {
			e.CustomerID = sess.Customer.ID
		}
		if e.Metadata[MetaUserID] == "" && sess.ClientReferenceID != "" {
			if e.Metadata == nil {
				e.Metadata = map[string]string{}
			}
			e.Metadata[MetaUserID] = sess.ClientReferenceID
		}

	case EventInvoicePaid, EventInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return e, apperr.Validation("invalid invoice payload")
		}
		if inv.Subscription != nil {
			e.SubscriptionID = inv.Subscription.ID
		}
		if inv.Customer != nil {
			e.CustomerID = inv.Customer.ID
		}

	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return e, apperr.Validation("invalid subscription payload")
		}
		e.SubscriptionID = sub.ID
		e.Metadata = sub.Metadata
		if sub.Customer != nil {
			e.CustomerID = sub.Customer.ID
		}
		e.Subscription = fromStripeSubscription(&sub)
	}
	return e, nil
}

func fromStripeSubscription(sub *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		out.CurrentPeriodEnd = &t
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		price := sub.Items.Data[0].Price
		out.PriceID = price.ID
		out.UnitAmount = price.UnitAmount
		if price.Recurring != nil {
			out.Interval = models.Interval(price.Recurring.Interval)
		}
	}
	return out
}

// ProviderError wraps a provider failure for the HTTP layer.
func ProviderError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return apperr.Upstream(fmt.Sprintf("%s: %s", op, se.Msg), err)
	}
	return apperr.Upstream(op, err)
}
