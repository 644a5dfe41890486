package billing

import (
	"context"

	"example/healing-api/app/models"
)

type CustomerRequest struct {
	UserID string
	Email  string
	Name   string
}

type CheckoutRequest struct {
	CustomerID string
	UserID     string
	Plan       models.SubscriptionPlan
	SuccessURL string
	CancelURL  string
}

type CheckoutSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"checkoutUrl"`
}

// Provider is the payment provider surface the reconciler depends on.
// Every call must honour ctx and return within a bounded time.
type Provider interface {
	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error)
	// ParseWebhook verifies and decodes a raw webhook delivery.
	ParseWebhook(payload []byte, signature string) (Event, error)
}
