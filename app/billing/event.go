// Package billing reconciles subscription state with the payment provider.
package billing

import (
	"time"

	"example/healing-api/app/models"
)

type EventType string

const (
	EventCheckoutCompleted    EventType = "checkout.session.completed"
	EventInvoicePaid          EventType = "invoice.paid"
	EventInvoicePaymentFailed EventType = "invoice.payment_failed"
	EventSubscriptionUpdated  EventType = "customer.subscription.updated"
	EventSubscriptionDeleted  EventType = "customer.subscription.deleted"
)

// Handled reports whether the reconciler acts on events of this type.
func (t EventType) Handled() bool {
	switch t {
	case EventCheckoutCompleted, EventInvoicePaid, EventInvoicePaymentFailed,
		EventSubscriptionUpdated, EventSubscriptionDeleted:
		return true
	}
	return false
}

// Checkout metadata keys echoed back by the provider.
const (
	MetaUserID   = "userId"
	MetaPlanName = "planName"
	MetaTier     = "tier"
	MetaInterval = "interval"
)

// Event is the provider-neutral form of a webhook delivery.
type Event struct {
	ID             string
	Type           EventType
	SubscriptionID string
	CustomerID     string
	Metadata       map[string]string
	// Subscription is set for subscription events, and for checkout and
	// invoice.paid events once enriched.
	Subscription *Subscription
}

// Subscription is the provider's current view of one subscription.
type Subscription struct {
	ID                string
	Status            string
	PriceID           string
	UnitAmount        int64
	Interval          models.Interval
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
}

// MapStatus folds provider subscription statuses onto ours.
func MapStatus(providerStatus string) models.SubscriptionStatus {
	switch providerStatus {
	case "active", "trialing":
		return models.StatusActive
	case "canceled", "incomplete_expired":
		return models.StatusCanceled
	default:
		// past_due, unpaid, incomplete, paused and anything newer
		return models.StatusPastDue
	}
}
