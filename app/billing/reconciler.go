package billing

import (
	"context"
	"errors"
	"strings"

	"example/healing-api/app/apperr"
	"example/healing-api/app/logger"
	"example/healing-api/app/metrics"
	"example/healing-api/app/models"
	"example/healing-api/app/store"
)

// Deduper remembers processed event ids so redeliveries are skipped.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDropped   Outcome = "dropped"
	OutcomeDuplicate Outcome = "duplicate"
)

type Reconciler struct {
	users       store.Users
	provider    Provider
	dedupe      Deduper
	frontendURL string
	log         logger.Logger
}

// NewReconciler wires the reconciler; dedupe may be nil.
func NewReconciler(users store.Users, provider Provider, dedupe Deduper, frontendURL string, log logger.Logger) *Reconciler {
	return &Reconciler{
		users:       users,
		provider:    provider,
		dedupe:      dedupe,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		log:         log,
	}
}

// StartCheckout opens a subscription checkout for planName.
func (r *Reconciler) StartCheckout(ctx context.Context, u *models.User, planName string) (*CheckoutSession, error) {
	plan, ok := models.LookupPlan(strings.TrimSpace(planName))
	if !ok {
		return nil, apperr.Validation("unknown plan %q", planName)
	}
	if hasLiveSubscription(u) {
		return nil, apperr.Validation("a subscription is already on file; cancel it before starting another")
	}

	customerID, err := r.ensureCustomer(ctx, u)
	if err != nil {
		return nil, err
	}

	sess, err := r.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		CustomerID: customerID,
		UserID:     u.ID,
		Plan:       plan,
		SuccessURL: r.frontendURL + "/subscription/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  r.frontendURL + "/subscription/cancel",
	})
	if err != nil {
		r.log.Error("checkout session failed", map[string]interface{}{
			"user_id": u.ID,
			"plan":    plan.Name,
			"error":   err.Error(),
		})
		return nil, ProviderError("create checkout session", err)
	}
	r.log.Info("checkout started", map[string]interface{}{
		"user_id":    u.ID,
		"plan":       plan.Name,
		"session_id": sess.ID,
	})
	return sess, nil
}

func hasLiveSubscription(u *models.User) bool {
	if u.StripeSubscriptionID == "" {
		return false
	}
	return u.SubscriptionStatus == models.StatusActive || u.SubscriptionStatus == models.StatusPastDue
}

// ensureCustomer returns the stored customer id, creating one at the provider if absent.
func (r *Reconciler) ensureCustomer(ctx context.Context, u *models.User) (string, error) {
	if u.StripeCustomerID != "" {
		return u.StripeCustomerID, nil
	}
	created, err := r.provider.CreateCustomer(ctx, CustomerRequest{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.DisplayName,
	})
	if err != nil {
		r.log.Error("create customer failed", map[string]interface{}{
			"user_id": u.ID,
			"error":   err.Error(),
		})
		return "", ProviderError("create customer", err)
	}
	stored, err := r.users.SetStripeCustomerID(ctx, u.ID, created)
	if err != nil {
		return "", apperr.Internal("save customer id", err)
	}
	if stored != created {
		r.log.Warn("customer created concurrently, keeping stored id", map[string]interface{}{
			"user_id":   u.ID,
			"stored":    stored,
			"discarded": created,
		})
	}
	u.StripeCustomerID = stored
	return stored, nil
}

// CancelSubscription requests cancellation at period end and mirrors the
// provider's answer, so a subscription that is still active stays active.
func (r *Reconciler) CancelSubscription(ctx context.Context, u *models.User) (*models.User, *Subscription, error) {
	if u.StripeSubscriptionID == "" || u.SubscriptionStatus == models.StatusCanceled {
		return nil, nil, apperr.NotFound("no subscription on file")
	}
	sub, err := r.provider.CancelAtPeriodEnd(ctx, u.StripeSubscriptionID)
	if err != nil {
		r.log.Error("cancel subscription failed", map[string]interface{}{
			"user_id":         u.ID,
			"subscription_id": u.StripeSubscriptionID,
			"error":           err.Error(),
		})
		return nil, nil, ProviderError("cancel subscription", err)
	}

	tr := SubscriptionTransition(*sub)
	updated, err := r.users.UpdateSubscription(ctx, u.ID, func(row *models.User) error {
		tr.Apply(row)
		return nil
	})
	if err != nil {
		return nil, nil, apperr.Internal("save subscription", err)
	}
	r.log.Info("subscription cancel requested", map[string]interface{}{
		"user_id":         u.ID,
		"subscription_id": sub.ID,
		"status":          sub.Status,
	})
	return updated, sub, nil
}

// ApplyEvent applies one webhook event. A returned error means the event should
// be redelivered; everything else is acknowledged.
func (r *Reconciler) ApplyEvent(ctx context.Context, e Event) (Outcome, error) {
	log := r.log.WithFields(map[string]interface{}{
		"event_id":   e.ID,
		"event_type": e.Type,
	})

	outcome, err := r.applyEvent(ctx, e, log)
	label := string(outcome)
	if err != nil {
		label = "error"
	}
	metrics.WebhookEvents.WithLabelValues(string(e.Type), label).Inc()
	return outcome, err
}

func (r *Reconciler) applyEvent(ctx context.Context, e Event, log logger.Logger) (Outcome, error) {
	if r.dedupe != nil && e.ID != "" {
		seen, err := r.dedupe.Seen(ctx, e.ID)
		if err != nil {
			log.WithError(err).Warn("event dedupe lookup failed", nil)
		} else if seen {
			log.Info("duplicate event skipped", nil)
			return OutcomeDuplicate, nil
		}
	}

	if !e.Type.Handled() {
		log.Debug("event ignored", nil)
		return OutcomeIgnored, nil
	}

	u, err := r.attribute(ctx, e)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("event has no attributable user", map[string]interface{}{
			"subscription_id": e.SubscriptionID,
		})
		return OutcomeDropped, nil
	}
	if err != nil {
		return "", apperr.Internal("locate user", err)
	}

	if needsSubscription(e) {
		sub, err := r.provider.GetSubscription(ctx, e.SubscriptionID)
		if err != nil {
			log.WithError(err).Error("fetch subscription failed", nil)
			return "", ProviderError("fetch subscription", err)
		}
		e.Subscription = sub
	}

	tr, err := Transition(e)
	switch {
	case errors.Is(err, ErrUnhandledEvent):
		return OutcomeIgnored, nil
	case errors.Is(err, ErrMalformedEvent):
		log.Warn("event dropped", map[string]interface{}{"reason": err.Error()})
		return OutcomeDropped, nil
	case err != nil:
		return "", err
	}

	_, err = r.users.UpdateSubscription(ctx, u.ID, func(row *models.User) error {
		if superseded(row, e, tr) {
			return errSuperseded
		}
		tr.Apply(row)
		return nil
	})
	if errors.Is(err, errSuperseded) {
		log.Warn("event for a superseded subscription dropped", map[string]interface{}{
			"user_id":         u.ID,
			"subscription_id": e.SubscriptionID,
		})
		r.mark(ctx, e, log)
		return OutcomeDropped, nil
	}
	if err != nil {
		log.WithError(err).Error("apply event failed", map[string]interface{}{"user_id": u.ID})
		return "", apperr.Internal("apply event", err)
	}

	r.mark(ctx, e, log)
	log.Info("event applied", map[string]interface{}{
		"user_id": u.ID,
		"status":  tr.Status,
		"tier":    tr.Tier,
	})
	return OutcomeApplied, nil
}

func (r *Reconciler) mark(ctx context.Context, e Event, log logger.Logger) {
	if r.dedupe == nil || e.ID == "" {
		return
	}
	if err := r.dedupe.Mark(ctx, e.ID); err != nil {
		log.WithError(err).Warn("event dedupe mark failed", nil)
	}
}

var errSuperseded = errors.New("billing: event for superseded subscription")

// needsSubscription reports whether e must be enriched with the provider's
// current subscription before it can be applied.
func needsSubscription(e Event) bool {
	if e.Subscription != nil || e.SubscriptionID == "" {
		return false
	}
	return e.Type == EventCheckoutCompleted || e.Type == EventInvoicePaid
}

// superseded reports whether e concerns a subscription other than the one on
// file. Only a completed checkout for a live subscription may replace it.
func superseded(u *models.User, e Event, tr StateTransition) bool {
	if u.StripeSubscriptionID == "" || e.SubscriptionID == "" || u.StripeSubscriptionID == e.SubscriptionID {
		return false
	}
	return e.Type != EventCheckoutCompleted || tr.Status != models.StatusActive
}

// attribute finds the user for e. Checkout events carry the user id in their
// metadata; every other event is matched on the stored subscription id only.
func (r *Reconciler) attribute(ctx context.Context, e Event) (*models.User, error) {
	if e.Type == EventCheckoutCompleted {
		if id := e.Metadata[MetaUserID]; id != "" {
			u, err := r.users.GetUser(ctx, id)
			if err == nil || !errors.Is(err, store.ErrNotFound) {
				return u, err
			}
		}
	}
	return r.users.GetUserBySubscriptionID(ctx, e.SubscriptionID)
}
