package app

import (
	"io"
	"net/http"

	"example/healing-api/app/apperr"
	"example/healing-api/app/models"

	"github.com/gin-gonic/gin"
)

const maxWebhookBytes = int64(65536)

func (s *Server) loadUser(c *gin.Context, userID string) (*models.User, bool) {
	ctx, cancel := s.dbContext(c)
	defer cancel()

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		s.respondError(c, apperr.Internal("load user", err))
		return nil, false
	}
	return u, true
}

// StartCheckout opens a checkout session for ?plan= and returns its URL.
func (s *Server) StartCheckout(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		return
	}
	u, ok := s.loadUser(c, userID)
	if !ok {
		return
	}

	sess, err := s.billing.StartCheckout(c.Request.Context(), u, c.Query("plan"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// CancelSubscription schedules cancellation at the end of the current period.
func (s *Server) CancelSubscription(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		return
	}
	u, ok := s.loadUser(c, userID)
	if !ok {
		return
	}

	updated, sub, err := s.billing.CancelSubscription(c.Request.Context(), u)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "subscription will cancel at the end of the current period",
		"subscription": gin.H{
			"id":                sub.ID,
			"status":            sub.Status,
			"cancelAtPeriodEnd": sub.CancelAtPeriodEnd,
			"currentPeriodEnd":  sub.CurrentPeriodEnd,
			"tier":              updated.SubscriptionTier,
		},
	})
}

// StripeWebhook applies a provider event. Transient failures answer 500 so the
// provider redelivers; everything else is acknowledged.
func (s *Server) StripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		s.respondError(c, apperr.Validation("failed to read body"))
		return
	}

	event, err := s.provider.ParseWebhook(body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		s.log.Warn("webhook rejected", map[string]interface{}{
			"code":  apperr.KindOf(err),
			"error": err.Error(),
		})
		if apperr.HTTPStatus(err) != http.StatusBadRequest {
			err = apperr.Validation("invalid webhook payload")
		}
		s.respondError(c, err)
		return
	}

	outcome, err := s.billing.ApplyEvent(c.Request.Context(), event)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"outcome":  outcome,
	})
}
