package app

import (
	"net/http"
	"strconv"

	"example/healing-api/app/apperr"
	"example/healing-api/app/entitlement"
	"example/healing-api/app/ledger"
	"example/healing-api/app/models"

	"github.com/gin-gonic/gin"
)

// CanUse reports whether the caller may use f right now.
func (s *Server) CanUse(f models.Feature) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := s.currentUserID(c)
		if !ok {
			return
		}
		ctx, cancel := s.dbContext(c)
		defer cancel()

		d, err := s.entitlements.CanUse(ctx, userID, f)
		if err != nil {
			s.respondError(c, err)
			return
		}
		if d.Reason == apperr.KindUnauthenticated {
			s.respondError(c, apperr.Unauthenticated("unknown user"))
			return
		}
		c.JSON(http.StatusOK, d)
	}
}

// Use records one processed item for f. The body carries the item under the
// feature's field name, e.g. {"emotion": "grief"}.
func (s *Server) Use(f models.Feature) gin.HandlerFunc {
	field := f.ItemField()
	return func(c *gin.Context) {
		userID, ok := s.currentUserID(c)
		if !ok {
			return
		}
		var body map[string]any
		if !s.bindJSON(c, &body) {
			return
		}
		item, _ := body[field].(string)

		ctx, cancel := s.dbContext(c)
		defer cancel()

		d, err := s.entitlements.RecordUse(ctx, userID, f, item)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"usageCount":   d.UsageCount,
			"remaining":    d.Remaining,
			"isSubscribed": d.IsSubscribed,
		})
	}
}

type subscriptionView struct {
	Status           models.SubscriptionStatus `json:"status"`
	Tier             models.Tier               `json:"tier"`
	ActiveTier       models.Tier               `json:"activeTier"`
	Interval         models.Interval           `json:"interval,omitempty"`
	CurrentPeriodEnd any                       `json:"currentPeriodEnd"`
}

func newSubscriptionView(u *models.User) subscriptionView {
	v := subscriptionView{
		Status:     u.SubscriptionStatus,
		Tier:       u.SubscriptionTier,
		ActiveTier: u.ActiveTier(),
		Interval:   u.SubscriptionInterval,
	}
	if u.SubscriptionCurrentPeriodEnd != nil {
		v.CurrentPeriodEnd = u.SubscriptionCurrentPeriodEnd
	}
	return v
}

// UsageStats returns counters, subscription state and the recent ledger.
func (s *Server) UsageStats(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		return
	}
	days := 0
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(c, apperr.Validation("days must be an integer"))
			return
		}
		days = n
	}

	ctx, cancel := s.dbContext(c)
	defer cancel()

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		s.respondError(c, apperr.Internal("load user", err))
		return
	}
	history, err := s.ledger.History(ctx, userID, days)
	if err != nil {
		s.respondError(c, apperr.Internal("load usage history", err))
		return
	}
	if history == nil {
		history = []models.UsageLogEntry{}
	}

	entitlements := make(map[models.Feature]entitlement.Decision, len(models.Features))
	for _, f := range models.Features {
		entitlements[f] = entitlement.CanUse(u, f)
	}

	c.JSON(http.StatusOK, gin.H{
		"usage":        u.Usage.Total(),
		"isSubscribed": u.IsSubscribed,
		"history":      history,
		"emotionUsage": u.Usage.Emotion,
		"allergyUsage": u.Usage.Allergy,
		"beliefUsage":  u.Usage.Belief,
		"subscription": newSubscriptionView(u),
		"summary":      ledger.Summary(history),
		"entitlements": entitlements,
	})
}
