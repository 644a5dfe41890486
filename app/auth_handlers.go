package app

import (
	"context"
	"net/http"
	"time"

	"example/healing-api/app/apperr"
	"example/healing-api/app/entitlement"
	"example/healing-api/app/models"

	"github.com/gin-gonic/gin"
)

// Health is a public health check endpoint.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn("health check failed", map[string]interface{}{"error": err.Error()})
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Me returns the authenticated user's snapshot with a decision per feature.
func (s *Server) Me(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		return
	}
	ctx, cancel := s.dbContext(c)
	defer cancel()

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		s.respondError(c, apperr.Internal("load user", err))
		return
	}

	decisions := make(map[models.Feature]entitlement.Decision, len(models.Features))
	for _, f := range models.Features {
		decisions[f] = entitlement.CanUse(u, f)
	}
	c.JSON(http.StatusOK, gin.H{
		"user":         u,
		"activeTier":   u.ActiveTier(),
		"entitlements": decisions,
	})
}

// Plans lists the purchasable subscription plans.
func (s *Server) Plans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": models.Plans()})
}
