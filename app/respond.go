package app

import (
	"context"

	"example/healing-api/app/apperr"
	"example/healing-api/auth"

	"github.com/gin-gonic/gin"
)

// respondError writes the mapped status and body for err. Entitlement denials
// carry needsSubscription so the client can route to checkout.
func (s *Server) respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	kind := apperr.KindOf(err)
	body := gin.H{
		"error": apperr.PublicMessage(err),
		"code":  kind,
	}
	if apperr.IsEntitlement(err) {
		body["needsSubscription"] = true
		body["reason"] = kind
	}
	if status >= 500 {
		s.log.Error("request failed", map[string]interface{}{
			"path":  c.Request.URL.Path,
			"code":  kind,
			"error": err.Error(),
		})
	}
	c.AbortWithStatusJSON(status, body)
}

// currentUserID returns the local user id resolved by the auth hook.
func (s *Server) currentUserID(c *gin.Context) (string, bool) {
	id, ok := auth.UserIDFromContext(c.Request.Context())
	if !ok {
		s.respondError(c, apperr.Unauthenticated("missing auth context"))
		return "", false
	}
	return id, true
}

func (s *Server) dbContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), dbTimeout)
}

func (s *Server) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.respondError(c, apperr.Validation("invalid request body"))
		return false
	}
	return true
}
