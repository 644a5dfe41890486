package app

import (
	"net/http"

	"example/healing-api/app/models"

	"github.com/gin-gonic/gin"
)

type startSessionRequest struct {
	Feature string `json:"feature"`
}

// StartSession opens, or resumes, the caller's session for a feature.
func (s *Server) StartSession(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		return
	}
	var req startSessionRequest
	if !s.bindJSON(c, &req) {
		return
	}
	ctx, cancel := s.dbContext(c)
	defer cancel()

	hs, _, err := s.sessions.Start(ctx, userID, req.Feature)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, hs)
}

// ActiveSession returns the caller's active session for ?feature=, or null.
func (s *Server) ActiveSession(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		return
	}
	ctx, cancel := s.dbContext(c)
	defer cancel()

	hs, err := s.sessions.GetActive(ctx, userID, c.Query("feature"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activeSession": hs})
}

// RecordRemoval counts one processed item. The item may arrive under any of
// the feature field names, or as "item".
func (s *Server) RecordRemoval(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		return
	}
	var body map[string]any
	if !s.bindJSON(c, &body) {
		return
	}
	item := removalItem(body)

	ctx, cancel := s.dbContext(c)
	defer cancel()

	hs, err := s.sessions.RecordRemoval(ctx, c.Param("id"), userID, item)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId":    hs.ID,
		"removalCount": hs.RemovalCount,
	})
}

func removalItem(body map[string]any) string {
	for _, f := range models.Features {
		if v, ok := body[f.ItemField()].(string); ok && v != "" {
			return v
		}
	}
	v, _ := body["item"].(string)
	return v
}

// CompleteSession closes the session and reports the updated usage.
func (s *Server) CompleteSession(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		return
	}
	ctx, cancel := s.dbContext(c)
	defer cancel()

	hs, u, err := s.sessions.Complete(ctx, c.Param("id"), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId":     hs.ID,
		"feature":       hs.Feature,
		"completedAt":   hs.CompletedAt,
		"totalRemovals": hs.RemovalCount,
		"usageCount":    u.Usage.Count(hs.Feature),
	})
}
