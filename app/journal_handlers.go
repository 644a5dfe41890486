package app

import (
	"errors"
	"net/http"
	"strings"

	"example/healing-api/app/apperr"
	"example/healing-api/app/models"
	"example/healing-api/app/store"

	"github.com/gin-gonic/gin"
)

const maxArtworkBytes = 2 << 20

type journalRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Mood  string `json:"mood"`
}

func (r journalRequest) entry(userID string) (models.JournalEntry, error) {
	e := models.JournalEntry{
		UserID: userID,
		Title:  strings.TrimSpace(r.Title),
		Body:   strings.TrimSpace(r.Body),
		Mood:   strings.TrimSpace(r.Mood),
	}
	if e.Body == "" {
		return e, apperr.Validation("body is required")
	}
	return e, nil
}

func (s *Server) ownedError(what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(what + " not found")
	}
	return apperr.Internal(what, err)
}

func (s *Server) ListJournal(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		return
	}
	ctx, cancel := s.dbContext(c)
	defer cancel()

	entries, err := s.store.ListJournal(ctx, userID)
	if err != nil {
		s.respondError(c, apperr.Internal("list journal", err))
		return
	}
	if entries == nil {
		entries = []models.JournalEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) CreateJournal(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		return
	}
	var req journalRequest
	if !s.bindJSON(c, &req) {
		return
	}
	e, err := req.entry(userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	ctx, cancel := s.dbContext(c)
	defer cancel()

	created, err := s.store.CreateJournal(ctx, e)
	if err != nil {
		s.respondError(c, apperr.Internal("create journal entry", err))
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) UpdateJournal(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		return
	}
	var req journalRequest
	if !s.bindJSON(c, &req) {
		return
	}
	e, err := req.entry(userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	e.ID = c.Param("id")

	ctx, cancel := s.dbContext(c)
	defer cancel()

	updated, err := s.store.UpdateJournal(ctx, e)
	if err != nil {
		s.respondError(c, s.ownedError("journal entry", err))
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) DeleteJournal(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		return
	}
	ctx, cancel := s.dbContext(c)
	defer cancel()

	if err := s.store.DeleteJournal(ctx, userID, c.Param("id")); err != nil {
		s.respondError(c, s.ownedError("journal entry", err))
		return
	}
	c.Status(http.StatusNoContent)
}

type artworkRequest struct {
	Title     string `json:"title"`
	ImageData string `json:"imageData"`
}

func (s *Server) ListArtworks(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		return
	}
	ctx, cancel := s.dbContext(c)
	defer cancel()

	artworks, err := s.store.ListArtworks(ctx, userID)
	if err != nil {
		s.respondError(c, apperr.Internal("list artworks", err))
		return
	}
	if artworks == nil {
		artworks = []models.Artwork{}
	}
	c.JSON(http.StatusOK, gin.H{"artworks": artworks})
}

// CreateArtwork stores a drawing as a data URL; bodies over 2 MiB are rejected.
func (s *Server) CreateArtwork(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxArtworkBytes)

	var req artworkRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.ImageData) == "" {
		s.respondError(c, apperr.Validation("imageData is required"))
		return
	}
	ctx, cancel := s.dbContext(c)
	defer cancel()

	created, err := s.store.CreateArtwork(ctx, models.Artwork{
		UserID:    userID,
		Title:     strings.TrimSpace(req.Title),
		ImageData: req.ImageData,
	})
	if err != nil {
		s.respondError(c, apperr.Internal("create artwork", err))
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) DeleteArtwork(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		return
	}
	ctx, cancel := s.dbContext(c)
	defer cancel()

	if err := s.store.DeleteArtwork(ctx, userID, c.Param("id")); err != nil {
		s.respondError(c, s.ownedError("artwork", err))
		return
	}
	c.Status(http.StatusNoContent)
}
