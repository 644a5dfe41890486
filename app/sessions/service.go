// Package sessions tracks in-progress healing sessions per (user, feature).
package sessions

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"example/healing-api/app/apperr"
	"example/healing-api/app/entitlement"
	"example/healing-api/app/ledger"
	"example/healing-api/app/logger"
	"example/healing-api/app/metrics"
	"example/healing-api/app/models"
	"example/healing-api/app/store"

	"github.com/google/uuid"
)

const DefaultTTL = 24 * time.Hour

type Service struct {
	store store.Sessions
	ttl   time.Duration
	log   logger.Logger
	now   func() time.Time
}

func NewService(st store.Sessions, ttl time.Duration, log logger.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: st, ttl: ttl, log: log, now: time.Now}
}

func (s *Service) clock() (now, staleBefore time.Time) {
	now = s.now().UTC()
	return now, now.Add(-s.ttl)
}

// ParseFeature validates a feature name from a request.
func ParseFeature(name string) (models.Feature, error) {
	if strings.TrimSpace(name) == "" {
		return "", apperr.Validation("feature is required")
	}
	f, ok := models.ParseFeature(name)
	if !ok {
		return "", apperr.Validation("unknown feature %q", name)
	}
	return f, nil
}

// Start returns the user's active session for the feature or opens a new one.
// The bool reports whether a session was created.
func (s *Service) Start(ctx context.Context, userID, featureName string) (*models.HealingSession, bool, error) {
	f, err := ParseFeature(featureName)
	if err != nil {
		return nil, false, err
	}
	now, staleBefore := s.clock()

	hs, created, err := s.store.StartSession(ctx, userID, f, entitlement.CheckSession(f), staleBefore, now)
	if err != nil {
		if apperr.IsEntitlement(err) {
			metrics.EntitlementDenied.WithLabelValues(string(f), string(apperr.KindOf(err))).Inc()
			return nil, false, err
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, apperr.NotFound("user not found")
		}
		return nil, false, s.storeError("start session", err)
	}
	if created {
		metrics.SessionsStarted.WithLabelValues(string(f)).Inc()
		s.log.Info("session started", map[string]interface{}{
			"user_id":    userID,
			"session_id": hs.ID,
			"feature":    f,
		})
	}
	return hs, created, nil
}

// RecordRemoval counts one processed item against an active session.
func (s *Service) RecordRemoval(ctx context.Context, sessionID, userID, item string) (*models.HealingSession, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, apperr.NotFound("session not found")
	}
	item = strings.TrimSpace(item)
	if item == "" {
		return nil, apperr.Validation("processed item is required")
	}
	now, staleBefore := s.clock()

	entry := ledger.NewEntry(userID, "", item, now)
	hs, err := s.store.RecordRemoval(ctx, sessionID, userID, entry, staleBefore)
	if err != nil {
		return nil, s.storeError("record removal", err)
	}
	metrics.UsageRecorded.WithLabelValues(string(hs.Feature)).Inc()
	return hs, nil
}

// Complete closes the session, charging one free session when the user is not covered.
func (s *Service) Complete(ctx context.Context, sessionID, userID string) (*models.HealingSession, *models.User, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, nil, apperr.NotFound("session not found")
	}
	now, staleBefore := s.clock()

	charge := func(u *models.User, hs *models.HealingSession) bool {
		return entitlement.ChargesSession(u, hs.Feature)
	}
	hs, u, err := s.store.CompleteSession(ctx, sessionID, userID, charge, staleBefore, now)
	if err != nil {
		return nil, nil, s.storeError("complete session", err)
	}
	metrics.SessionsCompleted.WithLabelValues(string(hs.Feature), strconv.FormatBool(hs.Charged)).Inc()
	s.log.Info("session completed", map[string]interface{}{
		"user_id":    userID,
		"session_id": hs.ID,
		"feature":    hs.Feature,
		"removals":   hs.RemovalCount,
		"charged":    hs.Charged,
	})
	return hs, u, nil
}

// GetActive returns nil without error when no fresh active session exists.
func (s *Service) GetActive(ctx context.Context, userID, featureName string) (*models.HealingSession, error) {
	f, err := ParseFeature(featureName)
	if err != nil {
		return nil, err
	}
	_, staleBefore := s.clock()

	hs, err := s.store.GetActiveSession(ctx, userID, f, staleBefore)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("get active session", err)
	}
	return hs, nil
}

func (s *Service) storeError(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("session not found")
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	s.log.Error(op+" failed", map[string]interface{}{"error": err.Error()})
	return apperr.Internal(op, err)
}
