package entitlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"example/healing-api/app/apperr"
	"example/healing-api/app/ledger"
	"example/healing-api/app/logger"
	"example/healing-api/app/metrics"
	"example/healing-api/app/models"
	"example/healing-api/app/store"
)

// Store is what the resolver needs from persistence.
type Store interface {
	store.Users
	store.Usage
}

type Service struct {
	store Store
	log   logger.Logger
	now   func() time.Time
}

func NewService(st Store, log logger.Logger) *Service {
	return &Service{store: st, log: log, now: time.Now}
}

// CanUse loads the user and evaluates the per-use rules.
func (s *Service) CanUse(ctx context.Context, userID string, f models.Feature) (Decision, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return CanUse(nil, f), nil
	}
	if err != nil {
		return Decision{}, apperr.Internal("load user", err)
	}
	return CanUse(u, f), nil
}

// RecordUse appends a ledger entry and increments the feature counter, re-checking
// entitlement against the locked row.
func (s *Service) RecordUse(ctx context.Context, userID string, f models.Feature, item string) (Decision, error) {
	item = strings.TrimSpace(item)
	if item == "" {
		return Decision{}, apperr.Validation("%s is required", f.ItemField())
	}

	entry := ledger.NewEntry(userID, f, item, s.now())
	u, err := s.store.ConsumeUsage(ctx, userID, f, CheckUse(f), entry)
	switch {
	case err == nil:
	case apperr.IsEntitlement(err):
		metrics.EntitlementDenied.WithLabelValues(string(f), string(apperr.KindOf(err))).Inc()
		s.log.Info("usage denied", map[string]interface{}{
			"user_id": userID,
			"feature": f,
		})
		return Decision{}, err
	case errors.Is(err, store.ErrNotFound):
		return Decision{}, apperr.NotFound("user not found")
	default:
		return Decision{}, apperr.Internal("record usage", err)
	}

	metrics.UsageRecorded.WithLabelValues(string(f)).Inc()
	return CanUse(u, f), nil
}
