// Package memory is an in-process store.Store used by tests and local development.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"example/healing-api/app/models"
	"example/healing-api/app/store"

	"github.com/google/uuid"
)

type Store struct {
	mu sync.Mutex

	users     map[string]*models.User
	byAuthSub map[string]string
	usageLog  []models.UsageLogEntry
	sessions  map[string]*models.HealingSession
	journal   map[string]*models.JournalEntry
	artworks  map[string]*models.Artwork
	now       func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:     make(map[string]*models.User),
		byAuthSub: make(map[string]string),
		usageLog:  make([]models.UsageLogEntry, 0),
		sessions:  make(map[string]*models.HealingSession),
		journal:   make(map[string]*models.JournalEntry),
		artworks:  make(map[string]*models.Artwork),
		now:       time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func cloneUser(u *models.User) *models.User {
	out := *u
	if u.SubscriptionCurrentPeriodEnd != nil {
		t := *u.SubscriptionCurrentPeriodEnd
		out.SubscriptionCurrentPeriodEnd = &t
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		out.LastLogin = &t
	}
	return &out
}

func cloneSession(hs *models.HealingSession) *models.HealingSession {
	out := *hs
	if hs.CompletedAt != nil {
		t := *hs.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func cloneEntry(e models.UsageLogEntry) models.UsageLogEntry {
	if e.Metadata != nil {
		meta := make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			meta[k] = v
		}
		e.Metadata = meta
	}
	return e
}

// Users

func (s *Store) UpsertUser(_ context.Context, id models.Identity) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if userID, ok := s.byAuthSub[id.Subject]; ok {
		u := s.users[userID]
		if id.Email != "" {
			u.Email = id.Email
		}
		if id.DisplayName != "" {
			u.DisplayName = id.DisplayName
		}
		u.LastLogin = &now
		u.UpdatedAt = now
		return cloneUser(u), nil
	}

	u := &models.User{
		ID:                 uuid.NewString(),
		AuthSub:            id.Subject,
		Email:              id.Email,
		DisplayName:        id.DisplayName,
		SubscriptionStatus: models.StatusNone,
		SubscriptionTier:   models.TierNone,
		CreatedAt:          now,
		UpdatedAt:          now,
		LastLogin:          &now,
	}
	s.users[u.ID] = u
	s.byAuthSub[id.Subject] = u.ID
	return cloneUser(u), nil
}

// Seed inserts u as-is; tests use it to arrange counters and subscription state.
func (s *Store) Seed(u models.User) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.AuthSub == "" {
		u.AuthSub = "seed|" + u.ID
	}
	if u.SubscriptionStatus == "" {
		u.SubscriptionStatus = models.StatusNone
	}
	if u.SubscriptionTier == "" {
		u.SubscriptionTier = models.TierNone
	}
	cp := cloneUser(&u)
	s.users[cp.ID] = cp
	s.byAuthSub[cp.AuthSub] = cp.ID
	return cloneUser(cp)
}

func (s *Store) GetUser(_ context.Context, userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) GetUserBySubscriptionID(_ context.Context, subscriptionID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if subscriptionID == "" {
		return nil, store.ErrNotFound
	}
	for _, u := range s.users {
		if u.StripeSubscriptionID == subscriptionID {
			return cloneUser(u), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) SetStripeCustomerID(_ context.Context, userID, customerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return "", store.ErrNotFound
	}
	if u.StripeCustomerID == "" {
		u.StripeCustomerID = customerID
		u.UpdatedAt = s.now().UTC()
	}
	return u.StripeCustomerID, nil
}

func (s *Store) UpdateSubscription(_ context.Context, userID string, mutate func(u *models.User) error) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	work := cloneUser(u)
	if err := mutate(work); err != nil {
		return nil, err
	}
	work.UpdatedAt = s.now().UTC()
	s.users[userID] = work
	return cloneUser(work), nil
}

// Usage

func (s *Store) ConsumeUsage(_ context.Context, userID string, feature models.Feature, check store.CheckFunc, entry models.UsageLogEntry) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if check != nil {
		if err := check(cloneUser(u)); err != nil {
			return nil, err
		}
	}
	s.usageLog = append(s.usageLog, cloneEntry(entry))
	u.Usage.Inc(feature)
	u.UpdatedAt = s.now().UTC()
	return cloneUser(u), nil
}

func (s *Store) History(_ context.Context, userID string, since time.Time) ([]models.UsageLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.UsageLogEntry, 0)
	for i := len(s.usageLog) - 1; i >= 0; i-- {
		e := s.usageLog[i]
		if e.UserID != userID || e.CreatedAt.Before(since) {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Sessions

func (s *Store) activeSession(userID string, feature models.Feature) *models.HealingSession {
	for _, hs := range s.sessions {
		if hs.UserID == userID && hs.Feature == feature && hs.Status == models.SessionActive {
			return hs
		}
	}
	return nil
}

func closeUncharged(hs *models.HealingSession, now time.Time) {
	hs.Status = models.SessionCompleted
	hs.CompletedAt = &now
	hs.Charged = false
}

func (s *Store) StartSession(_ context.Context, userID string, feature models.Feature, check store.CheckFunc, staleBefore, now time.Time) (*models.HealingSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	existing := s.activeSession(userID, feature)
	if existing != nil && existing.Stale(staleBefore) {
		closeUncharged(existing, now)
		existing = nil
	}
	if check != nil {
		if err := check(cloneUser(u)); err != nil {
			return nil, false, err
		}
	}
	if existing != nil {
		return cloneSession(existing), false, nil
	}

	hs := &models.HealingSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		Feature:   feature,
		Status:    models.SessionActive,
		StartedAt: now,
	}
	s.sessions[hs.ID] = hs
	return cloneSession(hs), true, nil
}

func (s *Store) GetActiveSession(_ context.Context, userID string, feature models.Feature, staleBefore time.Time) (*models.HealingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hs := s.activeSession(userID, feature)
	if hs == nil || hs.Stale(staleBefore) {
		return nil, store.ErrNotFound
	}
	return cloneSession(hs), nil
}

// ownedActive returns the session when it exists, belongs to userID and is
// active; a stale session is closed and reported as absent.
func (s *Store) ownedActive(sessionID, userID string, staleBefore, now time.Time) (*models.HealingSession, error) {
	hs, ok := s.sessions[sessionID]
	if !ok || hs.UserID != userID || hs.Status != models.SessionActive {
		return nil, store.ErrNotFound
	}
	if hs.Stale(staleBefore) {
		closeUncharged(hs, now)
		return nil, store.ErrNotFound
	}
	return hs, nil
}

func (s *Store) RecordRemoval(_ context.Context, sessionID, userID string, entry models.UsageLogEntry, staleBefore time.Time) (*models.HealingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hs, err := s.ownedActive(sessionID, userID, staleBefore, s.now().UTC())
	if err != nil {
		return nil, err
	}
	hs.RemovalCount++

	entry = cloneEntry(entry)
	entry.Action = hs.Feature
	if entry.Metadata == nil {
		entry.Metadata = make(map[string]string, 2)
	}
	entry.Metadata[store.MetaSessionID] = hs.ID
	entry.Metadata[store.MetaRemoval] = strconv.Itoa(hs.RemovalCount)
	s.usageLog = append(s.usageLog, entry)
	return cloneSession(hs), nil
}

func (s *Store) CompleteSession(_ context.Context, sessionID, userID string, charge store.ChargeFunc, staleBefore, now time.Time) (*models.HealingSession, *models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	hs, err := s.ownedActive(sessionID, userID, staleBefore, now)
	if err != nil {
		return nil, nil, err
	}

	charged := charge != nil && charge(cloneUser(u), cloneSession(hs))
	if charged {
		u.Usage.Inc(hs.Feature)
		u.UpdatedAt = now
	}
	hs.Status = models.SessionCompleted
	hs.CompletedAt = &now
	hs.Charged = charged
	return cloneSession(hs), cloneUser(u), nil
}

func (s *Store) CloseStaleSessions(_ context.Context, staleBefore, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, hs := range s.sessions {
		if hs.Stale(staleBefore) {
			closeUncharged(hs, now)
			n++
		}
	}
	return n, nil
}

// Session returns any session by id regardless of owner or state.
func (s *Store) Session(sessionID string) (*models.HealingSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hs, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return cloneSession(hs), true
}

// Journal

func (s *Store) ListJournal(_ context.Context, userID string) ([]models.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.JournalEntry, 0)
	for _, e := range s.journal {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return strings.Compare(out[i].ID, out[j].ID) > 0
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CreateJournal(_ context.Context, e models.JournalEntry) (*models.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = now
	e.UpdatedAt = now
	cp := e
	s.journal[e.ID] = &cp
	return &e, nil
}

func (s *Store) UpdateJournal(_ context.Context, e models.JournalEntry) (*models.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.journal[e.ID]
	if !ok || cur.UserID != e.UserID {
		return nil, store.ErrNotFound
	}
	cur.Title = e.Title
	cur.Body = e.Body
	cur.Mood = e.Mood
	cur.UpdatedAt = s.now().UTC()
	out := *cur
	return &out, nil
}

func (s *Store) DeleteJournal(_ context.Context, userID, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.journal[entryID]
	if !ok || cur.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.journal, entryID)
	return nil
}

// Artworks

func (s *Store) ListArtworks(_ context.Context, userID string) ([]models.Artwork, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Artwork, 0)
	for _, a := range s.artworks {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CreateArtwork(_ context.Context, a models.Artwork) (*models.Artwork, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = s.now().UTC()
	cp := a
	s.artworks[a.ID] = &cp
	return &a, nil
}

func (s *Store) DeleteArtwork(_ context.Context, userID, artworkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.artworks[artworkID]
	if !ok || cur.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.artworks, artworkID)
	return nil
}
