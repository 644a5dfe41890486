// Package store declares the persistence contracts shared by the Postgres and memory backends.
//
// Every method that both checks and mutates counters or session state does so
// against a locked row inside one transaction, so a check can never be
// invalidated by a concurrent writer before the mutation lands.
package store

import (
	"context"
	"errors"
	"time"

	"example/healing-api/app/models"
)

// ErrNotFound is returned when a row is absent or not owned by the caller.
var ErrNotFound = errors.New("store: not found")

// CheckFunc inspects the locked user row; a non-nil error aborts the transaction.
type CheckFunc func(u *models.User) error

// ChargeFunc decides, on the locked rows, whether completing s consumes a free session.
type ChargeFunc func(u *models.User, s *models.HealingSession) bool

type Users interface {
	UpsertUser(ctx context.Context, id models.Identity) (*models.User, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserBySubscriptionID(ctx context.Context, subscriptionID string) (*models.User, error)
	// SetStripeCustomerID stores customerID unless one is already on file and
	// returns whichever id is stored afterwards.
	SetStripeCustomerID(ctx context.Context, userID, customerID string) (string, error)
	// UpdateSubscription applies mutate to the locked row and persists the subscription fields.
	UpdateSubscription(ctx context.Context, userID string, mutate func(u *models.User) error) (*models.User, error)
}

type Usage interface {
	// ConsumeUsage runs check on the locked user, then appends entry and
	// increments the feature counter in the same transaction.
	ConsumeUsage(ctx context.Context, userID string, feature models.Feature, check CheckFunc, entry models.UsageLogEntry) (*models.User, error)
	// History returns entries created at or after since, newest first.
	History(ctx context.Context, userID string, since time.Time) ([]models.UsageLogEntry, error)
}

type Sessions interface {
	// StartSession closes a stale session for (user, feature), runs check on the
	// locked user, then returns the active session or creates one. The bool reports creation.
	StartSession(ctx context.Context, userID string, feature models.Feature, check CheckFunc, staleBefore, now time.Time) (*models.HealingSession, bool, error)
	GetActiveSession(ctx context.Context, userID string, feature models.Feature, staleBefore time.Time) (*models.HealingSession, error)
	// RecordRemoval increments removalCount of an active, owned session and
	// appends entry tagged with the session's feature and sessionId/removal metadata.
	RecordRemoval(ctx context.Context, sessionID, userID string, entry models.UsageLogEntry, staleBefore time.Time) (*models.HealingSession, error)
	CompleteSession(ctx context.Context, sessionID, userID string, charge ChargeFunc, staleBefore, now time.Time) (*models.HealingSession, *models.User, error)
	// CloseStaleSessions completes, without charge, every active session started before staleBefore.
	CloseStaleSessions(ctx context.Context, staleBefore, now time.Time) (int64, error)
}

type Journal interface {
	ListJournal(ctx context.Context, userID string) ([]models.JournalEntry, error)
	CreateJournal(ctx context.Context, e models.JournalEntry) (*models.JournalEntry, error)
	UpdateJournal(ctx context.Context, e models.JournalEntry) (*models.JournalEntry, error)
	DeleteJournal(ctx context.Context, userID, entryID string) error
}

type Artworks interface {
	ListArtworks(ctx context.Context, userID string) ([]models.Artwork, error)
	CreateArtwork(ctx context.Context, a models.Artwork) (*models.Artwork, error)
	DeleteArtwork(ctx context.Context, userID, artworkID string) error
}

// Store is the full backend surface.
type Store interface {
	Users
	Usage
	Sessions
	Journal
	Artworks
	Ping(ctx context.Context) error
	Close() error
}

// Metadata keys attached to removal ledger entries.
const (
	MetaSessionID = "sessionId"
	MetaRemoval   = "removal"
)
