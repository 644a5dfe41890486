package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"example/healing-api/app/models"
	"example/healing-api/app/store"
)

const sessionColumns = `id, user_id, feature, status, removal_count, charged, started_at, completed_at`

func scanSession(row rowScanner) (*models.HealingSession, error) {
	var (
		hs          models.HealingSession
		completedAt sql.NullTime
	)
	if err := row.Scan(&hs.ID, &hs.UserID, &hs.Feature, &hs.Status, &hs.RemovalCount, &hs.Charged, &hs.StartedAt, &completedAt); err != nil {
		return nil, err
	}
	hs.StartedAt = hs.StartedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		hs.CompletedAt = &t
	}
	return &hs, nil
}

func closeStale(ctx context.Context, tx *sql.Tx, userID string, feature models.Feature, staleBefore, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE healing_sessions
		SET status = 'completed', completed_at = $4, charged = FALSE
		WHERE user_id = $1 AND feature = $2 AND status = 'active' AND started_at < $3;
	`, userID, string(feature), staleBefore.UTC(), now.UTC())
	return err
}

func (s *Store) StartSession(ctx context.Context, userID string, feature models.Feature, check store.CheckFunc, staleBefore, now time.Time) (*models.HealingSession, bool, error) {
	if !validID(userID) {
		return nil, false, store.ErrNotFound
	}
	var (
		out     *models.HealingSession
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		u, err := getUserForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := closeStale(ctx, tx, userID, feature, staleBefore, now); err != nil {
			return err
		}
		if check != nil {
			if err := check(u); err != nil {
				return err
			}
		}

		existing, err := scanSession(tx.QueryRowContext(ctx, `
			SELECT `+sessionColumns+`
			FROM healing_sessions
			WHERE user_id = $1 AND feature = $2 AND status = 'active'
			FOR UPDATE;
		`, userID, string(feature)))
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		out, err = scanSession(tx.QueryRowContext(ctx, `
			INSERT INTO healing_sessions (id, user_id, feature, status, removal_count, charged, started_at)
			VALUES (gen_random_uuid(), $1, $2, 'active', 0, FALSE, $3)
			RETURNING `+sessionColumns+`;
		`, userID, string(feature), now.UTC()))
		created = err == nil
		return err
	})
	if err != nil {
		if isUniqueViolation(err, "healing_sessions_one_active") {
			// A concurrent start won; its session is the one to return.
			hs, gerr := s.GetActiveSession(ctx, userID, feature, staleBefore)
			return hs, false, gerr
		}
		return nil, false, err
	}
	return out, created, nil
}

func (s *Store) GetActiveSession(ctx context.Context, userID string, feature models.Feature, staleBefore time.Time) (*models.HealingSession, error) {
	if !validID(userID) {
		return nil, store.ErrNotFound
	}
	hs, err := scanSession(s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM healing_sessions
		WHERE user_id = $1 AND feature = $2 AND status = 'active' AND started_at >= $3;
	`, userID, string(feature), staleBefore.UTC()))
	return hs, notFound(err)
}

// lockOwnedActive locks the session row and applies the ownership, status and
// staleness checks. A stale session is closed in tx and reported as absent.
func lockOwnedActive(ctx context.Context, tx *sql.Tx, sessionID, userID string, staleBefore, now time.Time) (*models.HealingSession, bool, error) {
	hs, err := scanSession(tx.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM healing_sessions
		WHERE id = $1
		FOR UPDATE;
	`, sessionID))
	if err != nil {
		return nil, false, notFound(err)
	}
	if hs.UserID != userID || hs.Status != models.SessionActive {
		return nil, false, store.ErrNotFound
	}
	if hs.Stale(staleBefore) {
		_, err := tx.ExecContext(ctx, `
			UPDATE healing_sessions
			SET status = 'completed', completed_at = $2, charged = FALSE
			WHERE id = $1;
		`, sessionID, now.UTC())
		return nil, true, err
	}
	return hs, false, nil
}

// lockUser takes the user row lock so every session mutation orders user before session.
func lockUser(ctx context.Context, tx *sql.Tx, userID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	return notFound(err)
}

func (s *Store) RecordRemoval(ctx context.Context, sessionID, userID string, entry models.UsageLogEntry, staleBefore time.Time) (*models.HealingSession, error) {
	if !validID(sessionID) || !validID(userID) {
		return nil, store.ErrNotFound
	}
	var out *models.HealingSession
	stale := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		hs, wasStale, err := lockOwnedActive(ctx, tx, sessionID, userID, staleBefore, time.Now())
		if err != nil || wasStale {
			stale = wasStale
			return err
		}

		if err := tx.QueryRowContext(ctx, `
			UPDATE healing_sessions
			SET removal_count = removal_count + 1
			WHERE id = $1
			RETURNING removal_count;
		`, sessionID).Scan(&hs.RemovalCount); err != nil {
			return err
		}

		entry.Action = hs.Feature
		if entry.Metadata == nil {
			entry.Metadata = make(map[string]string, 2)
		}
		entry.Metadata[store.MetaSessionID] = hs.ID
		entry.Metadata[store.MetaRemoval] = strconv.Itoa(hs.RemovalCount)
		if err := insertUsageEntry(ctx, tx, entry); err != nil {
			return err
		}
		out = hs
		return nil
	})
	if err != nil {
		return nil, err
	}
	if stale {
		return nil, store.ErrNotFound
	}
	return out, nil
}

func (s *Store) CompleteSession(ctx context.Context, sessionID, userID string, charge store.ChargeFunc, staleBefore, now time.Time) (*models.HealingSession, *models.User, error) {
	if !validID(sessionID) || !validID(userID) {
		return nil, nil, store.ErrNotFound
	}
	var (
		outSession *models.HealingSession
		outUser    *models.User
		stale      bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		u, err := getUserForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		hs, wasStale, err := lockOwnedActive(ctx, tx, sessionID, userID, staleBefore, now)
		if err != nil || wasStale {
			stale = wasStale
			return err
		}

		charged := charge != nil && charge(u, hs)
		outSession, err = scanSession(tx.QueryRowContext(ctx, `
			UPDATE healing_sessions
			SET status = 'completed', completed_at = $2, charged = $3
			WHERE id = $1
			RETURNING `+sessionColumns+`;
		`, sessionID, now.UTC(), charged))
		if err != nil {
			return err
		}

		outUser = u
		if charged {
			outUser, err = incrementUsage(ctx, tx, userID, hs.Feature)
		}
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if stale {
		return nil, nil, store.ErrNotFound
	}
	return outSession, outUser, nil
}

func (s *Store) CloseStaleSessions(ctx context.Context, staleBefore, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE healing_sessions
		SET status = 'completed', completed_at = $2, charged = FALSE
		WHERE status = 'active' AND started_at < $1;
	`, staleBefore.UTC(), now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
