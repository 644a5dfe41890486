package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"example/healing-api/app/models"
	"example/healing-api/app/store"
)

func insertUsageEntry(ctx context.Context, tx *sql.Tx, e models.UsageLogEntry) error {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_log (id, user_id, action, processed_item, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`, e.ID, e.UserID, string(e.Action), nullIfEmpty(e.ProcessedItem), raw, createdAt.UTC())
	return err
}

// incrementUsage bumps the feature counter; the column comes from a closed set.
func incrementUsage(ctx context.Context, tx *sql.Tx, userID string, feature models.Feature) (*models.User, error) {
	col := feature.Column()
	if col == "" {
		return nil, fmt.Errorf("postgres: unknown feature %q", feature)
	}
	q := fmt.Sprintf(`
		UPDATE users
		SET %[1]s = %[1]s + 1, updated_at = now()
		WHERE id = $1
		RETURNING`+userColumns, col)
	return scanUser(tx.QueryRowContext(ctx, q, userID))
}

func (s *Store) ConsumeUsage(ctx context.Context, userID string, feature models.Feature, check store.CheckFunc, entry models.UsageLogEntry) (*models.User, error) {
	if !validID(userID) {
		return nil, store.ErrNotFound
	}
	var out *models.User
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		u, err := getUserForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(u); err != nil {
				return err
			}
		}
		if err := insertUsageEntry(ctx, tx, entry); err != nil {
			return err
		}
		out, err = incrementUsage(ctx, tx, userID, feature)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) History(ctx context.Context, userID string, since time.Time) ([]models.UsageLogEntry, error) {
	if !validID(userID) {
		return nil, store.ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, action, processed_item, metadata, created_at
		FROM usage_log
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC, id DESC;
	`, userID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.UsageLogEntry, 0)
	for rows.Next() {
		var (
			e    models.UsageLogEntry
			item sql.NullString
			raw  []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &item, &raw, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ProcessedItem = item.String
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Metadata); err != nil {
				return nil, fmt.Errorf("usage_log %s metadata: %w", e.ID, err)
			}
			if len(e.Metadata) == 0 {
				e.Metadata = nil
			}
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
