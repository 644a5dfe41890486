package postgres

import (
	"context"
	"database/sql"

	"example/healing-api/app/models"
	"example/healing-api/app/store"

	"github.com/google/uuid"
)

const journalColumns = `id, user_id, title, body, mood, created_at, updated_at`

func scanJournal(row rowScanner) (*models.JournalEntry, error) {
	var (
		e    models.JournalEntry
		mood sql.NullString
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.Title, &e.Body, &mood, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Mood = mood.String
	return &e, nil
}

func (s *Store) ListJournal(ctx context.Context, userID string) ([]models.JournalEntry, error) {
	if !validID(userID) {
		return nil, store.ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+journalColumns+`
		FROM journal_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC;
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.JournalEntry, 0)
	for rows.Next() {
		e, err := scanJournal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *Store) CreateJournal(ctx context.Context, e models.JournalEntry) (*models.JournalEntry, error) {
	if !validID(e.UserID) {
		return nil, store.ErrNotFound
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return scanJournal(s.db.QueryRowContext(ctx, `
		INSERT INTO journal_entries (id, user_id, title, body, mood)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+journalColumns+`;
	`, e.ID, e.UserID, e.Title, e.Body, nullIfEmpty(e.Mood)))
}

func (s *Store) UpdateJournal(ctx context.Context, e models.JournalEntry) (*models.JournalEntry, error) {
	if !validID(e.ID) || !validID(e.UserID) {
		return nil, store.ErrNotFound
	}
	out, err := scanJournal(s.db.QueryRowContext(ctx, `
		UPDATE journal_entries
		SET title = $3, body = $4, mood = $5, updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+journalColumns+`;
	`, e.ID, e.UserID, e.Title, e.Body, nullIfEmpty(e.Mood)))
	return out, notFound(err)
}

func (s *Store) DeleteJournal(ctx context.Context, userID, entryID string) error {
	return s.deleteOwned(ctx, `DELETE FROM journal_entries WHERE id = $1 AND user_id = $2`, userID, entryID)
}

func (s *Store) ListArtworks(ctx context.Context, userID string) ([]models.Artwork, error) {
	if !validID(userID) {
		return nil, store.ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, image_data, created_at
		FROM artworks
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC;
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Artwork, 0)
	for rows.Next() {
		var a models.Artwork
		if err := rows.Scan(&a.ID, &a.UserID, &a.Title, &a.ImageData, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) CreateArtwork(ctx context.Context, a models.Artwork) (*models.Artwork, error) {
	if !validID(a.UserID) {
		return nil, store.ErrNotFound
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO artworks (id, user_id, title, image_data)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at;
	`, a.ID, a.UserID, a.Title, a.ImageData).Scan(&a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) DeleteArtwork(ctx context.Context, userID, artworkID string) error {
	return s.deleteOwned(ctx, `DELETE FROM artworks WHERE id = $1 AND user_id = $2`, userID, artworkID)
}

func (s *Store) deleteOwned(ctx context.Context, q, userID, id string) error {
	if !validID(id) || !validID(userID) {
		return store.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, q, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
