package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"example/healing-api/app/models"
	"example/healing-api/app/store"
)

const userColumns = `
	id, auth_sub, email, display_name,
	emotion_usage, belief_usage, allergy_usage,
	is_subscribed, subscription_status, subscription_tier, subscription_interval,
	subscription_current_period_end,
	stripe_customer_id, stripe_subscription_id, stripe_price_id,
	created_at, updated_at, last_login`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u           models.User
		email       sql.NullString
		displayName sql.NullString
		interval    sql.NullString
		periodEnd   sql.NullTime
		customerID  sql.NullString
		subID       sql.NullString
		priceID     sql.NullString
		lastLogin   sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.AuthSub, &email, &displayName,
		&u.Usage.Emotion, &u.Usage.Belief, &u.Usage.Allergy,
		&u.IsSubscribed, &u.SubscriptionStatus, &u.SubscriptionTier, &interval,
		&periodEnd,
		&customerID, &subID, &priceID,
		&u.CreatedAt, &u.UpdatedAt, &lastLogin,
	)
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	u.DisplayName = displayName.String
	u.SubscriptionInterval = models.Interval(interval.String)
	if periodEnd.Valid {
		t := periodEnd.Time.UTC()
		u.SubscriptionCurrentPeriodEnd = &t
	}
	u.StripeCustomerID = customerID.String
	u.StripeSubscriptionID = subID.String
	u.StripePriceID = priceID.String
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		u.LastLogin = &t
	}
	return &u, nil
}

const upsertUserSQL = `
	INSERT INTO users (auth_sub, email, display_name, last_login)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (auth_sub) DO UPDATE SET
		email = COALESCE(EXCLUDED.email, users.email),
		display_name = COALESCE(EXCLUDED.display_name, users.display_name),
		last_login = now(),
		updated_at = now()
	RETURNING` + userColumns

// UpsertUser creates the user on first login and refreshes profile fields after.
// An email already claimed by another account is left off rather than failing the login.
func (s *Store) UpsertUser(ctx context.Context, id models.Identity) (*models.User, error) {
	email := strings.TrimSpace(id.Email)
	name := strings.TrimSpace(id.DisplayName)

	u, err := scanUser(s.db.QueryRowContext(ctx, upsertUserSQL, id.Subject, nullIfEmpty(email), nullIfEmpty(name)))
	if err != nil && email != "" && isUniqueViolation(err, "users_email_key") {
		s.log.Warn("email already bound to another user", map[string]interface{}{
			"auth_sub": id.Subject,
		})
		u, err = scanUser(s.db.QueryRowContext(ctx, upsertUserSQL, id.Subject, sql.NullString{}, nullIfEmpty(name)))
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*models.User, error) {
	if !validID(userID) {
		return nil, store.ErrNotFound
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT`+userColumns+` FROM users WHERE id = $1`, userID))
	return u, notFound(err)
}

func (s *Store) GetUserBySubscriptionID(ctx context.Context, subscriptionID string) (*models.User, error) {
	if subscriptionID == "" {
		return nil, store.ErrNotFound
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT`+userColumns+` FROM users WHERE stripe_subscription_id = $1`, subscriptionID))
	return u, notFound(err)
}

func (s *Store) SetStripeCustomerID(ctx context.Context, userID, customerID string) (string, error) {
	if !validID(userID) {
		return "", store.ErrNotFound
	}
	var stored sql.NullString
	err := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET stripe_customer_id = COALESCE(stripe_customer_id, $2), updated_at = now()
		WHERE id = $1
		RETURNING stripe_customer_id;
	`, userID, customerID).Scan(&stored)
	if err != nil {
		return "", notFound(err)
	}
	return stored.String, nil
}

func getUserForUpdate(ctx context.Context, tx *sql.Tx, userID string) (*models.User, error) {
	u, err := scanUser(tx.QueryRowContext(ctx, `SELECT`+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID))
	return u, notFound(err)
}

func (s *Store) UpdateSubscription(ctx context.Context, userID string, mutate func(u *models.User) error) (*models.User, error) {
	if !validID(userID) {
		return nil, store.ErrNotFound
	}
	var out *models.User
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		u, err := getUserForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := mutate(u); err != nil {
			return err
		}

		var periodEnd sql.NullTime
		if u.SubscriptionCurrentPeriodEnd != nil {
			periodEnd = sql.NullTime{Time: u.SubscriptionCurrentPeriodEnd.UTC(), Valid: true}
		}
		out, err = scanUser(tx.QueryRowContext(ctx, `
			UPDATE users SET
				is_subscribed = $2,
				subscription_status = $3,
				subscription_tier = $4,
				subscription_interval = $5,
				subscription_current_period_end = $6,
				stripe_subscription_id = $7,
				stripe_price_id = $8,
				updated_at = $9
			WHERE id = $1
			RETURNING`+userColumns,
			userID,
			u.IsSubscribed,
			string(u.SubscriptionStatus),
			string(u.SubscriptionTier),
			nullIfEmpty(string(u.SubscriptionInterval)),
			periodEnd,
			nullIfEmpty(u.StripeSubscriptionID),
			nullIfEmpty(u.StripePriceID),
			time.Now().UTC(),
		))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
