package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"example/healing-api/app/apperr"
	"example/healing-api/app/logger"
	"example/healing-api/app/models"
	"example/healing-api/app/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUserID    = "5f0c7f4e-8a58-4a7e-9d3c-3f7a1b2c4d5e"
	testSessionID = "9b4d2c1a-7e6f-4a3b-8c2d-1e0f9a8b7c6d"
)

var userCols = []string{
	"id", "auth_sub", "email", "display_name",
	"emotion_usage", "belief_usage", "allergy_usage",
	"is_subscribed", "subscription_status", "subscription_tier", "subscription_interval",
	"subscription_current_period_end",
	"stripe_customer_id", "stripe_subscription_id", "stripe_price_id",
	"created_at", "updated_at", "last_login",
}

var sessionCols = []string{"id", "user_id", "feature", "status", "removal_count", "charged", "started_at", "completed_at"}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, logger.NewTestLogger(t)), mock
}

func userRow(emotion int, status models.SubscriptionStatus, tier models.Tier) *sqlmock.Rows {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(userCols).AddRow(
		testUserID, "idp|abc", "a@example.com", nil,
		emotion, 0, 0,
		status == models.StatusActive, string(status), string(tier), nil,
		nil,
		nil, nil, nil,
		now, now, nil,
	)
}

func sessionRow(owner string, status models.SessionStatus, removals int, startedAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(sessionCols).AddRow(
		testSessionID, owner, string(models.FeatureEmotionDecoder), string(status), removals, false, startedAt, nil,
	)
}

func TestGetUser_ScansNullableColumns(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`(?s)SELECT.*FROM users WHERE id = `).
		WithArgs(testUserID).
		WillReturnRows(userRow(2, models.StatusNone, models.TierNone))

	u, err := s.GetUser(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, 2, u.Usage.Emotion)
	assert.Equal(t, "a@example.com", u.Email)
	assert.Empty(t, u.DisplayName)
	assert.Nil(t, u.SubscriptionCurrentPeriodEnd)
	assert.False(t, u.IsSubscribed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUser_InvalidIDIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	_, err := s.GetUser(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserBySubscriptionID_NoRows(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`(?s)SELECT.*FROM users WHERE stripe_subscription_id = `).
		WithArgs("sub_missing").
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := s.GetUserBySubscriptionID(context.Background(), "sub_missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertUser_RetriesWithoutConflictingEmail(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`(?s)INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})
	mock.ExpectQuery(`(?s)INSERT INTO users`).
		WithArgs("idp|abc", nil, "Ada").
		WillReturnRows(userRow(0, models.StatusNone, models.TierNone))

	u, err := s.UpsertUser(context.Background(), models.Identity{Subject: "idp|abc", Email: "a@example.com", DisplayName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, testUserID, u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeUsage_CommitsEntryAndCounter(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT.*FROM users WHERE id = .* FOR UPDATE`).
		WithArgs(testUserID).
		WillReturnRows(userRow(2, models.StatusNone, models.TierNone))
	mock.ExpectExec(`INSERT INTO usage_log`).
		WithArgs(sqlmock.AnyArg(), testUserID, "emotion_decoder", "anger", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`(?s)UPDATE users\s+SET emotion_usage = emotion_usage \+ 1`).
		WithArgs(testUserID).
		WillReturnRows(userRow(3, models.StatusNone, models.TierNone))
	mock.ExpectCommit()

	checked := 0
	entry := models.UsageLogEntry{ID: "e1", UserID: testUserID, Action: models.FeatureEmotionDecoder, ProcessedItem: "anger"}
	u, err := s.ConsumeUsage(context.Background(), testUserID, models.FeatureEmotionDecoder, func(u *models.User) error {
		checked++
		assert.Equal(t, 2, u.Usage.Emotion)
		return nil
	}, entry)
	require.NoError(t, err)
	assert.Equal(t, 1, checked)
	assert.Equal(t, 3, u.Usage.Emotion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeUsage_RejectedCheckRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT.*FOR UPDATE`).
		WithArgs(testUserID).
		WillReturnRows(userRow(3, models.StatusNone, models.TierNone))
	mock.ExpectRollback()

	_, err := s.ConsumeUsage(context.Background(), testUserID, models.FeatureEmotionDecoder, func(*models.User) error {
		return apperr.QuotaExceeded("free quota exhausted")
	}, models.UsageLogEntry{ID: "e1", UserID: testUserID})
	assert.True(t, apperr.Is(err, apperr.KindQuotaExceeded))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartSession_ReturnsExistingActive(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT.*FROM users WHERE id = .* FOR UPDATE`).
		WithArgs(testUserID).
		WillReturnRows(userRow(0, models.StatusNone, models.TierNone))
	mock.ExpectExec(`(?s)UPDATE healing_sessions.*started_at <`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`(?s)SELECT id, user_id, feature.*status = 'active'\s+FOR UPDATE`).
		WithArgs(testUserID, "emotion_decoder").
		WillReturnRows(sessionRow(testUserID, models.SessionActive, 1, now.Add(-time.Minute)))
	mock.ExpectCommit()

	hs, created, err := s.StartSession(context.Background(), testUserID, models.FeatureEmotionDecoder, nil, now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, testSessionID, hs.ID)
	assert.Equal(t, 1, hs.RemovalCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRemoval_CompletedSessionIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM users WHERE id = .* FOR UPDATE`).
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(testUserID))
	mock.ExpectQuery(`(?s)FROM healing_sessions\s+WHERE id = .*FOR UPDATE`).
		WithArgs(testSessionID).
		WillReturnRows(sessionRow(testUserID, models.SessionCompleted, 5, time.Now().Add(-time.Hour)))
	mock.ExpectRollback()

	_, err := s.RecordRemoval(context.Background(), testSessionID, testUserID, models.UsageLogEntry{ID: "e"}, time.Now().Add(-24*time.Hour))
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRemoval_IncrementsAndLogs(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM users WHERE id = .* FOR UPDATE`).
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(testUserID))
	mock.ExpectQuery(`(?s)FROM healing_sessions\s+WHERE id = .*FOR UPDATE`).
		WithArgs(testSessionID).
		WillReturnRows(sessionRow(testUserID, models.SessionActive, 2, time.Now().Add(-time.Minute)))
	mock.ExpectQuery(`(?s)SET removal_count = removal_count \+ 1`).
		WithArgs(testSessionID).
		WillReturnRows(sqlmock.NewRows([]string{"removal_count"}).AddRow(3))
	mock.ExpectExec(`INSERT INTO usage_log`).
		WithArgs("e", testUserID, "emotion_decoder", "fear", jsonArg(`{"removal":"3","sessionId":"`+testSessionID+`"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	entry := models.UsageLogEntry{ID: "e", UserID: testUserID, Action: models.FeatureEmotionDecoder, ProcessedItem: "fear"}
	hs, err := s.RecordRemoval(context.Background(), testSessionID, testUserID, entry, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, hs.RemovalCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteSession_ChargesFreeUser(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT.*FROM users WHERE id = .* FOR UPDATE`).
		WithArgs(testUserID).
		WillReturnRows(userRow(1, models.StatusNone, models.TierNone))
	mock.ExpectQuery(`(?s)FROM healing_sessions\s+WHERE id = .*FOR UPDATE`).
		WithArgs(testSessionID).
		WillReturnRows(sessionRow(testUserID, models.SessionActive, 5, now.Add(-time.Minute)))
	mock.ExpectQuery(`(?s)UPDATE healing_sessions\s+SET status = 'completed'`).
		WithArgs(testSessionID, sqlmock.AnyArg(), true).
		WillReturnRows(sqlmock.NewRows(sessionCols).AddRow(
			testSessionID, testUserID, "emotion_decoder", "completed", 5, true, now.Add(-time.Minute), now,
		))
	mock.ExpectQuery(`(?s)SET emotion_usage = emotion_usage \+ 1`).
		WithArgs(testUserID).
		WillReturnRows(userRow(2, models.StatusNone, models.TierNone))
	mock.ExpectCommit()

	hs, u, err := s.CompleteSession(context.Background(), testSessionID, testUserID, func(*models.User, *models.HealingSession) bool {
		return true
	}, now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, hs.Status)
	assert.Equal(t, 5, hs.RemovalCount)
	require.NotNil(t, hs.CompletedAt)
	assert.Equal(t, 2, u.Usage.Emotion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteSession_StaleClosesWithoutCharge(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT.*FROM users WHERE id = .* FOR UPDATE`).
		WithArgs(testUserID).
		WillReturnRows(userRow(1, models.StatusNone, models.TierNone))
	mock.ExpectQuery(`(?s)FROM healing_sessions\s+WHERE id = .*FOR UPDATE`).
		WithArgs(testSessionID).
		WillReturnRows(sessionRow(testUserID, models.SessionActive, 0, now.Add(-48*time.Hour)))
	mock.ExpectExec(`(?s)UPDATE healing_sessions\s+SET status = 'completed', completed_at = .*, charged = FALSE\s+WHERE id = `).
		WithArgs(testSessionID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, _, err := s.CompleteSession(context.Background(), testSessionID, testUserID, func(*models.User, *models.HealingSession) bool {
		t.Fatal("charge must not run for a stale session")
		return false
	}, now.Add(-24*time.Hour), now)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseStaleSessions_ReportsRows(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`(?s)UPDATE healing_sessions.*WHERE status = 'active' AND started_at <`).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := s.CloseStaleSessions(context.Background(), time.Now().Add(-24*time.Hour), time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteJournal_ForeignEntryIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM journal_entries`).
		WithArgs(testSessionID, testUserID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.DeleteJournal(context.Background(), testUserID, testSessionID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistory_DecodesMetadata(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)FROM usage_log\s+WHERE user_id = `).
		WithArgs(testUserID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "action", "processed_item", "metadata", "created_at"}).
			AddRow("e2", testUserID, "emotion_decoder", "fear", []byte(`{"sessionId":"s1","removal":"2"}`), at).
			AddRow("e1", testUserID, "belief_decoder", nil, []byte(`{}`), at.Add(-time.Hour)))

	entries, err := s.History(context.Background(), testUserID, at.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2", entries[0].Metadata[store.MetaRemoval])
	assert.Nil(t, entries[1].Metadata)
	assert.Empty(t, entries[1].ProcessedItem)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionErrorSurfaces(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, err := s.UpdateSubscription(context.Background(), testUserID, func(*models.User) error { return nil })
	assert.EqualError(t, err, "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

type jsonArg string

func (j jsonArg) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	return ok && string(b) == string(j)
}
