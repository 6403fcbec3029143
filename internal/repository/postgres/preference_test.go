package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notification-dispatch/internal/model"
	"github.com/jwalitptl/notification-dispatch/internal/repository"
)

func TestPreferenceStore(t *testing.T) {
	ctx := context.Background()
	repo := NewPreferenceRepository(newSQLiteBase(t))

	userID := uuid.New()
	now := time.Date(2026, 10, 15, 7, 0, 0, 0, time.UTC)

	_, err := repo.Get(ctx, userID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, repo.InsertIfAbsent(ctx, model.DefaultPreference(userID, now)))

	pref, err := repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, pref.PushEnabled)
	assert.False(t, pref.SMSEnabled)
	assert.False(t, pref.EmailEnabled)
	assert.Empty(t, pref.CategoryPreferences)

	pref.EmailEnabled = true
	pref.CategoryPreferences = model.CategoryPreferences{
		model.CategoryInvoice: {model.ChannelEmail: false, model.ChannelPush: true},
	}
	pref.UpdatedAt = now.Add(time.Hour)
	require.NoError(t, repo.Upsert(ctx, pref))

	// a late lazy-create must not clobber saved choices
	require.NoError(t, repo.InsertIfAbsent(ctx, model.DefaultPreference(userID, now.Add(2*time.Hour))))

	saved, err := repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.True(t, saved.EmailEnabled)
	assert.True(t, saved.CreatedAt.Equal(now))
	assert.True(t, saved.UpdatedAt.Equal(now.Add(time.Hour)))

	allowed, set := saved.Cell(model.CategoryInvoice, model.ChannelEmail)
	assert.True(t, set)
	assert.False(t, allowed)
	allowed, set = saved.Cell(model.CategoryInvoice, model.ChannelPush)
	assert.True(t, set)
	assert.True(t, allowed)
	_, set = saved.Cell(model.CategoryTask, model.ChannelEmail)
	assert.False(t, set)
}

func TestPreferenceGetSQL(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewPreferenceRepository(base)
	userID := uuid.New()
	now := time.Now().UTC()

	rows := sqlmock.NewRows(preferenceColumns).
		AddRow(userID.String(), true, false, true, `{"task":{"email":false}}`, now, now)
	mock.ExpectQuery(`SELECT user_id, push_enabled, sms_enabled, email_enabled, category_preferences, created_at, updated_at FROM notification_preferences WHERE user_id = \$1`).
		WithArgs(userID.String()).
		WillReturnRows(rows)

	pref, err := repo.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, userID, pref.UserID)
	assert.True(t, pref.PushEnabled)
	assert.True(t, pref.EmailEnabled)
	allowed, set := pref.Cell(model.CategoryTask, model.ChannelEmail)
	assert.True(t, set)
	assert.False(t, allowed)

	assert.NoError(t, mock.ExpectationsWereMet())
}
