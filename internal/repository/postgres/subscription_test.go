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

func TestSubscriptionRegistry(t *testing.T) {
	ctx := context.Background()
	repo := NewSubscriptionRepository(newSQLiteBase(t))

	userID := uuid.New()
	createdAt := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	sub := &model.PushSubscription{
		UserID:    userID,
		Endpoint:  "https://push.example.com/send/abc",
		P256dh:    "key-1",
		Auth:      "auth-1",
		CreatedAt: createdAt,
	}
	require.NoError(t, repo.Upsert(ctx, sub))
	require.NotEqual(t, uuid.Nil, sub.ID)
	firstID := sub.ID

	// Re-registering the same endpoint updates keys but keeps the row.
	again := &model.PushSubscription{
		UserID:    userID,
		Endpoint:  sub.Endpoint,
		P256dh:    "key-2",
		Auth:      "auth-2",
		CreatedAt: createdAt.Add(time.Hour),
	}
	require.NoError(t, repo.Upsert(ctx, again))
	assert.Equal(t, firstID, again.ID)
	assert.True(t, again.CreatedAt.Equal(createdAt))

	expires := createdAt.Add(48 * time.Hour)
	second := &model.PushSubscription{
		UserID:         userID,
		Endpoint:       "https://push.example.com/send/def",
		ExpirationTime: &expires,
		CreatedAt:      createdAt.Add(time.Minute),
	}
	require.NoError(t, repo.Upsert(ctx, second))

	subs, err := repo.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "key-2", subs[0].P256dh)
	assert.Equal(t, "auth-2", subs[0].Auth)
	require.NotNil(t, subs[1].ExpirationTime)
	assert.True(t, subs[1].ExpirationTime.Equal(expires))

	got, err := repo.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.Endpoint, got.Endpoint)

	err = repo.DeleteForUser(ctx, uuid.New(), second.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, repo.DeleteForUser(ctx, userID, second.ID))
	require.NoError(t, repo.Delete(ctx, firstID))
	require.NoError(t, repo.Delete(ctx, firstID), "deleting a removed row is not an error")

	_, err = repo.Get(ctx, firstID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	subs, err = repo.ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSubscriptionUpsertKeepsOwner(t *testing.T) {
	ctx := context.Background()
	repo := NewSubscriptionRepository(newSQLiteBase(t))

	owner := uuid.New()
	sub := &model.PushSubscription{
		UserID:    owner,
		Endpoint:  "https://push.example.com/send/shared",
		P256dh:    "owner-key",
		Auth:      "owner-auth",
		CreatedAt: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Upsert(ctx, sub))

	takeover := &model.PushSubscription{
		UserID:    uuid.New(),
		Endpoint:  sub.Endpoint,
		P256dh:    "other-key",
		Auth:      "other-auth",
		CreatedAt: sub.CreatedAt.Add(time.Hour),
	}
	err := repo.Upsert(ctx, takeover)
	assert.ErrorIs(t, err, repository.ErrSubscriptionOwned)

	got, err := repo.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, owner, got.UserID)
	assert.Equal(t, "owner-key", got.P256dh)
	assert.Equal(t, "owner-auth", got.Auth)

	subs, err := repo.ListByUser(ctx, takeover.UserID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSubscriptionDeleteSQL(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewSubscriptionRepository(base)
	id := uuid.New()

	mock.ExpectExec(`DELETE FROM push_subscriptions WHERE id = \$1`).
		WithArgs(id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}
