package postgres

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notification-dispatch/internal/model"
	"github.com/jwalitptl/notification-dispatch/internal/repository"
)

func newNotification(userID uuid.UUID, key string, createdAt time.Time) *model.Notification {
	return model.Candidate{
		UserID:         userID,
		Category:       model.CategoryTask,
		Title:          "Task due today",
		Message:        "File the quarterly return",
		Link:           "/tasks/1",
		IdempotencyKey: key,
	}.Notification(uuid.New(), createdAt)
}

func TestInsertBatchUsesInsertOrIgnore(t *testing.T) {
	assert := assert.New(t)
	base, mock := newMockBase(t)
	repo := NewNotificationRepository(base)

	userID := uuid.New()
	now := time.Now()
	first := newNotification(userID, "task:due:1", now)
	second := newNotification(userID, "task:due:2", now)

	// Only the first key is new; the database skips the second.
	args := make([]driver.Value, 16)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	mock.ExpectQuery(`INSERT INTO notifications \(id,user_id,category,title,message,link,idempotency_key,created_at\) VALUES \(\$1,.*\),\(.*\$16\) ON CONFLICT \(idempotency_key\) DO NOTHING RETURNING idempotency_key`).
		WithArgs(args...).
		WillReturnRows(sqlmock.NewRows([]string{"idempotency_key"}).AddRow("task:due:1"))

	created, err := repo.InsertBatch(context.Background(), []*model.Notification{first, second})
	assert.NoError(err)
	assert.Equal(map[string]bool{"task:due:1": true}, created)

	assert.NoError(mock.ExpectationsWereMet(), "not all mock expectations were met")
}

func TestInsertBatchEmpty(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewNotificationRepository(base)

	created, err := repo.InsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRejectsDuplicateKeys(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository(newSQLiteBase(t))

	userID := uuid.New()
	now := time.Date(2026, 10, 15, 7, 0, 0, 0, time.UTC)

	created, err := repo.InsertBatch(ctx, []*model.Notification{
		newNotification(userID, "task:due:1", now),
		newNotification(userID, "task:overdue:2", now.Add(time.Second)),
	})
	require.NoError(t, err)
	assert.Len(t, created, 2)

	// A second run with fresh row ids but the same keys creates nothing.
	created, err = repo.InsertBatch(ctx, []*model.Notification{
		newNotification(userID, "task:due:1", now.Add(time.Hour)),
		newNotification(userID, "task:overdue:2", now.Add(time.Hour)),
	})
	require.NoError(t, err)
	assert.Empty(t, created)

	ok, err := repo.Insert(ctx, newNotification(userID, "task:due:1", now))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Insert(ctx, newNotification(userID, "task:due:3", now.Add(2*time.Second)))
	require.NoError(t, err)
	assert.True(t, ok)

	rows, err := repo.ListByUser(ctx, userID, model.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "task:due:3", rows[0].IdempotencyKey, "newest first")
	assert.Equal(t, model.CategoryTask, rows[0].Category)
	assert.True(t, rows[2].CreatedAt.Equal(now))
	assert.Nil(t, rows[0].ReadAt)
}

func TestLedgerMarkRead(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository(newSQLiteBase(t))

	userID := uuid.New()
	now := time.Date(2026, 10, 15, 7, 0, 0, 0, time.UTC)
	n := newNotification(userID, "hearing:case:9:2026-10-16:tomorrow", now)
	other := newNotification(userID, "hearing:case:9:2026-10-22:in7days", now.Add(time.Second))
	_, err := repo.InsertBatch(ctx, []*model.Notification{n, other})
	require.NoError(t, err)

	readAt := now.Add(time.Hour)
	require.NoError(t, repo.MarkRead(ctx, userID, n.ID, readAt))
	// marking twice keeps the first read time
	require.NoError(t, repo.MarkRead(ctx, userID, n.ID, readAt.Add(time.Hour)))

	all, err := repo.ListByUser(ctx, userID, model.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NotNil(t, all[1].ReadAt)
	assert.True(t, all[1].ReadAt.Equal(readAt))

	unread, err := repo.ListByUser(ctx, userID, model.NotificationFilter{UnreadOnly: true, Limit: 10})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, other.ID, unread[0].ID)

	err = repo.MarkRead(ctx, uuid.New(), n.ID, readAt)
	assert.ErrorIs(t, err, repository.ErrNotFound, "other users cannot mark the row")
}
