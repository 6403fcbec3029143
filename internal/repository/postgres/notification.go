package postgres

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jwalitptl/notification-dispatch/internal/model"
	"github.com/jwalitptl/notification-dispatch/internal/repository"
)

const (
	// insertChunkSize bounds the number of rows per multi-row insert.
	insertChunkSize = 200

	defaultListLimit = 50
	maxListLimit     = 200
)

var notificationColumns = []string{
	"id", "user_id", "category", "title", "message", "link", "idempotency_key", "created_at", "read_at",
}

type notificationRepository struct {
	*BaseRepository
}

func NewNotificationRepository(base *BaseRepository) repository.NotificationRepository {
	return &notificationRepository{
		BaseRepository: base,
	}
}

func (r *notificationRepository) insertStatement(notifications []*model.Notification) sq.InsertBuilder {
	builder := r.sb.Insert("notifications").Columns(notificationColumns[:8]...)
	for _, n := range notifications {
		builder = builder.Values(
			n.ID,
			n.UserID,
			string(n.Category),
			n.Title,
			n.Message,
			n.Link,
			n.IdempotencyKey,
			n.CreatedAt,
		)
	}
	// the unique index on idempotency_key is the dedup barrier
	return builder.Suffix("ON CONFLICT (idempotency_key) DO NOTHING RETURNING idempotency_key")
}

func (r *notificationRepository) InsertBatch(ctx context.Context, notifications []*model.Notification) (map[string]bool, error) {
	wrapMsg := "unable to insert notifications"
	created := make(map[string]bool, len(notifications))

	for start := 0; start < len(notifications); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(notifications) {
			end = len(notifications)
		}

		statement, args, err := r.insertStatement(notifications[start:end]).ToSql()
		if err != nil {
			return created, errors.Wrap(err, wrapMsg)
		}

		var keys []string
		if err := r.db.SelectContext(ctx, &keys, statement, args...); err != nil {
			return created, errors.Wrap(err, wrapMsg)
		}
		for _, key := range keys {
			created[key] = true
		}
	}

	return created, nil
}

func (r *notificationRepository) Insert(ctx context.Context, notification *model.Notification) (bool, error) {
	created, err := r.InsertBatch(ctx, []*model.Notification{notification})
	if err != nil {
		return false, errors.Wrap(err, "unable to insert notification")
	}
	return created[notification.IdempotencyKey], nil
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, filter model.NotificationFilter) ([]*model.Notification, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := r.sb.Select(notificationColumns...).
		From("notifications").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit))
	if filter.UnreadOnly {
		query = query.Where(sq.Eq{"read_at": nil})
	}

	notifications := []*model.Notification{}
	if err := r.selectAll(ctx, &notifications, query, "unable to list notifications"); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) error {
	query := r.sb.Update("notifications").
		Set("read_at", sq.Expr("COALESCE(read_at, ?)", at.UTC())).
		Where(sq.Eq{"id": id, "user_id": userID})

	rows, err := r.exec(ctx, query, "unable to mark notification read")
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
