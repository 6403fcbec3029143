package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/jwalitptl/notification-dispatch/internal/model"
	"github.com/jwalitptl/notification-dispatch/internal/repository"
)

var subscriptionColumns = []string{
	"id", "user_id", "endpoint", "p256dh", "auth", "expiration_time", "created_at",
}

type subscriptionRepository struct {
	*BaseRepository
}

func NewSubscriptionRepository(base *BaseRepository) repository.SubscriptionRepository {
	return &subscriptionRepository{base}
}

// Upsert keys on the endpoint. Re-subscribing refreshes the keys of the
// caller's own row; an endpoint registered to another user is left untouched
// and reported as ErrSubscriptionOwned.
func (r *subscriptionRepository) Upsert(ctx context.Context, sub *model.PushSubscription) error {
	wrapMsg := "unable to save push subscription"

	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	query := r.sb.Insert("push_subscriptions").
		Columns(subscriptionColumns...).
		Values(sub.ID, sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth, sub.ExpirationTime, sub.CreatedAt.UTC()).
		Suffix(`ON CONFLICT (endpoint) DO UPDATE SET
			p256dh = EXCLUDED.p256dh,
			auth = EXCLUDED.auth,
			expiration_time = EXCLUDED.expiration_time
			WHERE push_subscriptions.user_id = EXCLUDED.user_id`)
	if _, err := r.exec(ctx, query, wrapMsg); err != nil {
		return err
	}

	// the row may predate this call, so read back its id and created_at
	stored := r.sb.Select(subscriptionColumns...).
		From("push_subscriptions").
		Where(sq.Eq{"endpoint": sub.Endpoint})

	var saved model.PushSubscription
	if err := r.get(ctx, &saved, stored, wrapMsg); err != nil {
		return err
	}
	if saved.UserID != sub.UserID {
		return repository.ErrSubscriptionOwned
	}
	sub.ID = saved.ID
	sub.CreatedAt = saved.CreatedAt
	return nil
}

func (r *subscriptionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.PushSubscription, error) {
	query := r.sb.Select(subscriptionColumns...).
		From("push_subscriptions").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at")

	subs := []*model.PushSubscription{}
	if err := r.selectAll(ctx, &subs, query, "unable to list push subscriptions"); err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *subscriptionRepository) Get(ctx context.Context, id uuid.UUID) (*model.PushSubscription, error) {
	query := r.sb.Select(subscriptionColumns...).
		From("push_subscriptions").
		Where(sq.Eq{"id": id})

	var sub model.PushSubscription
	if err := r.get(ctx, &sub, query, "unable to get push subscription"); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.exec(ctx, r.sb.Delete("push_subscriptions").Where(sq.Eq{"id": id}), "unable to delete push subscription")
	return err
}

func (r *subscriptionRepository) DeleteForUser(ctx context.Context, userID, id uuid.UUID) error {
	query := r.sb.Delete("push_subscriptions").Where(sq.Eq{"id": id, "user_id": userID})

	rows, err := r.exec(ctx, query, "unable to delete push subscription")
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
