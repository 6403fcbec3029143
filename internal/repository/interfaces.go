package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notification-dispatch/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// ErrSubscriptionOwned is returned when a push endpoint is already registered
// to a different user.
var ErrSubscriptionOwned = errors.New("push endpoint belongs to another user")

// All repository interfaces in one file
type (
	// NotificationRepository is the notification ledger. Inserts are
	// insert-or-ignore on the idempotency key.
	NotificationRepository interface {
		// InsertBatch writes the rows whose idempotency key is new and
		// returns the set of keys that were actually created. On error the
		// set still holds the keys of chunks committed before the failure.
		InsertBatch(ctx context.Context, notifications []*model.Notification) (map[string]bool, error)
		// Insert reports whether the row was created (false means the key
		// already existed).
		Insert(ctx context.Context, notification *model.Notification) (bool, error)
		ListByUser(ctx context.Context, userID uuid.UUID, filter model.NotificationFilter) ([]*model.Notification, error)
		MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) error
	}

	// SubscriptionRepository is the push subscription registry.
	SubscriptionRepository interface {
		// Upsert registers sub keyed on its endpoint and fills in ID and
		// CreatedAt from the stored row.
		Upsert(ctx context.Context, sub *model.PushSubscription) error
		ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.PushSubscription, error)
		Get(ctx context.Context, id uuid.UUID) (*model.PushSubscription, error)
		// Delete removes a subscription. Deleting a missing row is not an error.
		Delete(ctx context.Context, id uuid.UUID) error
		// DeleteForUser removes a subscription owned by userID.
		DeleteForUser(ctx context.Context, userID, id uuid.UUID) error
	}

	PreferenceRepository interface {
		Get(ctx context.Context, userID uuid.UUID) (*model.NotificationPreference, error)
		Upsert(ctx context.Context, pref *model.NotificationPreference) error
		// InsertIfAbsent stores pref unless the user already has a record.
		InsertIfAbsent(ctx context.Context, pref *model.NotificationPreference) error
	}

	// ReminderSourceRepository reads the business tables the scanner watches.
	// Dates are calendar dates; today is the caller's local date.
	ReminderSourceRepository interface {
		ListDueTasks(ctx context.Context, today time.Time) ([]*model.Task, error)
		ListUpcomingHearingItems(ctx context.Context, today time.Time, horizonDays int) ([]*model.HearingItem, error)
	}

	// UserDirectory resolves account contact details.
	UserDirectory interface {
		GetEmail(ctx context.Context, userID uuid.UUID) (string, error)
	}
)
