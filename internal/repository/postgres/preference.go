package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/jwalitptl/notification-dispatch/internal/model"
	"github.com/jwalitptl/notification-dispatch/internal/repository"
)

var preferenceColumns = []string{
	"user_id", "push_enabled", "sms_enabled", "email_enabled", "category_preferences", "created_at", "updated_at",
}

type preferenceRepository struct {
	*BaseRepository
}

func NewPreferenceRepository(base *BaseRepository) repository.PreferenceRepository {
	return &preferenceRepository{base}
}

func (r *preferenceRepository) Get(ctx context.Context, userID uuid.UUID) (*model.NotificationPreference, error) {
	query := r.sb.Select(preferenceColumns...).
		From("notification_preferences").
		Where(sq.Eq{"user_id": userID})

	var pref model.NotificationPreference
	if err := r.get(ctx, &pref, query, "unable to get notification preferences"); err != nil {
		return nil, err
	}
	return &pref, nil
}

func (r *preferenceRepository) insert(pref *model.NotificationPreference) sq.InsertBuilder {
	return r.sb.Insert("notification_preferences").
		Columns(preferenceColumns...).
		Values(
			pref.UserID,
			pref.PushEnabled,
			pref.SMSEnabled,
			pref.EmailEnabled,
			pref.CategoryPreferences,
			pref.CreatedAt.UTC(),
			pref.UpdatedAt.UTC(),
		)
}

func (r *preferenceRepository) Upsert(ctx context.Context, pref *model.NotificationPreference) error {
	query := r.insert(pref).Suffix(`ON CONFLICT (user_id) DO UPDATE SET
		push_enabled = EXCLUDED.push_enabled,
		sms_enabled = EXCLUDED.sms_enabled,
		email_enabled = EXCLUDED.email_enabled,
		category_preferences = EXCLUDED.category_preferences,
		updated_at = EXCLUDED.updated_at`)

	_, err := r.exec(ctx, query, "unable to save notification preferences")
	return err
}

func (r *preferenceRepository) InsertIfAbsent(ctx context.Context, pref *model.NotificationPreference) error {
	query := r.insert(pref).Suffix("ON CONFLICT (user_id) DO NOTHING")

	_, err := r.exec(ctx, query, "unable to create notification preferences")
	return err
}
