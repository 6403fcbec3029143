package preference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/notification-dispatch/internal/model"
	"github.com/jwalitptl/notification-dispatch/internal/repository"
	apperrors "github.com/jwalitptl/notification-dispatch/pkg/errors"
)

// Resolver answers whether a user accepts a category on a channel.
type Resolver interface {
	IsAllowed(ctx context.Context, userID uuid.UUID, category model.Category, channel model.Channel) (bool, error)
}

type Config struct {
	CacheDuration   time.Duration
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		CacheDuration:   time.Minute,
		CleanupInterval: 10 * time.Minute,
	}
}

type Service struct {
	repo  repository.PreferenceRepository
	cache *cache.Cache
	now   func() time.Time
}

func NewService(repo repository.PreferenceRepository, cfg Config) *Service {
	return &Service{
		repo:  repo,
		cache: cache.New(cfg.CacheDuration, cfg.CleanupInterval),
		now:   time.Now,
	}
}

// Allowed applies the gating rules to a loaded record. A nil record is the
// default one.
//
// Push ignores the global push toggle: a live device subscription is the
// opt-in, so only an explicit false category cell blocks it. SMS and email
// need the global toggle on and no explicit false cell.
func Allowed(pref *model.NotificationPreference, category model.Category, channel model.Channel) bool {
	if pref == nil {
		pref = model.DefaultPreference(uuid.Nil, time.Time{})
	}

	allowed, set := pref.Cell(category, channel)
	cellAllows := !set || allowed

	switch channel {
	case model.ChannelPush:
		return cellAllows
	case model.ChannelSMS, model.ChannelEmail:
		return pref.GlobalEnabled(channel) && cellAllows
	}
	return false
}

func (s *Service) IsAllowed(ctx context.Context, userID uuid.UUID, category model.Category, channel model.Channel) (bool, error) {
	if !channel.Valid() {
		return false, fmt.Errorf("unknown channel %q", channel)
	}
	pref, err := s.load(ctx, userID)
	if err != nil {
		return false, err
	}
	return Allowed(pref, category, channel), nil
}

// load reads through the cache. A user without a record gets the default,
// which is not persisted here.
func (s *Service) load(ctx context.Context, userID uuid.UUID) (*model.NotificationPreference, error) {
	key := userID.String()
	if cached, found := s.cache.Get(key); found {
		return cached.(*model.NotificationPreference), nil
	}

	pref, err := s.repo.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		pref = model.DefaultPreference(userID, s.now())
	} else if err != nil {
		return nil, fmt.Errorf("failed to load notification preferences: %w", err)
	}

	s.cache.Set(key, pref, cache.DefaultExpiration)
	return pref, nil
}

// Get returns the user's record, creating the default one on first access.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*model.NotificationPreference, error) {
	pref, err := s.repo.Get(ctx, userID)
	if err == nil {
		return pref, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to get notification preferences: %w", err)
	}

	if err := s.repo.InsertIfAbsent(ctx, model.DefaultPreference(userID, s.now())); err != nil {
		return nil, fmt.Errorf("failed to create notification preferences: %w", err)
	}
	pref, err = s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get notification preferences: %w", err)
	}
	return pref, nil
}

// Update replaces the user's toggles and category matrix.
func (s *Service) Update(ctx context.Context, userID uuid.UUID, in *model.NotificationPreference) (*model.NotificationPreference, error) {
	if err := validateMatrix(in.CategoryPreferences); err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}

	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	matrix := in.CategoryPreferences
	if matrix == nil {
		matrix = model.CategoryPreferences{}
	}
	updated := &model.NotificationPreference{
		UserID:              userID,
		PushEnabled:         in.PushEnabled,
		SMSEnabled:          in.SMSEnabled,
		EmailEnabled:        in.EmailEnabled,
		CategoryPreferences: matrix,
		CreatedAt:           current.CreatedAt,
		UpdatedAt:           s.now().UTC(),
	}
	if err := s.repo.Upsert(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to update notification preferences: %w", err)
	}

	s.cache.Delete(userID.String())
	return updated, nil
}

func validateMatrix(matrix model.CategoryPreferences) error {
	for category, channels := range matrix {
		if !category.Valid() {
			return fmt.Errorf("unknown category %q", category)
		}
		for channel := range channels {
			if !channel.Valid() {
				return fmt.Errorf("unknown channel %q for category %q", channel, category)
			}
		}
	}
	return nil
}
