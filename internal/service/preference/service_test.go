package preference

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notification-dispatch/internal/model"
	"github.com/jwalitptl/notification-dispatch/internal/repository"
	apperrors "github.com/jwalitptl/notification-dispatch/pkg/errors"
)

type memoryRepo struct {
	mu    sync.Mutex
	prefs map[uuid.UUID]model.NotificationPreference
	gets  int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{prefs: map[uuid.UUID]model.NotificationPreference{}}
}

func (r *memoryRepo) Get(_ context.Context, userID uuid.UUID) (*model.NotificationPreference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	pref, ok := r.prefs[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &pref, nil
}

func (r *memoryRepo) Upsert(_ context.Context, pref *model.NotificationPreference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs[pref.UserID] = *pref
	return nil
}

func (r *memoryRepo) InsertIfAbsent(_ context.Context, pref *model.NotificationPreference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.prefs[pref.UserID]; !ok {
		r.prefs[pref.UserID] = *pref
	}
	return nil
}

func cells(category model.Category, channel model.Channel, allowed bool) model.CategoryPreferences {
	return model.CategoryPreferences{category: {channel: allowed}}
}

func TestAllowedEmailGating(t *testing.T) {
	tests := []struct {
		name    string
		pref    *model.NotificationPreference
		allowed bool
	}{
		{
			name:    "global off dominates an explicit true cell",
			pref:    &model.NotificationPreference{EmailEnabled: false, CategoryPreferences: cells(model.CategoryTask, model.ChannelEmail, true)},
			allowed: false,
		},
		{
			name:    "explicit false cell blocks",
			pref:    &model.NotificationPreference{EmailEnabled: true, CategoryPreferences: cells(model.CategoryTask, model.ChannelEmail, false)},
			allowed: false,
		},
		{
			name:    "missing cell is allowed when globally on",
			pref:    &model.NotificationPreference{EmailEnabled: true},
			allowed: true,
		},
		{
			name:    "cell for another category does not apply",
			pref:    &model.NotificationPreference{EmailEnabled: true, CategoryPreferences: cells(model.CategoryInvoice, model.ChannelEmail, false)},
			allowed: true,
		},
		{
			name:    "missing record denies",
			pref:    nil,
			allowed: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, Allowed(tt.pref, model.CategoryTask, model.ChannelEmail))
		})
	}
}

func TestAllowedSMSMatchesEmail(t *testing.T) {
	pref := &model.NotificationPreference{SMSEnabled: true, CategoryPreferences: cells(model.CategoryLead, model.ChannelSMS, false)}
	assert.False(t, Allowed(pref, model.CategoryLead, model.ChannelSMS))
	assert.True(t, Allowed(pref, model.CategoryQuote, model.ChannelSMS))

	pref.SMSEnabled = false
	assert.False(t, Allowed(pref, model.CategoryQuote, model.ChannelSMS))
}

func TestAllowedPushIgnoresGlobalToggle(t *testing.T) {
	// push is opted into per device, so the global toggle is not consulted
	pref := &model.NotificationPreference{PushEnabled: false}
	assert.True(t, Allowed(pref, model.CategoryTask, model.ChannelPush))
	assert.True(t, Allowed(nil, model.CategoryTask, model.ChannelPush))

	pref.CategoryPreferences = cells(model.CategoryTask, model.ChannelPush, false)
	assert.False(t, Allowed(pref, model.CategoryTask, model.ChannelPush))
	assert.True(t, Allowed(pref, model.CategorySystem, model.ChannelPush))

	pref.PushEnabled = true
	assert.False(t, Allowed(pref, model.CategoryTask, model.ChannelPush))
}

func TestIsAllowedCachesAndDefaults(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo, DefaultConfig())
	userID := uuid.New()

	ok, err := svc.IsAllowed(ctx, userID, model.CategoryTask, model.ChannelEmail)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.IsAllowed(ctx, userID, model.CategoryTask, model.ChannelPush)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 1, repo.gets, "second lookup is served from cache")
	assert.Empty(t, repo.prefs, "resolver does not persist defaults")

	_, err = svc.IsAllowed(ctx, userID, model.CategoryTask, model.Channel("pager"))
	assert.Error(t, err)
}

func TestGetCreatesDefaultLazily(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo, DefaultConfig())
	fixed := time.Date(2026, 10, 15, 7, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	userID := uuid.New()

	pref, err := svc.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, userID, pref.UserID)
	assert.False(t, pref.PushEnabled)
	assert.False(t, pref.SMSEnabled)
	assert.False(t, pref.EmailEnabled)
	assert.Empty(t, pref.CategoryPreferences)
	assert.Equal(t, fixed, pref.CreatedAt)
	assert.Len(t, repo.prefs, 1)
}

func TestUpdateInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo, DefaultConfig())
	userID := uuid.New()

	ok, err := svc.IsAllowed(ctx, userID, model.CategoryInvoice, model.ChannelEmail)
	require.NoError(t, err)
	require.False(t, ok)

	updated, err := svc.Update(ctx, userID, &model.NotificationPreference{
		EmailEnabled:        true,
		CategoryPreferences: cells(model.CategoryTask, model.ChannelEmail, false),
	})
	require.NoError(t, err)
	assert.True(t, updated.EmailEnabled)

	ok, err = svc.IsAllowed(ctx, userID, model.CategoryInvoice, model.ChannelEmail)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsAllowed(ctx, userID, model.CategoryTask, model.ChannelEmail)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateRejectsUnknownKeys(t *testing.T) {
	svc := NewService(newMemoryRepo(), DefaultConfig())

	_, err := svc.Update(context.Background(), uuid.New(), &model.NotificationPreference{
		CategoryPreferences: cells(model.Category("payroll"), model.ChannelEmail, true),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))

	_, err = svc.Update(context.Background(), uuid.New(), &model.NotificationPreference{
		CategoryPreferences: cells(model.CategoryTask, model.Channel("fax"), true),
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))
}
