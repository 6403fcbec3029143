package model

import (
	"time"

	"github.com/google/uuid"
)

// PushSubscription is one browser's opt-in to push messages for a user.
// It is active until the push service reports it gone or the user revokes it.
type PushSubscription struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	Endpoint       string     `db:"endpoint" json:"endpoint"`
	P256dh         string     `db:"p256dh" json:"-"`
	Auth           string     `db:"auth" json:"-"`
	ExpirationTime *time.Time `db:"expiration_time" json:"expiration_time,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

func (s *PushSubscription) Expired(now time.Time) bool {
	return s.ExpirationTime != nil && !s.ExpirationTime.After(now)
}
