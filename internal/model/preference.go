package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CategoryPreferences is the category -> channel -> allowed matrix. A missing
// cell means the user never expressed a choice for it.
type CategoryPreferences map[Category]map[Channel]bool

// Value stores the matrix as a JSON document.
func (p CategoryPreferences) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *CategoryPreferences) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = CategoryPreferences{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported category preferences type %T", src)
	}
	out := CategoryPreferences{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return err
		}
	}
	*p = out
	return nil
}

// NotificationPreference holds one user's channel toggles and category matrix.
type NotificationPreference struct {
	UserID              uuid.UUID           `db:"user_id" json:"user_id"`
	PushEnabled         bool                `db:"push_enabled" json:"push_enabled"`
	SMSEnabled          bool                `db:"sms_enabled" json:"sms_enabled"`
	EmailEnabled        bool                `db:"email_enabled" json:"email_enabled"`
	CategoryPreferences CategoryPreferences `db:"category_preferences" json:"category_preferences"`
	CreatedAt           time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time           `db:"updated_at" json:"updated_at"`
}

// DefaultPreference is the record a user has before ever saving preferences:
// every global toggle off and no category cells.
func DefaultPreference(userID uuid.UUID, now time.Time) *NotificationPreference {
	return &NotificationPreference{
		UserID:              userID,
		CategoryPreferences: CategoryPreferences{},
		CreatedAt:           now.UTC(),
		UpdatedAt:           now.UTC(),
	}
}

func (p *NotificationPreference) GlobalEnabled(channel Channel) bool {
	switch channel {
	case ChannelPush:
		return p.PushEnabled
	case ChannelSMS:
		return p.SMSEnabled
	case ChannelEmail:
		return p.EmailEnabled
	}
	return false
}

// Cell returns the category cell and whether it was set at all.
func (p *NotificationPreference) Cell(category Category, channel Channel) (allowed bool, set bool) {
	channels, ok := p.CategoryPreferences[category]
	if !ok {
		return false, false
	}
	allowed, set = channels[channel]
	return allowed, set
}
