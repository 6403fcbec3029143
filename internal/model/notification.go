package model

import (
	"time"

	"github.com/google/uuid"
)

// Category groups notifications for preference purposes.
type Category string

const (
	CategoryTask    Category = "task"
	CategoryInvoice Category = "invoice"
	CategoryQuote   Category = "quote"
	CategoryLead    Category = "lead"
	CategoryTender  Category = "tender"
	CategorySystem  Category = "system"
)

// Categories lists every known category.
var Categories = []Category{
	CategoryTask,
	CategoryInvoice,
	CategoryQuote,
	CategoryLead,
	CategoryTender,
	CategorySystem,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Channel is a delivery channel a user can opt in or out of.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

var Channels = []Channel{ChannelPush, ChannelSMS, ChannelEmail}

func (c Channel) Valid() bool {
	return c == ChannelPush || c == ChannelSMS || c == ChannelEmail
}

// Notification is a ledger row. IdempotencyKey is unique across the ledger
// and rows are never mutated apart from ReadAt.
type Notification struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	Category       Category   `db:"category" json:"category"`
	Title          string     `db:"title" json:"title"`
	Message        string     `db:"message" json:"message"`
	Link           string     `db:"link" json:"link"`
	IdempotencyKey string     `db:"idempotency_key" json:"idempotency_key"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	ReadAt         *time.Time `db:"read_at" json:"read_at,omitempty"`
}

type NotificationFilter struct {
	UnreadOnly bool
	Limit      int
}

// NotificationEvent is published on the message broker once a ledger row
// has been committed.
type NotificationEvent struct {
	ID             uuid.UUID `json:"id"`
	NotificationID uuid.UUID `json:"notification_id"`
	UserID         uuid.UUID `json:"user_id"`
	Type           string    `json:"type"`
	Category       Category  `json:"category"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	Link           string    `json:"link"`
	CreatedAt      time.Time `json:"created_at"`
}

// Candidate is a notification a scan wants to deliver. It becomes a ledger
// row only if its IdempotencyKey has not been seen before.
type Candidate struct {
	UserID         uuid.UUID
	Category       Category
	Title          string
	Message        string
	Link           string
	IdempotencyKey string
}

func (c Candidate) Notification(id uuid.UUID, now time.Time) *Notification {
	return &Notification{
		ID:             id,
		UserID:         c.UserID,
		Category:       c.Category,
		Title:          c.Title,
		Message:        c.Message,
		Link:           c.Link,
		IdempotencyKey: c.IdempotencyKey,
		CreatedAt:      now.UTC(),
	}
}
