package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatusDone is the terminal task status; done tasks never remind.
const TaskStatusDone = "done"

// Task is a reminder source item owned by the task CRUD layer.
// DueDate is a calendar date formatted as YYYY-MM-DD.
type Task struct {
	ID          string    `db:"id"`
	OwnerUserID uuid.UUID `db:"owner_user_id"`
	Title       string    `db:"title"`
	Status      string    `db:"status"`
	DueDate     string    `db:"due_date"`
}

type HearingSourceKind string

const (
	HearingSourceCase  HearingSourceKind = "case"
	HearingSourceEvent HearingSourceKind = "event"
)

// HearingItem is a legal case hearing or a hearing-type calendar entry.
type HearingItem struct {
	ID          string            `db:"id"`
	SourceKind  HearingSourceKind `db:"source_kind"`
	OwnerUserID uuid.UUID         `db:"owner_user_id"`
	Date        string            `db:"hearing_date"`
	Time        *string           `db:"hearing_time"`
	Title       string            `db:"title"`
	Reference   string            `db:"reference"`
	Location    string            `db:"location"`
}

type ScanKind string

const (
	ScanKindTasks    ScanKind = "tasks"
	ScanKindHearings ScanKind = "hearings"
)

func (k ScanKind) Valid() bool {
	return k == ScanKindTasks || k == ScanKindHearings
}

// ScanSummary is the result of one scan invocation.
type ScanSummary struct {
	Kind                 ScanKind  `json:"kind"`
	ItemsScanned         int       `json:"itemsScanned"`
	NotificationsCreated int       `json:"notificationsCreated"`
	DuplicatesSkipped    int       `json:"duplicatesSkipped"`
	PushSent             int       `json:"pushSent"`
	PushFailed           int       `json:"pushFailed"`
	PushRemoved          int       `json:"pushRemoved"`
	EmailSent            int       `json:"emailSent"`
	EmailFailed          int       `json:"emailFailed"`
	LedgerFailed         int       `json:"ledgerFailed"`
	PushConfigError      string    `json:"pushConfigError,omitempty"`
	StartedAt            time.Time `json:"startedAt"`
	FinishedAt           time.Time `json:"finishedAt"`
}

// Merge adds the counters of o into s.
func (s *ScanSummary) Merge(o ScanSummary) {
	s.ItemsScanned += o.ItemsScanned
	s.NotificationsCreated += o.NotificationsCreated
	s.DuplicatesSkipped += o.DuplicatesSkipped
	s.PushSent += o.PushSent
	s.PushFailed += o.PushFailed
	s.PushRemoved += o.PushRemoved
	s.EmailSent += o.EmailSent
	s.EmailFailed += o.EmailFailed
	s.LedgerFailed += o.LedgerFailed
}
