package reminder

import (
	"fmt"

	"github.com/jwalitptl/notification-dispatch/internal/model"
)

// TaskOverdueKey does not encode a date: a task gets one overdue alert, not
// one per day it stays overdue.
func TaskOverdueKey(taskID string) string {
	return "task:overdue:" + taskID
}

func TaskDueKey(taskID string) string {
	return "task:due:" + taskID
}

// HearingKey includes the window so an item fires once per window as it
// approaches, and the date so a rescheduled hearing fires again. The "in 7
// days" window is written as "in7days" so keys stay free of spaces; changing
// a label re-fires every reminder already in the ledger under the old one.
func HearingKey(kind model.HearingSourceKind, itemID, date string, w Window) string {
	return fmt.Sprintf("hearing:%s:%s:%s:%s", kind, itemID, date, w.Label)
}
