package reminder

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Window is an exact day offset at which a hearing reminder fires.
type Window struct {
	Label  string
	Offset int
	Title  string
}

var (
	WindowToday    = Window{Label: "today", Offset: 0, Title: "Hearing today"}
	WindowTomorrow = Window{Label: "tomorrow", Offset: 1, Title: "Hearing tomorrow"}
	WindowIn7Days  = Window{Label: "in7days", Offset: 7, Title: "Hearing in 7 days"}

	hearingWindows = []Window{WindowToday, WindowTomorrow, WindowIn7Days}
)

// HearingWindow classifies a day offset. Offsets between the windows fire
// nothing; reminders are not a countdown.
func HearingWindow(offset int) (Window, bool) {
	for _, w := range hearingWindows {
		if w.Offset == offset {
			return w, true
		}
	}
	return Window{}, false
}

// MaxHearingOffset is the furthest window, and so the scan horizon.
func MaxHearingOffset() int {
	max := 0
	for _, w := range hearingWindows {
		if w.Offset > max {
			max = w.Offset
		}
	}
	return max
}

type TaskState int

const (
	TaskNotDue TaskState = iota
	TaskDueToday
	TaskOverdue
)

func ClassifyTask(offset int) TaskState {
	switch {
	case offset < 0:
		return TaskOverdue
	case offset == 0:
		return TaskDueToday
	default:
		return TaskNotDue
	}
}

// Today is the calendar date of now in loc, as midnight UTC.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc != nil {
		now = now.In(loc)
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate reads a YYYY-MM-DD date. A longer timestamp string is cut to
// its date part.
func ParseDate(s string) (time.Time, error) {
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// DayOffset is the number of calendar days from today to date.
func DayOffset(today time.Time, date string) (int, error) {
	d, err := ParseDate(date)
	if err != nil {
		return 0, err
	}
	return int(d.Sub(today).Hours() / 24), nil
}
