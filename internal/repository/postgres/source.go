package postgres

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/jwalitptl/notification-dispatch/internal/model"
	"github.com/jwalitptl/notification-dispatch/internal/repository"
)

// dateLayout is how calendar dates cross the SQL boundary. Date columns are
// read back through CAST(... AS TEXT) so both drivers return the same form.
const dateLayout = "2006-01-02"

// calendarEventHearing marks calendar entries that are court hearings.
const calendarEventHearing = "hearing"

type reminderSourceRepository struct {
	*BaseRepository
}

func NewReminderSourceRepository(base *BaseRepository) repository.ReminderSourceRepository {
	return &reminderSourceRepository{base}
}

// ListDueTasks returns open tasks due on or before today.
func (r *reminderSourceRepository) ListDueTasks(ctx context.Context, today time.Time) ([]*model.Task, error) {
	query := r.sb.Select(
		"CAST(id AS TEXT) AS id",
		"owner_user_id",
		"title",
		"status",
		"CAST(due_date AS TEXT) AS due_date",
	).
		From("tasks").
		Where(sq.NotEq{"due_date": nil}).
		Where(sq.LtOrEq{"due_date": today.Format(dateLayout)}).
		Where(sq.NotEq{"status": model.TaskStatusDone}).
		OrderBy("owner_user_id", "due_date")

	tasks := []*model.Task{}
	if err := r.selectAll(ctx, &tasks, query, "unable to list due tasks"); err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListUpcomingHearingItems returns case hearings and hearing calendar entries
// dated within [today, today+horizonDays].
func (r *reminderSourceRepository) ListUpcomingHearingItems(ctx context.Context, today time.Time, horizonDays int) ([]*model.HearingItem, error) {
	from := today.Format(dateLayout)
	to := today.AddDate(0, 0, horizonDays).Format(dateLayout)

	cases := r.sb.Select(
		"CAST(id AS TEXT) AS id",
		"owner_user_id",
		"CAST(next_hearing_date AS TEXT) AS hearing_date",
		"CAST(next_hearing_time AS TEXT) AS hearing_time",
		"title",
		"COALESCE(case_number, '') AS reference",
		"COALESCE(court, '') AS location",
	).
		From("legal_cases").
		Where(sq.GtOrEq{"next_hearing_date": from}).
		Where(sq.LtOrEq{"next_hearing_date": to})

	items := []*model.HearingItem{}
	if err := r.selectAll(ctx, &items, cases, "unable to list case hearings"); err != nil {
		return nil, err
	}
	for _, item := range items {
		item.SourceKind = model.HearingSourceCase
	}

	events := r.sb.Select(
		"CAST(id AS TEXT) AS id",
		"owner_user_id",
		"CAST(event_date AS TEXT) AS hearing_date",
		"CAST(start_time AS TEXT) AS hearing_time",
		"title",
		"'' AS reference",
		"COALESCE(location, '') AS location",
	).
		From("calendar_events").
		Where(sq.Eq{"event_type": calendarEventHearing}).
		Where(sq.GtOrEq{"event_date": from}).
		Where(sq.LtOrEq{"event_date": to})

	eventItems := []*model.HearingItem{}
	if err := r.selectAll(ctx, &eventItems, events, "unable to list hearing events"); err != nil {
		return nil, err
	}
	for _, item := range eventItems {
		item.SourceKind = model.HearingSourceEvent
	}

	return append(items, eventItems...), nil
}
