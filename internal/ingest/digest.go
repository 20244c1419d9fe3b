package ingest

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultDigestSchedule fires on the 1st and 16th of each month.
const DefaultDigestSchedule = "0 8 1,16 * *"

// DigestDue reports whether the schedule fires at any time on the calendar
// day of now. A single pass per day is assumed, so the exact hour does not
// matter.
func DigestDue(schedule string, now time.Time) (bool, error) {
	if schedule == "" {
		schedule = DefaultDigestSchedule
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return false, fmt.Errorf("invalid digest schedule %q: %w", schedule, err)
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	next := sched.Next(dayStart.Add(-time.Nanosecond))
	return next.Before(dayStart.AddDate(0, 0, 1)), nil
}
