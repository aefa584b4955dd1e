package schedule

import (
	"fmt"
	"time"

	"siteplan/internal/domain"
)

// ConstraintViolation reports one (task, constraint) pair that failed its
// date check.
type ConstraintViolation struct {
	TaskID      string
	Constraint  domain.SchedulingConstraint
	Description string
}

// ValidateConstraints checks every constraint against its task's resolved
// schedule. Tasks with no scheduled start or end cannot be validated and are
// skipped. Constraints referencing unknown tasks are skipped. An unrecognized
// constraint type fails the whole validation.
func ValidateConstraints(tasks map[string]domain.Task, constraints []domain.SchedulingConstraint) ([]ConstraintViolation, error) {
	var out []ConstraintViolation
	for _, c := range constraints {
		t, ok := tasks[c.TaskID]
		if !ok || t.ScheduledStart == nil || t.ScheduledEnd == nil {
			continue
		}
		start, err := time.Parse(time.RFC3339, *t.ScheduledStart)
		if err != nil {
			continue
		}
		end, err := time.Parse(time.RFC3339, *t.ScheduledEnd)
		if err != nil {
			continue
		}
		date, err := time.Parse(time.RFC3339, c.ConstraintDate)
		if err != nil {
			return nil, fmt.Errorf("constraint %s: bad date %q: %w", c.ID, c.ConstraintDate, err)
		}

		var desc string
		switch c.Type {
		case domain.ConstraintMustStartOn:
			if !sameCalendarDay(start, date) {
				desc = fmt.Sprintf("task %q must start on %s but is scheduled for %s",
					t.Name, calendarDay(date), calendarDay(start))
			}
		case domain.ConstraintMustFinishBy:
			if end.After(date) {
				desc = fmt.Sprintf("task %q must finish by %s but is scheduled to end on %s",
					t.Name, calendarDay(date), calendarDay(end))
			}
		case domain.ConstraintNotEarlierThan:
			if start.Before(date) {
				desc = fmt.Sprintf("task %q cannot start before %s but is scheduled for %s",
					t.Name, calendarDay(date), calendarDay(start))
			}
		case domain.ConstraintNotLaterThan:
			if start.After(date) {
				desc = fmt.Sprintf("task %q cannot start after %s but is scheduled for %s",
					t.Name, calendarDay(date), calendarDay(start))
			}
		default:
			return nil, fmt.Errorf("constraint %s: unknown type %q", c.ID, c.Type)
		}
		if desc != "" {
			out = append(out, ConstraintViolation{TaskID: t.ID, Constraint: c, Description: desc})
		}
	}
	return out, nil
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func calendarDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
