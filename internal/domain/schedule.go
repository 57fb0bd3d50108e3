package domain

import "time"

// ClockOf formats t's local wall clock as HH:MM.
func ClockOf(t time.Time) string {
	return t.Format("15:04")
}

// Due returns the enabled tasks whose trigger time equals now's wall-clock
// minute. Trigger times are compared as written; store them normalized.
func Due(now time.Time, tasks []Task) []Task {
	clock := ClockOf(now)
	var due []Task
	for _, t := range tasks {
		if t.Enabled && t.Time == clock {
			due = append(due, t)
		}
	}
	return due
}

// NextRun returns the next instant at or after now when t fires, in now's
// location. ok is false when the trigger time cannot be parsed.
func NextRun(now time.Time, t Task) (next time.Time, ok bool) {
	mins, err := ParseClock(t.Time)
	if err != nil {
		return time.Time{}, false
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), mins/60, mins%60, 0, 0, now.Location())
	if at.Before(now.Truncate(time.Minute)) {
		at = time.Date(now.Year(), now.Month(), now.Day()+1, mins/60, mins%60, 0, 0, now.Location())
	}
	return at, true
}
