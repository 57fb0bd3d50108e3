package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrEmptyName    = errors.New("empty task name")
	ErrInvalidTime  = errors.New("invalid time")
	ErrEmptyClassID = errors.New("empty class id")
	ErrInvalidCoord = errors.New("invalid coordinate")
)

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: expected HH:MM, got %q", ErrInvalidTime, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: invalid hour in %q", ErrInvalidTime, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: invalid minute in %q", ErrInvalidTime, s)
	}
	return h*60 + m, nil
}

// NormalizeClock rewrites inputs like "8:5" into the canonical "08:05" so
// they compare equal to the scheduler's formatted wall clock.
func NormalizeClock(s string) (string, error) {
	mins, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	return FormatMinutes(mins), nil
}

// FormatMinutes returns HH:MM for minutes since midnight (00:00..23:59).
func FormatMinutes(mins int) string {
	if mins < 0 {
		mins = 0
	}
	h := mins / 60
	m := mins % 60
	return fmt.Sprintf("%02d:%02d", h, m)
}

// ValidateTask checks the fields a task needs to be scheduled and normalizes
// its trigger time. Cookie may be empty until a login binds a session.
func ValidateTask(t Task) (Task, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return t, ErrEmptyName
	}
	clock, err := NormalizeClock(t.Time)
	if err != nil {
		return t, err
	}
	t.Time = clock
	t.ClassID = strings.TrimSpace(t.ClassID)
	if t.ClassID == "" {
		return t, ErrEmptyClassID
	}
	for name, v := range map[string]string{"lat": t.Location.Lat, "lng": t.Location.Lng} {
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return t, fmt.Errorf("%w: %s=%q", ErrInvalidCoord, name, v)
		}
	}
	return t, nil
}

// ParseCoord parses a decimal-string coordinate, falling back to 0.
func ParseCoord(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
