package pipeline

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// cronField is a parsed cron field that matches a set of values.
type cronField struct {
	wildcard bool
	values   []int
}

func (f cronField) matches(val int) bool {
	return f.wildcard || slices.Contains(f.values, val)
}

// parseCronField parses one field: "*", "5", "1,15", "1-5", "*/15" or
// "0-30/10". Values must lie in [lo, hi].
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}

	var values []int
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)
		rng, stepStr, hasStep := strings.Cut(part, "/")
		step := 1
		if hasStep {
			s, err := strconv.Atoi(stepStr)
			if err != nil || s <= 0 {
				return cronField{}, fmt.Errorf("invalid cron step %q", part)
			}
			step = s
		}

		start, end := lo, hi
		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			a, b, _ := strings.Cut(rng, "-")
			var err error
			if start, err = strconv.Atoi(a); err != nil {
				return cronField{}, fmt.Errorf("invalid cron field value %q: %w", part, err)
			}
			if end, err = strconv.Atoi(b); err != nil {
				return cronField{}, fmt.Errorf("invalid cron field value %q: %w", part, err)
			}
		default:
			v, err := strconv.Atoi(rng)
			if err != nil {
				return cronField{}, fmt.Errorf("invalid cron field value %q: %w", part, err)
			}
			start, end = v, v
			if hasStep {
				end = hi
			}
		}
		if start < lo || end > hi || start > end {
			return cronField{}, fmt.Errorf("cron field %q out of range [%d, %d]", part, lo, hi)
		}
		for v := start; v <= end; v += step {
			values = append(values, v)
		}
	}
	return cronField{values: values}, nil
}

// Schedule is a parsed 5-field cron expression evaluated in UTC.
type Schedule struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

// ParseCron parses "minute hour day-of-month month day-of-week".
func ParseCron(expr string) (Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return Schedule{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	var s Schedule
	bounds := []struct {
		name   string
		lo, hi int
		dst    *cronField
	}{
		{"minute", 0, 59, &s.minute},
		{"hour", 0, 23, &s.hour},
		{"day-of-month", 1, 31, &s.dayOfMonth},
		{"month", 1, 12, &s.month},
		{"day-of-week", 0, 6, &s.dayOfWeek},
	}
	for i, b := range bounds {
		f, err := parseCronField(fields[i], b.lo, b.hi)
		if err != nil {
			return Schedule{}, fmt.Errorf("parsing %s field: %w", b.name, err)
		}
		*b.dst = f
	}
	return s, nil
}

func (s Schedule) matches(t time.Time) bool {
	return s.minute.matches(t.Minute()) &&
		s.hour.matches(t.Hour()) &&
		s.dayOfMonth.matches(t.Day()) &&
		s.month.matches(int(t.Month())) &&
		s.dayOfWeek.matches(int(t.Weekday()))
}

// Next returns the first minute strictly after after that matches. It
// searches up to one year ahead.
func (s Schedule) Next(after time.Time) (time.Time, error) {
	after = after.UTC()
	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if s.matches(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching cron time within one year")
}
