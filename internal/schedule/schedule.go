// Package schedule computes when scheduled pipeline runs fire.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Schedule decides when the next run should occur after the given time.
// A zero time means the schedule never fires again.
type Schedule interface {
	Next(after time.Time) time.Time
}

// ClockTime is a time of day in 24h format.
type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) Valid() bool {
	return c.Hour >= 0 && c.Hour <= 23 && c.Minute >= 0 && c.Minute <= 59
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClock parses "HH:MM".
func ParseClock(raw string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: want HH:MM", raw)
	}
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	c := ClockTime{Hour: h, Minute: m}
	if errH != nil || errM != nil || !c.Valid() {
		return ClockTime{}, fmt.Errorf("invalid clock time %q", raw)
	}
	return c, nil
}

// DailyAt fires at fixed times each day, optionally only on some weekdays.
type DailyAt struct {
	Times    []ClockTime
	Weekdays []time.Weekday
	Location *time.Location
}

func (d DailyAt) Next(after time.Time) time.Time {
	times := normalizeTimes(d.Times)
	if len(times) == 0 {
		return time.Time{}
	}
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	allowed := make(map[time.Weekday]bool, len(d.Weekdays))
	for _, day := range d.Weekdays {
		allowed[day] = true
	}

	anchor := after.In(loc)
	for offset := 0; offset < 8; offset++ {
		day := anchor.AddDate(0, 0, offset)
		if len(allowed) > 0 && !allowed[day.Weekday()] {
			continue
		}
		for _, t := range times {
			candidate := time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, loc)
			if candidate.After(anchor) {
				return candidate
			}
		}
	}
	return time.Time{}
}

func normalizeTimes(times []ClockTime) []ClockTime {
	valid := make([]ClockTime, 0, len(times))
	for _, t := range times {
		if t.Valid() {
			valid = append(valid, t)
		}
	}
	sort.Slice(valid, func(i, j int) bool {
		if valid[i].Hour == valid[j].Hour {
			return valid[i].Minute < valid[j].Minute
		}
		return valid[i].Hour < valid[j].Hour
	})
	return valid
}

// Interval fires at a fixed period.
type Interval struct {
	Every time.Duration
}

func (i Interval) Next(after time.Time) time.Time {
	if i.Every <= 0 {
		return time.Time{}
	}
	return after.Add(i.Every)
}

// Multi fires at the earliest next time of any of its schedules.
type Multi []Schedule

func (m Multi) Next(after time.Time) time.Time {
	var next time.Time
	for _, s := range m {
		if s == nil {
			continue
		}
		candidate := s.Next(after)
		if candidate.IsZero() {
			continue
		}
		if next.IsZero() || candidate.Before(next) {
			next = candidate
		}
	}
	return next
}

// Loop calls fire at every time produced by s until ctx is done. fire runs
// synchronously, so a slow run delays the next check rather than overlapping.
func Loop(ctx context.Context, s Schedule, now func() time.Time, fire func(ctx context.Context, at time.Time)) {
	if s == nil {
		return
	}
	if now == nil {
		now = time.Now
	}
	last := now()
	for {
		next := s.Next(last)
		if next.IsZero() {
			return
		}
		delay := next.Sub(now())
		if delay < 0 {
			delay = 0
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		fire(ctx, next)
		if n := now(); n.After(next) {
			last = n
		} else {
			last = next
		}
	}
}
