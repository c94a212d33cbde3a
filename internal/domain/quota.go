package domain

import "time"

// QuotaState is the promotion count for the current day and ISO week.
type QuotaState struct {
	WeekStart     time.Time
	Day           time.Time
	DailyTotal    int
	WeeklyTotal   int
	WeeklyByStyle map[Style]int
}

// SharePct is the style's share of this week's promotions in percentage points.
func (q QuotaState) SharePct(style Style) float64 {
	if q.WeeklyTotal <= 0 {
		return 0
	}
	return float64(q.WeeklyByStyle[style]) / float64(q.WeeklyTotal) * 100
}

func (q QuotaState) Clone() QuotaState {
	out := q
	out.WeeklyByStyle = make(map[Style]int, len(q.WeeklyByStyle))
	for k, v := range q.WeeklyByStyle {
		out.WeeklyByStyle[k] = v
	}
	return out
}

// Increment records one promotion of style.
func (q *QuotaState) Increment(style Style) {
	if q.WeeklyByStyle == nil {
		q.WeeklyByStyle = map[Style]int{}
	}
	q.DailyTotal++
	q.WeeklyTotal++
	q.WeeklyByStyle[style]++
}

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekStart returns the Monday of t's ISO week at midnight UTC.
func WeekStart(t time.Time) time.Time {
	day := DayStart(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
