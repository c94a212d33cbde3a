package schedule

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/arc-research/arc-pipeline/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDailyAtNext(t *testing.T) {
	monday := time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		sched DailyAt
		after time.Time
		want  time.Time
	}{
		{
			name:  "earliest time same day",
			sched: DailyAt{Times: []ClockTime{{14, 30}, {2, 0}}},
			after: monday.Add(time.Hour),
			want:  monday.Add(2 * time.Hour),
		},
		{
			name:  "exact time is not repeated",
			sched: DailyAt{Times: []ClockTime{{2, 0}, {14, 30}}},
			after: monday.Add(2 * time.Hour),
			want:  monday.Add(14*time.Hour + 30*time.Minute),
		},
		{
			name:  "rolls to next day",
			sched: DailyAt{Times: []ClockTime{{2, 0}}},
			after: monday.Add(23 * time.Hour),
			want:  monday.AddDate(0, 0, 1).Add(2 * time.Hour),
		},
		{
			name:  "weekday filter",
			sched: DailyAt{Times: []ClockTime{{9, 0}}, Weekdays: []time.Weekday{time.Saturday}},
			after: monday,
			want:  monday.AddDate(0, 0, 5).Add(9 * time.Hour),
		},
		{
			name:  "same weekday next week",
			sched: DailyAt{Times: []ClockTime{{2, 0}}, Weekdays: []time.Weekday{time.Monday}},
			after: monday.Add(3 * time.Hour),
			want:  monday.AddDate(0, 0, 7).Add(2 * time.Hour),
		},
		{
			name:  "invalid times never fire",
			sched: DailyAt{Times: []ClockTime{{25, 0}}},
			after: monday,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.sched.Next(tc.after); !got.Equal(tc.want) {
				t.Fatalf("Next()=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestMultiPicksEarliest(t *testing.T) {
	after := time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC)
	m := Multi{nil, Interval{Every: time.Hour}, DailyAt{Times: []ClockTime{{0, 30}}}, Interval{}}
	if got := m.Next(after); !got.Equal(after.Add(30 * time.Minute)) {
		t.Fatalf("Next()=%v", got)
	}
	if got := (Multi{}).Next(after); !got.IsZero() {
		t.Fatalf("empty multi fired at %v", got)
	}
}

func TestParseClock(t *testing.T) {
	if c, err := ParseClock(" 06:30 "); err != nil || c != (ClockTime{6, 30}) {
		t.Fatalf("ParseClock()=%v, %v", c, err)
	}
	for _, raw := range []string{"6", "24:00", "aa:bb", "12:60"} {
		if _, err := ParseClock(raw); err == nil {
			t.Fatalf("ParseClock(%q) expected error", raw)
		}
	}
}

func TestConfigBuild(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.Runs[domain.RunMaintenance] = Spec{}
	scheds, err := cfg.Build()
	if err != nil {
		t.Fatalf("Build() err=%v", err)
	}
	if _, ok := scheds[domain.RunMaintenance]; ok {
		t.Fatalf("empty spec must disable the schedule")
	}
	friday := time.Date(2026, time.October, 23, 7, 0, 0, 0, time.UTC)
	got := scheds[domain.RunLaneADaily].Next(friday)
	if want := time.Date(2026, time.October, 26, 6, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("lane A after Friday run = %v, want %v", got, want)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Timezone: "Mars/Olympus", Runs: map[domain.RunType]Spec{
		domain.RunLaneADaily: {At: []string{"6pm"}},
		"hourly":             {At: []string{"01:00"}},
	}}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"timezone", "6pm", "hourly"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

func TestLoopFiresUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var (
		mu    sync.Mutex
		fired []time.Time
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Loop(ctx, Interval{Every: 5 * time.Millisecond}, nil, func(ctx context.Context, at time.Time) {
			mu.Lock()
			fired = append(fired, at)
			n := len(fired)
			mu.Unlock()
			if n == 3 {
				cancel()
			}
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatalf("loop did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 3 {
		t.Fatalf("fired %d times, want 3", len(fired))
	}
	for i := 1; i < len(fired); i++ {
		if !fired[i].After(fired[i-1]) {
			t.Fatalf("fire times not increasing: %v", fired)
		}
	}
}

func TestLoopStopsWhenScheduleEnds(t *testing.T) {
	calls := 0
	Loop(context.Background(), DailyAt{}, nil, func(context.Context, time.Time) { calls++ })
	if calls != 0 {
		t.Fatalf("calls=%d", calls)
	}
}
