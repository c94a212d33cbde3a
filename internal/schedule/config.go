package schedule

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/arc-research/arc-pipeline/internal/domain"
	"github.com/arc-research/arc-pipeline/internal/platform/validation"
)

// Spec is the file form of one run type's schedule. An empty At disables it.
type Spec struct {
	At       []string `yaml:"at"`
	Weekdays []string `yaml:"weekdays,omitempty"`
}

type Config struct {
	Timezone string                  `yaml:"timezone"`
	Runs     map[domain.RunType]Spec `yaml:"runs"`
}

func DefaultConfig() Config {
	return Config{
		Timezone: "America/New_York",
		Runs: map[domain.RunType]Spec{
			domain.RunLaneADaily:  {At: []string{"06:30"}, Weekdays: []string{"mon", "tue", "wed", "thu", "fri"}},
			domain.RunLaneBWeekly: {At: []string{"09:00"}, Weekdays: []string{"sat"}},
			domain.RunMaintenance: {At: []string{"03:00"}, Weekdays: []string{"sun"}},
		},
	}
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func ParseWeekday(raw string) (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", raw)
	}
	return d, nil
}

func (s Spec) build(loc *time.Location) (Schedule, error) {
	if len(s.At) == 0 {
		return nil, nil
	}
	d := DailyAt{Location: loc}
	for _, raw := range s.At {
		c, err := ParseClock(raw)
		if err != nil {
			return nil, err
		}
		d.Times = append(d.Times, c)
	}
	for _, raw := range s.Weekdays {
		wd, err := ParseWeekday(raw)
		if err != nil {
			return nil, err
		}
		d.Weekdays = append(d.Weekdays, wd)
	}
	return d, nil
}

func (c Config) location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) Validate() error {
	v := validation.New("schedule config")
	loc, err := c.location()
	if err != nil {
		v.Add("schedule.timezone: " + err.Error())
		loc = time.UTC
	}
	for runType, spec := range c.Runs {
		if _, err := domain.ParseRunType(string(runType)); err != nil {
			v.Addf("schedule.runs: %v", err)
			continue
		}
		if _, err := spec.build(loc); err != nil {
			v.Addf("schedule.runs.%s: %v", runType, err)
		}
	}
	return v.OrNil()
}

// Build returns the enabled schedule of every run type.
func (c Config) Build() (map[domain.RunType]Schedule, error) {
	loc, err := c.location()
	if err != nil {
		return nil, err
	}
	out := make(map[domain.RunType]Schedule, len(c.Runs))
	for runType, spec := range c.Runs {
		s, err := spec.build(loc)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", runType, err)
		}
		if s != nil {
			out[runType] = s
		}
	}
	return out, nil
}
