package domain

import (
	"fmt"
	"strings"
	"time"
)

type RunType string

const (
	RunLaneADaily  RunType = "lane_a_daily"
	RunLaneBWeekly RunType = "lane_b_weekly"
	RunMaintenance RunType = "maintenance"
)

func ParseRunType(raw string) (RunType, error) {
	switch RunType(strings.ToLower(strings.TrimSpace(raw))) {
	case RunLaneADaily, "lane_a", "daily":
		return RunLaneADaily, nil
	case RunLaneBWeekly, "lane_b", "weekly":
		return RunLaneBWeekly, nil
	case RunMaintenance:
		return RunMaintenance, nil
	default:
		return "", fmt.Errorf("unknown run type %q", raw)
	}
}

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type RunRecord struct {
	ID        string
	Type      RunType
	AsOf      time.Time
	Status    RunStatus
	StartedAt time.Time
	EndedAt   *time.Time
	Error     string
	Stats     Metadata
}
