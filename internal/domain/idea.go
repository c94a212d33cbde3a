package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Idea is a promoted, versioned investment idea. Versions are append-only.
type Idea struct {
	ID              string
	Ticker          string
	Version         int
	RunID           string
	Style           Style
	EdgeTypes       []EdgeType
	Headline        string
	Hypothesis      string
	Mechanism       string
	Signposts       []string
	Catalysts       []string
	Score           ScoreComponents
	RankScore       float64
	Rank            int
	Quintile        int
	NoveltyScore    float64
	Exploration     bool
	Threshold       float64
	Margin          float64
	Gates           GateOutcome
	CreatedAt       time.Time
	IntegritySHA256 string
}

func (i Idea) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return errors.New("idea id is required")
	}
	if strings.TrimSpace(i.Ticker) == "" {
		return errors.New("ticker is required")
	}
	if strings.TrimSpace(i.RunID) == "" {
		return errors.New("run id is required")
	}
	if !i.Style.Valid() {
		return fmt.Errorf("invalid style %q", i.Style)
	}
	if i.Version < 0 {
		return errors.New("version must be >= 0")
	}
	return nil
}

// ComputeIntegrity hashes the idea content, excluding storage-assigned fields.
func (i Idea) ComputeIntegrity() (string, error) {
	type integrityInput struct {
		Ticker     string          `json:"ticker"`
		RunID      string          `json:"run_id"`
		Style      Style           `json:"style"`
		EdgeTypes  []EdgeType      `json:"edge_types"`
		Headline   string          `json:"headline"`
		Hypothesis string          `json:"hypothesis"`
		Mechanism  string          `json:"mechanism"`
		Score      ScoreComponents `json:"score"`
		RankScore  float64         `json:"rank_score"`
		Threshold  float64         `json:"threshold"`
		Gates      GateOutcome     `json:"gates"`
	}
	blob, err := json.Marshal(integrityInput{
		Ticker:     i.Ticker,
		RunID:      i.RunID,
		Style:      i.Style,
		EdgeTypes:  i.EdgeTypes,
		Headline:   i.Headline,
		Hypothesis: i.Hypothesis,
		Mechanism:  i.Mechanism,
		Score:      i.Score,
		RankScore:  i.RankScore,
		Threshold:  i.Threshold,
		Gates:      i.Gates,
	})
	if err != nil {
		return "", fmt.Errorf("marshal idea: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

// EnsureIdeaImmutable rejects any change to a stored idea version.
func EnsureIdeaImmutable(before, after Idea) error {
	if before.ID == "" || after.ID == "" {
		return errors.New("idea ids are required")
	}
	if before.ID != after.ID {
		return fmt.Errorf("idea id changed from %q to %q", before.ID, after.ID)
	}
	if before.Ticker != after.Ticker {
		return errors.New("ticker is immutable")
	}
	if before.Version != after.Version {
		return errors.New("version is immutable")
	}
	if before.IntegritySHA256 != after.IntegritySHA256 {
		return errors.New("idea content is immutable")
	}
	return nil
}

// ResearchPacket is the Lane B deep-research output for one idea version.
type ResearchPacket struct {
	IdeaID      string         `json:"idea_id"`
	Ticker      string         `json:"ticker"`
	IdeaVersion int            `json:"idea_version"`
	RunID       string         `json:"run_id"`
	Model       string         `json:"model"`
	Body        string         `json:"body"`
	Coverage    SourceCoverage `json:"coverage"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ObjectKey is the storage key of the packet.
func (p ResearchPacket) ObjectKey() string {
	return fmt.Sprintf("packets/%s/v%d/%s.json", p.Ticker, p.IdeaVersion, p.RunID)
}

// PacketRef points at a stored packet.
type PacketRef struct {
	IdeaID string
	Ticker string
	Key    string
	ETag   string
}
