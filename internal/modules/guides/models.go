package guides

import (
	"fmt"
	"strings"
	"time"
)

// Guide is a named, versioned rule-set used to align AI decisions with a
// declared strategy. A guide version is immutable once written: updates
// create the next version, and retirement deactivates rather than
// deletes, so every historical decision can still be traced to the exact
// rules it was checked against.
type Guide struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Version       int       `json:"version"`
	HardRules     []string  `json:"hard_rules"`
	SoftRules     []string  `json:"soft_rules"`
	Disqualifiers []string  `json:"disqualifiers"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Validate checks guide fields before persistence
func (g *Guide) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return fmt.Errorf("guide name is required")
	}
	if len(g.HardRules) == 0 {
		return fmt.Errorf("guide %q needs at least one hard rule", g.Name)
	}
	for _, rule := range g.HardRules {
		if strings.TrimSpace(rule) == "" {
			return fmt.Errorf("guide %q has an empty hard rule", g.Name)
		}
	}
	return nil
}

// Evaluation is the result of matching observed signals against a guide
type Evaluation struct {
	GuideName            string   `json:"guide_name"`
	GuideVersion         int      `json:"guide_version"`
	Allowed              bool     `json:"allowed"`
	UnmetHardRules       []string `json:"unmet_hard_rules"`
	MatchedSoftRules     []string `json:"matched_soft_rules"`
	PresentDisqualifiers []string `json:"present_disqualifiers"`
	Reason               string   `json:"reason,omitempty"`
}
