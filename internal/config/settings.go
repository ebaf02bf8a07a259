// Package config defines the strongly-typed league settings that govern
// trading rules, drafting, and the competition window. Settings are parsed
// and validated once at the API boundary and stored as a JSON document;
// handlers only ever see the validated struct.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Competition periods.
const (
	Period1Week   = "1_week"
	Period2Weeks  = "2_weeks"
	Period1Month  = "1_month"
	Period3Months = "3_months"
	Period6Months = "6_months"
	Period1Year   = "1_year"
)

// Scoring methods.
const (
	ScoreTotalReturn  = "Total Return %"
	ScoreAbsoluteGain = "Absolute Gain $"
)

// Group lifecycle statuses, derived from settings and wall-clock time.
// Never persisted.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusCompleted = "completed"
)

var (
	ErrInvalidPeriod  = errors.New("config: unknown competition period")
	ErrInvalidScoring = errors.New("config: unknown scoring method")
	ErrInvalidClass   = errors.New("config: unknown asset class")
)

var validClasses = map[string]bool{
	"Stock":     true,
	"ETF":       true,
	"Commodity": true,
	"REIT":      true,
}

// Settings is the validated per-league configuration.
type Settings struct {
	GroupSize           int       `json:"group_size"`
	StartingBalance     float64   `json:"starting_balance"`
	CompetitionPeriod   string    `json:"competition_period"`
	StartDate           time.Time `json:"start_date"`
	ScoringMethod       string    `json:"scoring_method"`
	EnabledAssetClasses []string  `json:"enabled_asset_classes"`
	MinAssetPrice       float64   `json:"min_asset_price"`
	AllowShortSelling   bool      `json:"allow_short_selling"`
	TradingEnabled      bool      `json:"trading_enabled"`
	PortfolioSize       int       `json:"portfolio_size"`
	ActiveSlots         int       `json:"active_slots"`
	BenchSlots          int       `json:"bench_slots"`
	DraftTimePerPick    int       `json:"draft_time_per_pick"` // seconds
}

// Default fills unset fields with the product defaults.
func Default() Settings {
	return Settings{
		GroupSize:           8,
		StartingBalance:     10000,
		CompetitionPeriod:   Period1Month,
		ScoringMethod:       ScoreTotalReturn,
		EnabledAssetClasses: []string{"Stock", "ETF", "Commodity", "REIT"},
		MinAssetPrice:       1,
		TradingEnabled:      true,
		PortfolioSize:       8,
		ActiveSlots:         5,
		BenchSlots:          3,
		DraftTimePerPick:    60,
	}
}

// Validate checks ranges and enumerations. Returned errors carry field detail
// suitable for a 400 response.
func (s *Settings) Validate() error {
	if s.GroupSize < 2 || s.GroupSize > 20 {
		return fmt.Errorf("config: group_size must be between 2 and 20, got %d", s.GroupSize)
	}
	if s.StartingBalance < 1000 || s.StartingBalance > 1000000 {
		return fmt.Errorf("config: starting_balance must be between 1000 and 1000000, got %v", s.StartingBalance)
	}
	if _, err := s.periodDuration(); err != nil {
		return err
	}
	if s.ScoringMethod != ScoreTotalReturn && s.ScoringMethod != ScoreAbsoluteGain {
		return fmt.Errorf("%w: %q", ErrInvalidScoring, s.ScoringMethod)
	}
	for _, c := range s.EnabledAssetClasses {
		if !validClasses[c] {
			return fmt.Errorf("%w: %q", ErrInvalidClass, c)
		}
	}
	if s.MinAssetPrice < 0 {
		return fmt.Errorf("config: min_asset_price must be >= 0, got %v", s.MinAssetPrice)
	}
	if s.PortfolioSize < 1 {
		return fmt.Errorf("config: portfolio_size must be >= 1, got %d", s.PortfolioSize)
	}
	if s.ActiveSlots < 0 || s.BenchSlots < 0 {
		return errors.New("config: slot counts must be >= 0")
	}
	if s.DraftTimePerPick <= 0 {
		s.DraftTimePerPick = 60
	}
	return nil
}

// Parse decodes and validates a stored settings document.
func Parse(raw []byte) (Settings, error) {
	s := Default()
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("config: decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Encode serializes validated settings for storage.
func (s *Settings) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// ClassEnabled reports whether the asset class may be traded in this league.
// An empty list means all classes are allowed.
func (s *Settings) ClassEnabled(class string) bool {
	if len(s.EnabledAssetClasses) == 0 {
		return true
	}
	for _, c := range s.EnabledAssetClasses {
		if c == class {
			return true
		}
	}
	return false
}

func (s *Settings) periodDuration() (time.Duration, error) {
	switch s.CompetitionPeriod {
	case Period1Week:
		return 7 * 24 * time.Hour, nil
	case Period2Weeks:
		return 14 * 24 * time.Hour, nil
	case Period1Month:
		return 30 * 24 * time.Hour, nil
	case Period3Months:
		return 91 * 24 * time.Hour, nil
	case Period6Months:
		return 182 * 24 * time.Hour, nil
	case Period1Year:
		return 365 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPeriod, s.CompetitionPeriod)
}

// EndDate returns the end of the competition window.
func (s *Settings) EndDate() time.Time {
	d, err := s.periodDuration()
	if err != nil {
		return s.StartDate
	}
	return s.StartDate.Add(d)
}

// Status derives the league lifecycle phase from the configured window and
// the given clock reading. Status is never stored, so it cannot drift.
func (s *Settings) Status(now time.Time) string {
	if s.StartDate.IsZero() {
		return StatusPending
	}
	switch {
	case !now.Before(s.EndDate()):
		return StatusCompleted
	case !now.Before(s.StartDate):
		return StatusActive
	default:
		return StatusPending
	}
}

// CompetitionWeeks returns the length of the competition window in whole
// weeks, minimum 1. This is the number of head-to-head matchup weeks.
func (s *Settings) CompetitionWeeks() int {
	d, err := s.periodDuration()
	if err != nil {
		return 1
	}
	weeks := int(d / (7 * 24 * time.Hour))
	if weeks < 1 {
		weeks = 1
	}
	return weeks
}

// TotalDraftRounds returns the number of snake-draft rounds needed to fill
// each portfolio: ceil(portfolioSize / members).
func (s *Settings) TotalDraftRounds(members int) int {
	if members <= 0 {
		return 0
	}
	return (s.PortfolioSize + members - 1) / members
}
