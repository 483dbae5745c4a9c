package recurrence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Frequency represents supported recurrence intervals.
type Frequency string

const (
	// FrequencyDaily steps one calendar day at a time.
	FrequencyDaily Frequency = "daily"
	// FrequencyWeekly repeats the selected weekdays every week.
	FrequencyWeekly Frequency = "weekly"
	// FrequencyBiweekly repeats the selected weekdays every other week.
	FrequencyBiweekly Frequency = "biweekly"
	// FrequencyMonthly repeats on the anchor's day of month.
	FrequencyMonthly Frequency = "monthly"
)

// ParseFrequency converts user input into a Frequency.
func ParseFrequency(value string) (Frequency, error) {
	switch Frequency(strings.ToLower(strings.TrimSpace(value))) {
	case FrequencyDaily:
		return FrequencyDaily, nil
	case FrequencyWeekly:
		return FrequencyWeekly, nil
	case FrequencyBiweekly:
		return FrequencyBiweekly, nil
	case FrequencyMonthly:
		return FrequencyMonthly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, value)
	}
}

// Rule describes how a series repeats. It is immutable once expanded.
type Rule struct {
	Frequency Frequency      `json:"type"`
	Weekdays  []time.Weekday `json:"weekdays,omitempty"`
	Until     *time.Time     `json:"until,omitempty"`
	Count     int            `json:"count,omitempty"`
}

// Validate reports the first structural problem found in the rule.
func (r Rule) Validate() error {
	if _, err := ParseFrequency(string(r.Frequency)); err != nil {
		return err
	}
	for _, day := range r.Weekdays {
		if day < time.Sunday || day > time.Saturday {
			return fmt.Errorf("%w: %d", ErrInvalidWeekday, int(day))
		}
	}
	if r.Count < 0 {
		return ErrInvalidCount
	}
	return nil
}

// Encode serializes the rule for storage on a series head.
func (r Rule) Encode() (string, error) {
	if r.Until != nil {
		until := r.Until.UTC()
		r.Until = &until
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("recurrence: encode rule: %w", err)
	}
	return string(payload), nil
}

// DecodeRule parses a rule previously produced by Encode.
func DecodeRule(raw string) (Rule, error) {
	var rule Rule
	if err := json.Unmarshal([]byte(raw), &rule); err != nil {
		return Rule{}, fmt.Errorf("recurrence: decode rule: %w", err)
	}
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}
