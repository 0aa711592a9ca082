package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	UnitMinutes = "minutes"
	UnitHours   = "hours"
	UnitDays    = "days"
	UnitWeeks   = "weeks"
	UnitMonths  = "months"
	UnitYears   = "years"
)

// Span is a calendar-aware amount of time such as "6 months" or "2 minutes".
type Span struct {
	Value int    `yaml:"value" validate:"min=0"`
	Unit  string `yaml:"unit" validate:"oneof=minutes hours days weeks months years"`
}

// IsZero reports whether the span was left unset.
func (s Span) IsZero() bool {
	return s.Value == 0 && s.Unit == ""
}

// Before returns t moved back by the span. Days and larger units use calendar arithmetic.
func (s Span) Before(t time.Time) time.Time {
	switch s.Unit {
	case UnitMinutes:
		return t.Add(-time.Duration(s.Value) * time.Minute)
	case UnitHours:
		return t.Add(-time.Duration(s.Value) * time.Hour)
	case UnitDays:
		return t.AddDate(0, 0, -s.Value)
	case UnitWeeks:
		return t.AddDate(0, 0, -7*s.Value)
	case UnitMonths:
		return t.AddDate(0, -s.Value, 0)
	case UnitYears:
		return t.AddDate(-s.Value, 0, 0)
	default:
		return t
	}
}

func (s Span) String() string {
	unit := s.Unit
	if s.Value == 1 {
		unit = strings.TrimSuffix(unit, "s")
	}
	return fmt.Sprintf("%d %s", s.Value, unit)
}

// normalizeUnit accepts singular and mixed-case units ("Month", "minute").
func normalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	if u == "" {
		return u
	}
	return strings.TrimSuffix(u, "s") + "s"
}
