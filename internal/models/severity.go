package models

import "fmt"

// SeverityLevel describes how urgently a case should reach a human expert.
type SeverityLevel string

const (
	SeverityGreen  SeverityLevel = "green"
	SeverityYellow SeverityLevel = "yellow"
	SeverityRed    SeverityLevel = "red"
)

// Urgency is the lead-facing rendering of a SeverityLevel.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// ParseSeverity accepts exactly "green", "yellow" or "red".
func ParseSeverity(s string) (SeverityLevel, error) {
	if l := SeverityLevel(s); l.Valid() {
		return l, nil
	}
	return "", fmt.Errorf("unknown severity level %q", s)
}

// Valid reports whether l is one of the three levels.
func (l SeverityLevel) Valid() bool {
	switch l {
	case SeverityGreen, SeverityYellow, SeverityRed:
		return true
	}
	return false
}

func (l SeverityLevel) rank() int {
	switch l {
	case SeverityRed:
		return 2
	case SeverityYellow:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether l is as severe as other or more.
func (l SeverityLevel) AtLeast(other SeverityLevel) bool {
	return l.rank() >= other.rank()
}

// MaxSeverity returns the most severe of the given levels, green when empty.
func MaxSeverity(levels ...SeverityLevel) SeverityLevel {
	out := SeverityGreen
	for _, l := range levels {
		if l.rank() > out.rank() {
			out = l
		}
	}
	return out
}

// Urgency maps red->high, yellow->medium and anything else to low.
func (l SeverityLevel) Urgency() Urgency {
	switch l {
	case SeverityRed:
		return UrgencyHigh
	case SeverityYellow:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}
