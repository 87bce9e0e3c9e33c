package model

import (
	"fmt"
	"strings"
)

// Status is the review status of a submission.
type Status string

const (
	StatusNew           Status = "new"
	StatusInvestigating Status = "investigating"
	StatusFixed         Status = "fixed"
	StatusWontFix       Status = "wontfix"
	StatusDuplicate     Status = "duplicate"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusNew, StatusInvestigating, StatusFixed, StatusWontFix, StatusDuplicate}

// Valid reports whether s is one of the five review statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Open reports whether the submission still needs attention (new or investigating).
func (s Status) Open() bool {
	return s == StatusNew || s == StatusInvestigating
}

// ParseStatus converts a string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("invalid status %q (want one of new, investigating, fixed, wontfix, duplicate)", s)
	}
	return st, nil
}

// ParseStatusList parses a comma-separated status list such as "new,investigating".
// An empty string yields a nil slice (no restriction).
func ParseStatusList(csv string) ([]Status, error) {
	if strings.TrimSpace(csv) == "" {
		return nil, nil
	}
	var out []Status
	for _, part := range strings.Split(csv, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		st, err := ParseStatus(part)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
