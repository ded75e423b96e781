// Package model defines the domain records shared by every layer.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStatus is returned when a status string is not part of the lifecycle.
var ErrUnknownStatus = errors.New("unknown status")

// ErrUnknownRole is returned when a role string is not recognized.
var ErrUnknownRole = errors.New("unknown role")

// Status is the lifecycle position of an idea.
type Status string

const (
	StatusNew         Status = "new"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusRejected    Status = "rejected"
)

// StatusOrder is the canonical order used for grouped listings.
var StatusOrder = []Status{
	StatusNew,
	StatusUnderReview,
	StatusApproved,
	StatusInProgress,
	StatusCompleted,
	StatusRejected,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range StatusOrder {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus accepts a status string in any case.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return s, nil
}

// Role is the authorization level of a session.
type Role string

const (
	RoleGuest     Role = "guest"
	RoleUser      Role = "user"
	RoleCommittee Role = "committee"
)

// IsCommittee reports whether r may triage ideas.
func (r Role) IsCommittee() bool { return r == RoleCommittee }

// ParseRole maps a stored role string; empty means RoleUser.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case "", RoleUser:
		return RoleUser, nil
	case RoleCommittee:
		return RoleCommittee, nil
	case RoleGuest:
		return RoleGuest, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
}

// Impact is the author's estimate of an idea's effect.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// ParseImpact defaults empty input to ImpactMedium.
func ParseImpact(raw string) (Impact, bool) {
	switch Impact(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ImpactMedium:
		return ImpactMedium, true
	case ImpactLow:
		return ImpactLow, true
	case ImpactHigh:
		return ImpactHigh, true
	}
	return "", false
}

// DefaultAreas lists the areas an idea can target unless configured otherwise.
var DefaultAreas = []string{"safety", "quality", "productivity", "cost", "ergonomics"}
