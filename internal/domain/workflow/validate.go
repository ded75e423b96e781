package workflow

import (
	"slices"
	"strings"
	"unicode/utf8"
)

// Input limits.
const (
	MinTitleLen       = 3
	MaxTitleLen       = 140
	MinDescriptionLen = 10
	MaxDescriptionLen = 5000
	MaxCommentLen     = 2000
	MinDisplayNameLen = 3
	MaxDisplayNameLen = 80
	MinInviteDays     = 1
	MaxInviteDays     = 60
)

// IdeaInput is the author-editable part of an idea.
type IdeaInput struct {
	Title       string
	Description string
	Area        string
	Impact      string
}

// Normalized trims every field.
func (in IdeaInput) Normalized() IdeaInput {
	return IdeaInput{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Area:        strings.TrimSpace(in.Area),
		Impact:      strings.TrimSpace(in.Impact),
	}
}

// ValidateIdea checks an already normalized input against the allowed areas.
func ValidateIdea(in IdeaInput, areas []string) error {
	v := &ValidationError{}
	switch n := utf8.RuneCountInString(in.Title); {
	case n < MinTitleLen:
		v.add("title", "must have at least 3 characters")
	case n > MaxTitleLen:
		v.add("title", "is too long")
	}
	switch n := utf8.RuneCountInString(in.Description); {
	case n < MinDescriptionLen:
		v.add("description", "must have at least 10 characters")
	case n > MaxDescriptionLen:
		v.add("description", "is too long")
	}
	if in.Area == "" {
		v.add("area", "is required")
	} else if !slices.Contains(areas, in.Area) {
		v.add("area", "is not a known area")
	}
	switch strings.ToLower(in.Impact) {
	case "", "low", "medium", "high":
	default:
		v.add("impact", "must be low, medium or high")
	}
	return v.orNil()
}

// ValidateRewardAmount requires a positive whole amount.
func ValidateRewardAmount(amount int) error {
	if amount <= 0 {
		v := &ValidationError{}
		v.add("amount", "must be a positive integer")
		return v
	}
	return nil
}

// ValidateComment returns the trimmed text or a validation error.
func ValidateComment(text string) (string, error) {
	text = strings.TrimSpace(text)
	v := &ValidationError{}
	switch n := utf8.RuneCountInString(text); {
	case n == 0:
		v.add("text", "is required")
	case n > MaxCommentLen:
		v.add("text", "is too long")
	}
	return text, v.orNil()
}

// ValidateDisplayName returns the trimmed name or a validation error.
func ValidateDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	v := &ValidationError{}
	switch n := utf8.RuneCountInString(name); {
	case n < MinDisplayNameLen:
		v.add("displayName", "must have at least 3 characters")
	case n > MaxDisplayNameLen:
		v.add("displayName", "is too long")
	}
	return name, v.orNil()
}

// ClampInviteDays keeps an invite validity inside [MinInviteDays, MaxInviteDays];
// zero selects def.
func ClampInviteDays(days, def int) int {
	if days == 0 {
		days = def
	}
	return max(MinInviteDays, min(MaxInviteDays, days))
}
