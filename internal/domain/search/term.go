package search

import (
	"unicode/utf8"

	"github.com/okian/ideabox/internal/domain/textnorm"
)

const (
	// activeMinLen is the shortest term that filters locally.
	activeMinLen = 2
)

// Term is a normalized search string with its derived server-side prefix.
type Term struct {
	Raw        string
	Normalized string
	opts       Options
}

// NewTerm normalizes raw under opts.
func NewTerm(raw string, opts Options) Term {
	return Term{Raw: raw, Normalized: textnorm.Normalize(raw), opts: opts.sanitized()}
}

// Active reports whether the term narrows results at all. Lengths count
// characters, not bytes.
func (t Term) Active() bool {
	return utf8.RuneCountInString(t.Normalized) >= activeMinLen
}

// Prefix returns the value to look up in the prefix index, or "" when the
// term is too short to have been indexed.
func (t Term) Prefix() string {
	runes := []rune(t.Normalized)
	if len(runes) < t.opts.MinLen {
		return ""
	}
	return string(runes[:min(t.opts.MaxLen, len(runes))])
}

// Matches reports whether the idea text contains the term. Inactive terms
// match everything.
func (t Term) Matches(title, description string) bool {
	if !t.Active() {
		return true
	}
	return textnorm.Contains(title+" "+description, t.Normalized)
}
