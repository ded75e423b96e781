package model

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrBadCursor is returned for cursors that were not produced by Cursor.Encode.
var ErrBadCursor = errors.New("malformed cursor")

// Cursor is the position after which the next page starts. Pages are ordered
// by CreatedAt desc, then ID desc.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorOf returns the cursor positioned at idea.
func CursorOf(idea *Idea) *Cursor {
	return &Cursor{CreatedAt: idea.CreatedAt, ID: idea.ID}
}

// Before reports whether idea sorts strictly after the cursor position,
// i.e. belongs to a later page.
func (c *Cursor) Before(idea *Idea) bool {
	if !idea.CreatedAt.Equal(c.CreatedAt) {
		return idea.CreatedAt.Before(c.CreatedAt)
	}
	return idea.ID < c.ID
}

// Encode returns an opaque token safe for URLs.
func (c *Cursor) Encode() string {
	raw := fmt.Sprintf("%d|%s", c.CreatedAt.UnixNano(), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token from Encode. An empty token yields nil.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	nanos, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, ErrBadCursor
	}
	var n int64
	if _, err := fmt.Sscanf(nanos, "%d", &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	return &Cursor{CreatedAt: time.Unix(0, n).UTC(), ID: id}, nil
}

// IdeaFilter holds the equality filters shared by every idea query.
type IdeaFilter struct {
	Status    Status
	Area      string
	ManagerID string
	AuthorID  string
	// UpdatedSince, when set, keeps ideas with UpdatedAt >= UpdatedSince.
	UpdatedSince *time.Time
}

// Empty reports whether no equality filter is set.
func (f IdeaFilter) Empty() bool {
	return f.Status == "" && f.Area == "" && f.ManagerID == "" && f.AuthorID == "" && f.UpdatedSince == nil
}

// Match applies the filter to one idea.
func (f IdeaFilter) Match(idea *Idea) bool {
	switch {
	case f.Status != "" && idea.Status != f.Status:
		return false
	case f.Area != "" && idea.Area != f.Area:
		return false
	case f.ManagerID != "" && !idea.ManagedBy(f.ManagerID):
		return false
	case f.AuthorID != "" && idea.AuthorID != f.AuthorID:
		return false
	case f.UpdatedSince != nil && idea.UpdatedAt.Before(*f.UpdatedSince):
		return false
	}
	return true
}

// IdeaQuery selects one page of ideas.
type IdeaQuery struct {
	IdeaFilter
	// Prefix, when set, requires it to be one of the idea's SearchPrefixes.
	Prefix string
	After  *Cursor
	Limit  int
}

// Match applies filters and prefix, ignoring pagination.
func (q IdeaQuery) Match(idea *Idea) bool {
	if !q.IdeaFilter.Match(idea) {
		return false
	}
	if q.Prefix == "" {
		return true
	}
	for _, p := range idea.SearchPrefixes {
		if p == q.Prefix {
			return true
		}
	}
	return false
}

// IdeaPage is one page of results. Next is set only when the page was full.
type IdeaPage struct {
	Items []Idea
	Next  *Cursor
}

// Full reports whether another page may follow.
func (p IdeaPage) Full() bool { return p.Next != nil }

// Snapshot is one delivery of a live query: the current first page or the
// error that ended the subscription.
type Snapshot struct {
	Page IdeaPage
	Err  error
}
