package model

import "time"

// Idea is a submitted improvement proposal.
type Idea struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Area        string `json:"area"`
	Impact      Impact `json:"impact"`
	Status      Status `json:"status"`
	// Score is denormalized from the vote documents.
	Score       int       `json:"score"`
	AuthorID    string    `json:"authorId"`
	AuthorName  string    `json:"authorName"`
	AuthorEmail string    `json:"authorEmail,omitempty"`
	ManagerID   *string   `json:"managerId,omitempty"`
	ManagerName *string   `json:"managerName,omitempty"`
	// SearchPrefixes is written on create and edit only.
	SearchPrefixes []string  `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ManagedBy reports whether userID is the assigned manager.
func (i *Idea) ManagedBy(userID string) bool {
	return i.ManagerID != nil && *i.ManagerID == userID
}

// Vote records one committee member's support. Its existence is the vote.
type Vote struct {
	IdeaID    string    `json:"ideaId"`
	UserID    string    `json:"userId"`
	Value     int       `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
}

// Comment is a committee note on an idea.
type Comment struct {
	ID         string    `json:"id"`
	IdeaID     string    `json:"ideaId"`
	Text       string    `json:"text"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	CreatedAt  time.Time `json:"createdAt"`
}

// HistoryKind distinguishes audit entries.
type HistoryKind string

const (
	HistoryStatus     HistoryKind = "status"
	HistoryAssignment HistoryKind = "assignment"
)

// HistoryEntry is an append-only audit record. From and To hold statuses
// for HistoryStatus and manager ids for HistoryAssignment.
type HistoryEntry struct {
	ID        string      `json:"id"`
	IdeaID    string      `json:"ideaId"`
	Kind      HistoryKind `json:"type"`
	From      *string     `json:"from"`
	To        *string     `json:"to"`
	ActorID   string      `json:"byUid"`
	ActorName string      `json:"byName"`
	CreatedAt time.Time   `json:"at"`
}

// Reward is the single award granted to an idea's author.
type Reward struct {
	IdeaID    string    `json:"ideaId"`
	Amount    int       `json:"amount"`
	ToUserID  string    `json:"toUserId"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// Invite grants a role to whoever redeems its code.
type Invite struct {
	Code      string     `json:"code"`
	Role      Role       `json:"role"`
	Email     string     `json:"email,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Used      bool       `json:"used"`
	UsedBy    *string    `json:"usedBy,omitempty"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	CreatedBy string     `json:"createdBy"`
}

// Expired reports whether the invite is past its deadline at now.
func (i *Invite) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// User is a profile document keyed by the identity provider's subject.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Username    string    `json:"username,omitempty"`
	Role        Role      `json:"role"`
	InviteCode  string    `json:"inviteCode,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Name returns the best display label for the user.
func (u *User) Name() string {
	switch {
	case u.DisplayName != "":
		return u.DisplayName
	case u.Username != "":
		return u.Username
	case u.Email != "":
		return u.Email
	}
	return u.ID
}

// StrPtr returns a pointer to a copy of s.
func StrPtr(s string) *string { return &s }
