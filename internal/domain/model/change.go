package model

import (
	"time"

	"github.com/google/uuid"
)

// Collection names a family of stored documents.
type Collection string

const (
	CollectionIdeas    Collection = "ideas"
	CollectionVotes    Collection = "votes"
	CollectionComments Collection = "comments"
	CollectionHistory  Collection = "history"
	CollectionRewards  Collection = "rewards"
	CollectionInvites  Collection = "invites"
	CollectionUsers    Collection = "users"
)

// Op is the kind of write a Change reports.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change describes one committed write. ID is unique per write so that
// changes relayed between instances can be deduplicated.
type Change struct {
	ID         string     `json:"id"`
	Collection Collection `json:"collection"`
	IdeaID     string     `json:"ideaId,omitempty"`
	DocID      string     `json:"docId"`
	Op         Op         `json:"op"`
	Origin     string     `json:"origin,omitempty"`
	At         time.Time  `json:"at"`
}

// NewChange stamps a change with a fresh id and the current time.
func NewChange(c Collection, ideaID, docID string, op Op) Change {
	return Change{
		ID:         uuid.NewString(),
		Collection: c,
		IdeaID:     ideaID,
		DocID:      docID,
		Op:         op,
		At:         time.Now().UTC(),
	}
}

// AffectsIdeaLists reports whether list queries over ideas may change.
func (c Change) AffectsIdeaLists() bool {
	return c.Collection == CollectionIdeas
}
