// Package ranking aggregates rewards into a leaderboard of authors.
package ranking

import (
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
)

var (
	// ErrNotFound is returned by Rank for users without rewards.
	ErrNotFound = errors.New("not ranked")
	// ErrInvalidLimit is returned by TopN for n < 1.
	ErrInvalidLimit = errors.New("invalid limit")
)

// Entry is one author on the board.
type Entry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Coins  int    `json:"coins"`
	Count  int    `json:"count"`
}

// Board is a treap ordered by coins desc, count desc, name asc, then user
// id asc. In-order traversal yields the leaderboard from best to worst.
type Board struct {
	mu   sync.RWMutex
	root *node
	byID map[string]Entry
}

type node struct {
	key   Entry
	prio  uint64
	left  *node
	right *node
	size  int
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{byID: make(map[string]Entry)}
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether a ranks before b.
func less(a, b *Entry) bool {
	if a.Coins != b.Coins {
		return a.Coins > b.Coins
	}
	if a.Count != b.Count {
		return a.Count > b.Count
	}
	if an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name); an != bn {
		return an < bn
	}
	return a.UserID < b.UserID
}

// ahead reports whether a strictly outranks b, ignoring names.
func ahead(a, b *Entry) bool {
	if a.Coins != b.Coins {
		return a.Coins > b.Coins
	}
	return a.Count > b.Count
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, key Entry) *node {
	if n == nil {
		return &node{key: key, prio: rand.Uint64(), size: 1}
	}
	if less(&key, &n.key) {
		n.left = insert(n.left, key)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, key)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func remove(n *node, key Entry) *node {
	if n == nil {
		return nil
	}
	switch {
	case n.key.UserID == key.UserID:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = remove(n.right, key)
		} else {
			n = rotateLeft(n)
			n.left = remove(n.left, key)
		}
	case less(&key, &n.key):
		n.left = remove(n.left, key)
	default:
		n.right = remove(n.right, key)
	}
	fix(n)
	return n
}

// countAhead returns how many entries strictly outrank key on coins and count.
func countAhead(n *node, key *Entry) int {
	total := 0
	for n != nil {
		if ahead(&n.key, key) {
			total += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return total
}

func collect(n *node, limit int, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collect(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n.key)
	}
	collect(n.right, limit, out)
}

func (b *Board) replace(e Entry) {
	if old, ok := b.byID[e.UserID]; ok {
		b.root = remove(b.root, old)
	}
	b.byID[e.UserID] = e
	b.root = insert(b.root, e)
}

// Award adds one reward of amount coins to userID.
func (b *Board) Award(userID string, amount int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.byID[userID]
	if !ok {
		e = Entry{UserID: userID, Name: userID}
	}
	e.Coins += amount
	e.Count++
	b.replace(e)
}

// Label sets the display name and email of a ranked user. Unknown users are
// ignored.
func (b *Board) Label(userID, name, email string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.byID[userID]
	if !ok {
		return
	}
	if name != "" {
		e.Name = name
	}
	e.Email = email
	b.replace(e)
}

// Len returns the number of ranked users.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}

// Rank returns a user's entry. Users tied on coins and count share a rank.
func (b *Board) Rank(userID string) (Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.byID[userID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	e.Rank = countAhead(b.root, &e) + 1
	return e, nil
}

// TopN returns the best n entries in board order.
func (b *Board) TopN(n int) ([]Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, 0, min(n, len(b.byID)))
	collect(b.root, n, &out)
	assignRanks(out)
	return out, nil
}

// All returns every entry in board order.
func (b *Board) All() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, 0, len(b.byID))
	collect(b.root, len(b.byID), &out)
	assignRanks(out)
	return out
}

// assignRanks gives tied entries the rank of the first of them and skips
// the positions they take.
func assignRanks(entries []Entry) {
	for i := range entries {
		if i > 0 && !ahead(&entries[i-1], &entries[i]) {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
}
