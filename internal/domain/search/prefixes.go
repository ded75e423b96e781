// Package search builds the prefix index stored on ideas and interprets
// user search terms against it.
package search

import (
	"regexp"

	"github.com/okian/ideabox/internal/domain/textnorm"
)

// Defaults for the prefix index.
const (
	DefaultMinLen      = 3
	DefaultMaxLen      = 6
	DefaultMaxPrefixes = 50
)

var wordSplit = regexp.MustCompile(`[^a-z0-9]+`)

// Options bounds the generated prefixes.
type Options struct {
	MinLen      int
	MaxLen      int
	MaxPrefixes int
}

// DefaultOptions returns the production bounds.
func DefaultOptions() Options {
	return Options{MinLen: DefaultMinLen, MaxLen: DefaultMaxLen, MaxPrefixes: DefaultMaxPrefixes}
}

func (o Options) sanitized() Options {
	if o.MinLen < 1 {
		o.MinLen = DefaultMinLen
	}
	if o.MaxLen < o.MinLen {
		o.MaxLen = o.MinLen
	}
	if o.MaxPrefixes < 1 {
		o.MaxPrefixes = DefaultMaxPrefixes
	}
	return o
}

// TextToPrefixes returns the deduplicated word prefixes of text, in first-seen
// order. Words shorter than MinLen contribute nothing; each word contributes
// prefixes of length MinLen..min(MaxLen, len(word)). The cap applies to the
// whole text, so later words may be dropped entirely.
func TextToPrefixes(text string, opts Options) []string {
	opts = opts.sanitized()
	words := wordSplit.Split(textnorm.Normalize(text), -1)

	out := make([]string, 0, opts.MaxPrefixes)
	seen := make(map[string]struct{}, opts.MaxPrefixes)
	for _, w := range words {
		if len(w) < opts.MinLen {
			continue
		}
		upper := min(opts.MaxLen, len(w))
		for k := opts.MinLen; k <= upper; k++ {
			p := w[:k]
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
			if len(out) >= opts.MaxPrefixes {
				return out
			}
		}
	}
	return out
}

// IdeaPrefixes indexes the searchable text of an idea.
func IdeaPrefixes(title, description string, opts Options) []string {
	return TextToPrefixes(title+" "+description, opts)
}
