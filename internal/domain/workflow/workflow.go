// Package workflow holds the lifecycle rules for ideas.
package workflow

import (
	"fmt"
	"slices"

	"github.com/okian/ideabox/internal/domain/model"
)

// Mode controls how the transition graph is applied.
type Mode string

const (
	// ModeAdvisory accepts any known status; the graph only drives suggestions.
	ModeAdvisory Mode = "advisory"
	// ModeStrict rejects moves that are not edges of the graph.
	ModeStrict Mode = "strict"
)

var defaultGraph = map[model.Status][]model.Status{
	model.StatusNew:         {model.StatusUnderReview},
	model.StatusUnderReview: {model.StatusApproved, model.StatusRejected},
	model.StatusApproved:    {model.StatusInProgress},
	model.StatusInProgress:  {model.StatusCompleted},
}

// Policy decides whether a status change is allowed.
type Policy struct {
	mode  Mode
	graph map[model.Status][]model.Status
}

// Option configures a Policy.
type Option func(*Policy)

// WithMode selects advisory or strict checking.
func WithMode(m Mode) Option {
	return func(p *Policy) {
		if m == ModeStrict || m == ModeAdvisory {
			p.mode = m
		}
	}
}

// WithStrict is a shorthand used by configuration.
func WithStrict(strict bool) Option {
	if strict {
		return WithMode(ModeStrict)
	}
	return WithMode(ModeAdvisory)
}

// NewPolicy returns an advisory policy over the standard lifecycle.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{mode: ModeAdvisory, graph: defaultGraph}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Mode returns the active mode.
func (p *Policy) Mode() Mode { return p.mode }

// Suggested lists the next statuses the lifecycle proposes from s.
func (p *Policy) Suggested(s model.Status) []model.Status {
	return slices.Clone(p.graph[s])
}

// Check validates moving from -> to. noop is true when nothing would change.
func (p *Policy) Check(from, to model.Status) (noop bool, err error) {
	if !to.Valid() {
		return false, fmt.Errorf("%w: %q", model.ErrUnknownStatus, to)
	}
	if from == to {
		return true, nil
	}
	if p.mode == ModeStrict && !slices.Contains(p.graph[from], to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return false, nil
}

// NeedsRewardPrompt reports whether entering to should offer a reward.
func NeedsRewardPrompt(to model.Status, hasReward bool) bool {
	return to == model.StatusCompleted && !hasReward
}
