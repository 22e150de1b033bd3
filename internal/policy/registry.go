package policy

import (
	"slices"
	"sync"

	dErrors "guardrail/pkg/domain-errors"
)

// Registry holds every published table. Publishing is append-only: an
// existing version can never be replaced, so an audit entry's policy hash
// always points at the exact table that produced it.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Table)}
}

// Publish validates and stores a new version.
func (r *Registry) Publish(t *Table) error {
	if t == nil {
		return dErrors.New(dErrors.CodeValidation, "policy table is required")
	}
	if err := t.Validate(); err != nil {
		return err
	}
	stored := t.Clone()
	hash, err := stored.computeHash()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "hash policy table")
	}
	stored.hash = hash

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tables[stored.Version]; exists {
		return dErrors.New(dErrors.CodeConflict, "policy version "+stored.Version+" is already published")
	}
	r.tables[stored.Version] = stored
	r.order = append(r.order, stored.Version)
	// Latest publication time wins; ties keep publication order.
	slices.SortStableFunc(r.order, func(a, b string) int {
		return r.tables[a].PublishedAt.Compare(r.tables[b].PublishedAt)
	})
	return nil
}

// Current returns a copy of the most recently published table.
func (r *Registry) Current() (*Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return nil, dErrors.New(dErrors.CodePolicyResolution, "no policy version published")
	}
	return r.tables[r.order[len(r.order)-1]].Clone(), nil
}

// Version returns a copy of a specific published table.
func (r *Registry) Version(v string) (*Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[v]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "policy version "+v+" not found")
	}
	return t.Clone(), nil
}

// Versions lists published versions oldest first.
func (r *Registry) Versions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}
