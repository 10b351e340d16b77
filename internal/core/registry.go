package core

import (
	"fmt"
	"sort"

	"golang.org/x/text/cases"

	"questionbank/internal/sequence"
	"questionbank/pkg/domain"
)

// CollectionSpec binds a collection name to its identifier format and
// allocation policy.
type CollectionSpec struct {
	Name   string
	Format sequence.Format
	Policy sequence.Policy
}

// Validate reports configuration mistakes in the collection declaration.
func (c CollectionSpec) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: collection name is empty", domain.ErrInvalidInput)
	}
	if err := c.Format.Validate(); err != nil {
		return fmt.Errorf("collection %s: %w", c.Name, err)
	}
	if _, err := sequence.New(c.Policy, c.Format); err != nil {
		return fmt.Errorf("collection %s: %w", c.Name, err)
	}
	return nil
}

// Contiguous reports whether the collection keeps its suffixes gapless.
// Probe collections tolerate gaps and are never renumbered on delete.
func (c CollectionSpec) Contiguous() bool {
	return c.Policy != sequence.PolicyProbe
}

// Allocator returns the allocator configured for the collection.
func (c CollectionSpec) Allocator() sequence.Allocator {
	a, err := sequence.New(c.Policy, c.Format)
	if err != nil {
		// Validate rejects unknown policies before a spec is registered.
		return sequence.CountAllocator{Format: c.Format}
	}
	return a
}

// DefaultCollections returns the three resource types of a question bank.
func DefaultCollections() []CollectionSpec {
	return []CollectionSpec{
		{Name: "verbal", Format: sequence.Format{Prefix: "V", Separator: "-", Width: 3, Overflow: sequence.OverflowReject}, Policy: sequence.PolicyCount},
		{Name: "data_sufficiency", Format: sequence.Format{Prefix: "DS", Separator: "-", Width: 3, Overflow: sequence.OverflowReject}, Policy: sequence.PolicyCount},
		{Name: "assessments", Format: sequence.Format{Prefix: "Exam", Overflow: sequence.OverflowReject}, Policy: sequence.PolicyProbe},
	}
}

// Registry resolves collection names and prefixes case-insensitively.
type Registry struct {
	specs map[string]CollectionSpec
	keys  map[string]string
}

// NewRegistry validates and indexes specs. Names and prefixes must be unique
// after case folding.
func NewRegistry(specs ...CollectionSpec) (*Registry, error) {
	r := &Registry{
		specs: make(map[string]CollectionSpec, len(specs)),
		keys:  make(map[string]string, 2*len(specs)),
	}
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.specs[spec.Name]; dup {
			return nil, fmt.Errorf("%w: collection %s declared twice", domain.ErrInvalidInput, spec.Name)
		}
		r.specs[spec.Name] = spec
		for _, key := range []string{spec.Name, spec.Format.Prefix} {
			folded := fold(key)
			if owner, taken := r.keys[folded]; taken && owner != spec.Name {
				return nil, fmt.Errorf("%w: %q is ambiguous between %s and %s", domain.ErrInvalidInput, key, owner, spec.Name)
			}
			r.keys[folded] = spec.Name
		}
	}
	return r, nil
}

// MustDefaultRegistry returns a registry of DefaultCollections.
func MustDefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultCollections()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup resolves a collection by name or prefix.
func (r *Registry) Lookup(key string) (CollectionSpec, error) {
	name, ok := r.keys[fold(key)]
	if !ok {
		return CollectionSpec{}, fmt.Errorf("%w: %q", domain.ErrUnknownCollection, key)
	}
	return r.specs[name], nil
}

// Specs returns every registered spec ordered by name.
func (r *Registry) Specs() []CollectionSpec {
	out := make([]CollectionSpec, 0, len(r.specs))
	for _, spec := range r.specs {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// fold builds a fresh caser per call; casers are stateful.
func fold(s string) string {
	return cases.Fold().String(s)
}
