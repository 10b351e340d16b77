package sequence

import (
	"fmt"

	"questionbank/pkg/domain"
)

// Reader is the slice of store state allocators depend on. Both
// domain.TransactionView and domain.Transaction satisfy it.
type Reader interface {
	Exists(id string) bool
	Count() int
}

// Policy selects an allocator implementation per collection.
type Policy string

const (
	// PolicyCount allocates Count()+1 and relies on renumbering to keep the
	// collection contiguous.
	PolicyCount Policy = "count"
	// PolicyProbe allocates the first identifier that does not exist yet and
	// tolerates gaps.
	PolicyProbe Policy = "probe"
)

// Allocator computes the next identifiers for a collection. Allocation reads
// the store state it is given and caches nothing, so restarts and multiple
// server instances agree as long as they read the same state.
type Allocator interface {
	Policy() Policy
	// Reserve returns n fresh identifiers in allocation order.
	Reserve(r Reader, n int) ([]string, error)
}

// Next allocates a single identifier.
func Next(a Allocator, r Reader) (string, error) {
	ids, err := a.Reserve(r, 1)
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// New returns the allocator for policy.
func New(policy Policy, format Format) (Allocator, error) {
	switch policy {
	case PolicyCount, "":
		return CountAllocator{Format: format}, nil
	case PolicyProbe:
		return ProbeAllocator{Format: format}, nil
	default:
		return nil, fmt.Errorf("%w: unknown allocator policy %q", domain.ErrInvalidInput, policy)
	}
}

// CountAllocator assigns Count()+offset+1, taking the count once per batch.
type CountAllocator struct {
	Format Format
}

// Policy implements Allocator.
func (CountAllocator) Policy() Policy { return PolicyCount }

// Reserve implements Allocator.
func (a CountAllocator) Reserve(r Reader, n int) ([]string, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: reserve %d identifiers", domain.ErrInvalidInput, n)
	}
	base := r.Count()
	ids := make([]string, 0, n)
	for offset := 0; offset < n; offset++ {
		id, err := a.Format.Render(base + offset + 1)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ProbeAllocator tests candidates from 1 upward and returns the first free
// ones. Within a batch candidates only increase, so no identifier repeats.
type ProbeAllocator struct {
	Format Format
}

// Policy implements Allocator.
func (ProbeAllocator) Policy() Policy { return PolicyProbe }

// Reserve implements Allocator.
func (a ProbeAllocator) Reserve(r Reader, n int) ([]string, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: reserve %d identifiers", domain.ErrInvalidInput, n)
	}
	ids := make([]string, 0, n)
	for candidate := 1; len(ids) < n; candidate++ {
		id, err := a.Format.Render(candidate)
		if err != nil {
			return nil, err
		}
		if r.Exists(id) {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
