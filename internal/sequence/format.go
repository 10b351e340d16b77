// Package sequence renders, parses and allocates human-readable sequence
// identifiers such as "V-001" or "Exam3".
package sequence

import (
	"fmt"
	"strconv"
	"strings"

	"questionbank/pkg/domain"
)

// OverflowPolicy decides what happens when a number needs more digits than
// the collection's padding width.
type OverflowPolicy string

const (
	// OverflowReject fails allocation with domain.ErrAllocationExhausted.
	OverflowReject OverflowPolicy = "reject"
	// OverflowExpand renders the number with as many digits as it needs.
	OverflowExpand OverflowPolicy = "expand"
)

// Format describes how numbers map to identifiers for one collection.
type Format struct {
	Prefix    string
	Separator string
	// Width is the zero-padding width. Zero means no padding and no limit.
	Width    int
	Overflow OverflowPolicy
}

// Validate checks the format for obviously broken settings.
func (f Format) Validate() error {
	if strings.TrimSpace(f.Prefix) == "" {
		return fmt.Errorf("%w: empty prefix", domain.ErrInvalidInput)
	}
	if f.Width < 0 || f.Width > 18 {
		return fmt.Errorf("%w: width %d out of range", domain.ErrInvalidInput, f.Width)
	}
	switch f.Overflow {
	case "", OverflowReject, OverflowExpand:
	default:
		return fmt.Errorf("%w: unknown overflow policy %q", domain.ErrInvalidInput, f.Overflow)
	}
	if f.Separator == "" && f.Prefix[len(f.Prefix)-1] >= '0' && f.Prefix[len(f.Prefix)-1] <= '9' {
		return fmt.Errorf("%w: prefix %q ends in a digit and has no separator", domain.ErrInvalidInput, f.Prefix)
	}
	return nil
}

// Capacity returns the largest number the format can render, or 0 when
// unbounded.
func (f Format) Capacity() int {
	if f.Width == 0 || f.Overflow == OverflowExpand {
		return 0
	}
	limit := 1
	for i := 0; i < f.Width; i++ {
		limit *= 10
	}
	return limit - 1
}

// Render formats n as an identifier.
func (f Format) Render(n int) (string, error) {
	if n < 1 {
		return "", fmt.Errorf("%w: sequence number %d", domain.ErrInvalidInput, n)
	}
	if c := f.Capacity(); c > 0 && n > c {
		return "", fmt.Errorf("%w: %s%s cannot hold %d (width %d)", domain.ErrAllocationExhausted, f.Prefix, f.Separator, n, f.Width)
	}
	return f.head() + fmt.Sprintf("%0*d", f.Width, n), nil
}

// MustRender is like Render but panics if n does not fit. It is meant for
// tests and fixtures built from known-small numbers.
func (f Format) MustRender(n int) string {
	id, err := f.Render(n)
	if err != nil {
		panic(err)
	}
	return id
}

// Parse extracts the numeric suffix of id. ok is false when id does not
// belong to this format.
func (f Format) Parse(id string) (n int, ok bool) {
	head := f.head()
	if !strings.HasPrefix(id, head) {
		return 0, false
	}
	digits := id[len(head):]
	if digits == "" {
		return 0, false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, false
	}
	// Only the canonical rendering counts: "V-01" and "Exam03" are foreign.
	if fmt.Sprintf("%0*d", f.Width, n) != digits {
		return 0, false
	}
	return n, true
}

func (f Format) head() string {
	return f.Prefix + f.Separator
}

// String returns a sample identifier for display, e.g. "V-001".
func (f Format) String() string {
	return f.head() + fmt.Sprintf("%0*d", f.Width, 1)
}
