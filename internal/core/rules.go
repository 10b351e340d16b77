package core

import (
	"context"
	"fmt"

	"questionbank/pkg/domain"
)

// NewDefaultRulesEngine builds a rules engine enforcing identifier
// uniqueness everywhere and contiguity for count-policy collections.
func NewDefaultRulesEngine(registry *Registry) *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	for _, rule := range DefaultRules(registry) {
		engine.Register(rule)
	}
	return engine
}

// DefaultRules lists the rules evaluated before every commit.
func DefaultRules(registry *Registry) []domain.Rule {
	return []domain.Rule{UniquenessRule(), ContiguityRule(registry)}
}

// UniquenessRule blocks commits that leave two entities sharing a sequence id.
func UniquenessRule() domain.Rule {
	return uniquenessRule{}
}

type uniquenessRule struct{}

func (uniquenessRule) Name() string { return "sequence_unique" }

func (uniquenessRule) Evaluate(_ context.Context, view domain.TransactionView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	seen := make(map[string]struct{}, view.Count())
	for _, e := range view.FindAllOrderedByCreation() {
		if _, dup := seen[e.SequenceID]; dup {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:       "sequence_unique",
				Severity:   domain.SeverityBlock,
				Message:    fmt.Sprintf("%s is assigned to more than one entity", e.SequenceID),
				Collection: view.Collection(),
				SequenceID: e.SequenceID,
			})
			continue
		}
		seen[e.SequenceID] = struct{}{}
	}
	return res, nil
}

// ContiguityRule blocks commits that leave a count-policy collection with
// suffixes other than exactly 1..N. Collections unknown to the registry and
// probe collections are skipped.
func ContiguityRule(registry *Registry) domain.Rule {
	return contiguityRule{registry: registry}
}

type contiguityRule struct {
	registry *Registry
}

func (contiguityRule) Name() string { return "sequence_contiguous" }

func (r contiguityRule) Evaluate(_ context.Context, view domain.TransactionView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	if r.registry == nil {
		return res, nil
	}
	spec, err := r.registry.Lookup(view.Collection())
	if err != nil || !spec.Contiguous() {
		return res, nil
	}
	n := view.Count()
	present := make([]bool, n+1)
	violate := func(id, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:       "sequence_contiguous",
			Severity:   domain.SeverityBlock,
			Message:    msg,
			Collection: view.Collection(),
			SequenceID: id,
		})
	}
	for _, e := range view.FindAllOrderedByCreation() {
		num, ok := spec.Format.Parse(e.SequenceID)
		switch {
		case !ok:
			violate(e.SequenceID, fmt.Sprintf("%s does not match format %s", e.SequenceID, spec.Format))
		case num > n:
			violate(e.SequenceID, fmt.Sprintf("%s exceeds collection size %d", e.SequenceID, n))
		case present[num]:
			violate(e.SequenceID, fmt.Sprintf("suffix %d of %s is duplicated", num, e.SequenceID))
		default:
			present[num] = true
		}
	}
	var missing []int
	for i := 1; i <= n; i++ {
		if !present[i] {
			missing = append(missing, i)
		}
	}
	for _, num := range missing {
		id, err := spec.Format.Render(num)
		if err != nil {
			id = fmt.Sprint(num)
		}
		violate(id, fmt.Sprintf("%s is missing; run renumber to close the gap", id))
	}
	return res, nil
}
