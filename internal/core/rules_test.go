package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questionbank/pkg/domain"
)

// stubView is a fixed collection snapshot for rule evaluation.
type stubView struct {
	collection string
	entities   []domain.Entity
}

func (v stubView) Collection() string { return v.collection }

func (v stubView) Exists(id string) bool {
	for _, e := range v.entities {
		if e.SequenceID == id {
			return true
		}
	}
	return false
}

func (v stubView) FindByID(id string) (domain.Entity, error) {
	for _, e := range v.entities {
		if e.SequenceID == id {
			return e, nil
		}
	}
	return domain.Entity{}, &domain.NotFoundError{Collection: v.collection, ID: id}
}

func (v stubView) FindAllOrderedByCreation() []domain.Entity { return v.entities }

func (v stubView) Count() int { return len(v.entities) }

func viewOf(collection string, ids ...string) stubView {
	v := stubView{collection: collection}
	for _, id := range ids {
		v.entities = append(v.entities, domain.Entity{InternalID: "i-" + id, SequenceID: id})
	}
	return v
}

func evaluate(t *testing.T, rule domain.Rule, view domain.TransactionView) domain.Result {
	t.Helper()
	res, err := rule.Evaluate(context.Background(), view, nil)
	require.NoError(t, err)
	return res
}

func TestUniquenessRule(t *testing.T) {
	rule := UniquenessRule()
	assert.Equal(t, "sequence_unique", rule.Name())
	assert.Empty(t, evaluate(t, rule, viewOf(verbal, "V-001", "V-002")).Violations)

	res := evaluate(t, rule, viewOf(verbal, "V-001", "V-002", "V-001"))
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "V-001", res.Violations[0].SequenceID)
	assert.True(t, res.HasBlocking())
}

func TestContiguityRule(t *testing.T) {
	rule := ContiguityRule(MustDefaultRegistry())
	assert.Equal(t, "sequence_contiguous", rule.Name())

	assert.Empty(t, evaluate(t, rule, viewOf(verbal)).Violations)
	assert.Empty(t, evaluate(t, rule, viewOf(verbal, "V-002", "V-001", "V-003")).Violations)

	res := evaluate(t, rule, viewOf(verbal, "V-001", "V-003"))
	require.Len(t, res.Violations, 2)
	assert.Contains(t, res.Violations[0].Message, "exceeds collection size")
	assert.Equal(t, "V-002", res.Violations[1].SequenceID)
	assert.Contains(t, res.Violations[1].Message, "run renumber")

	res = evaluate(t, rule, viewOf(verbal, "V-001", "V-01"))
	require.NotEmpty(t, res.Violations)
	assert.Contains(t, res.Violations[0].Message, "does not match format")
}

func TestContiguityRuleSkipsProbeAndUnknownCollections(t *testing.T) {
	rule := ContiguityRule(MustDefaultRegistry())
	assert.Empty(t, evaluate(t, rule, viewOf("assessments", "Exam1", "Exam4")).Violations)
	assert.Empty(t, evaluate(t, rule, viewOf("unregistered", "X-9")).Violations)
	assert.Empty(t, evaluate(t, ContiguityRule(nil), viewOf(verbal, "V-009")).Violations)
}
