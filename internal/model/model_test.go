package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulelattice/engine/pkg/dictionary"
	"github.com/rulelattice/engine/pkg/predicate"
)

func buildTestModel(t *testing.T) (*Model, dictionary.ID, dictionary.ID, []PredicateID) {
	t.Helper()
	fields := dictionary.New()
	values := dictionary.New()
	statusField := fields.Intern("STATUS")
	amountField := fields.Intern("AMOUNT")

	b := NewBuilder(fields, values)
	pStatus := b.RegisterPredicate(predicate.Predicate{Field: statusField, Op: predicate.EqualTo, Str: "ACTIVE"})
	pAmount := b.RegisterPredicate(predicate.Predicate{Field: amountField, Op: predicate.GreaterThan, Num: 100})

	b.RegisterCombination([]PredicateID{pStatus, pAmount}, RuleMatch{RuleCode: "R_1", Priority: 100})

	m, err := b.Build(BuildOptions{})
	require.NoError(t, err)
	return m, statusField, amountField, []PredicateID{pStatus, pAmount}
}

func TestBuildProducesInvariantSatisfyingModel(t *testing.T) {
	m, _, _, preds := buildTestModel(t)

	require.Equal(t, 1, m.NumCombinations())
	comb := m.CombinationPredicates(0)
	assert.Equal(t, []PredicateID{preds[0], preds[1]}, comb)

	for _, p := range preds {
		assert.True(t, m.InvertedIndex(p).Contains(0))
	}
}

func TestRegisterPredicateDedupsByCanonicalKey(t *testing.T) {
	fields := dictionary.New()
	values := dictionary.New()
	f := fields.Intern("STATUS")
	b := NewBuilder(fields, values)

	id1 := b.RegisterPredicate(predicate.Predicate{Field: f, Op: predicate.EqualTo, Str: "ACTIVE", Weight: 1})
	id2 := b.RegisterPredicate(predicate.Predicate{Field: f, Op: predicate.EqualTo, Str: "ACTIVE", Weight: 999})

	assert.Equal(t, id1, id2)
	assert.Len(t, b.predicates, 1)
}

func TestRegisterCombinationAppendsRulesInOrderWithCanonicalFirst(t *testing.T) {
	fields := dictionary.New()
	values := dictionary.New()
	f := fields.Intern("STATUS")
	b := NewBuilder(fields, values)
	p := b.RegisterPredicate(predicate.Predicate{Field: f, Op: predicate.EqualTo, Str: "ACTIVE"})

	cid1 := b.RegisterCombination([]PredicateID{p}, RuleMatch{RuleCode: "R_A", Priority: 10})
	cid2 := b.RegisterCombination([]PredicateID{p}, RuleMatch{RuleCode: "R_B", Priority: 20})

	require.Equal(t, cid1, cid2)
	rules := b.combinations[cid1].Rules
	require.Len(t, rules, 2)
	assert.Equal(t, "R_A", rules[0].RuleCode, "first-registered rule must remain canonical")
	assert.Equal(t, "R_B", rules[1].RuleCode)
}

func TestRegisterCombinationSortsAndDedupsPredicateIDs(t *testing.T) {
	fields := dictionary.New()
	values := dictionary.New()
	f := fields.Intern("X")
	b := NewBuilder(fields, values)
	p1 := b.RegisterPredicate(predicate.Predicate{Field: f, Op: predicate.EqualTo, Str: "A"})
	p2 := b.RegisterPredicate(predicate.Predicate{Field: f, Op: predicate.EqualTo, Str: "B"})

	cid := b.RegisterCombination([]PredicateID{p2, p1, p2}, RuleMatch{RuleCode: "R"})
	assert.Equal(t, []PredicateID{p1, p2}, b.combinations[cid].Predicates)
}

func TestFieldToPredicatesSortedAscendingByWeight(t *testing.T) {
	m, statusField, _, _ := buildTestModel(t)
	ids := m.FieldPredicates(statusField)
	require.Len(t, ids, 1)
	assert.Equal(t, m.FieldMinWeight(statusField), m.Predicate(ids[0]).Weight)
}

func TestCanonicalKeyMatchesEqualSequences(t *testing.T) {
	a := CanonicalKey([]PredicateID{1, 2, 3})
	b := CanonicalKey([]PredicateID{1, 2, 3})
	c := CanonicalKey([]PredicateID{1, 2, 4})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
