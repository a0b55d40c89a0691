package numeric

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulelattice/engine/internal/model"
	"github.com/rulelattice/engine/pkg/dictionary"
	"github.com/rulelattice/engine/pkg/predicate"
)

// buildGreaterThanModel registers n GREATER_THAN predicates on field AMOUNT
// with thresholds n*1000 for n=1..count, mirroring scenario S5.
func buildGreaterThanModel(t *testing.T, count int) (*model.Model, dictionary.ID) {
	t.Helper()
	fields := dictionary.New()
	values := dictionary.New()
	amount := fields.Intern("AMOUNT")
	b := model.NewBuilder(fields, values)

	for n := 1; n <= count; n++ {
		pid := b.RegisterPredicate(predicate.Predicate{Field: amount, Op: predicate.GreaterThan, Num: float64(n * 1000)})
		b.RegisterCombination([]model.PredicateID{pid}, model.RuleMatch{RuleCode: "R", Priority: n})
	}
	m, err := b.Build(model.BuildOptions{})
	require.NoError(t, err)
	return m, amount
}

func TestBuildGroupsOnlyAboveThreshold(t *testing.T) {
	m, amount := buildGreaterThanModel(t, MinGroupSize-1)
	groups := Build(m)
	assert.Nil(t, groups[amount])
}

func TestBuildGroupsAtThreshold(t *testing.T) {
	m, amount := buildGreaterThanModel(t, MinGroupSize)
	groups := Build(m)
	require.NotNil(t, groups[amount])
	g := groups[amount][predicate.GreaterThan]
	require.NotNil(t, g)
	assert.Len(t, g.IDs, MinGroupSize)
}

func TestEvaluateMatchesScenarioS5(t *testing.T) {
	m, amount := buildGreaterThanModel(t, 10)
	groups := Build(m)
	g := groups[amount][predicate.GreaterThan]
	require.NotNil(t, g)

	matched := g.Evaluate(5000, nil, nil, nil)
	gotPriorities := matchedPriorities(t, m, matched)
	assert.ElementsMatch(t, []int{1, 2, 3, 4}, gotPriorities)
}

func TestEvaluateWithEligibilityFilterNarrowsResult(t *testing.T) {
	m, amount := buildGreaterThanModel(t, 10)
	groups := Build(m)
	g := groups[amount][predicate.GreaterThan]
	require.NotNil(t, g)

	eligible := map[model.PredicateID]struct{}{g.IDs[0]: {}, g.IDs[1]: {}}
	matched := g.Evaluate(5000, eligible, make([]model.PredicateID, 0, len(g.IDs)), make([]float64, 0, len(g.IDs)))

	for _, id := range matched {
		_, ok := eligible[id]
		assert.True(t, ok)
	}
}

func TestBetweenGroupInclusiveBoundaries(t *testing.T) {
	fields := dictionary.New()
	values := dictionary.New()
	amount := fields.Intern("AMOUNT")
	b := model.NewBuilder(fields, values)
	var ids []model.PredicateID
	for n := 0; n < MinGroupSize; n++ {
		pid := b.RegisterPredicate(predicate.Predicate{Field: amount, Op: predicate.Between, Range: predicate.Range{Low: 100, High: 100 + float64(n)}})
		ids = append(ids, pid)
		b.RegisterCombination([]model.PredicateID{pid}, model.RuleMatch{RuleCode: "R", Priority: n})
	}
	m, err := b.Build(model.BuildOptions{})
	require.NoError(t, err)

	groups := Build(m)
	g := groups[amount][predicate.Between]
	require.NotNil(t, g)

	matched := g.Evaluate(100, nil, nil, nil)
	assert.Len(t, matched, MinGroupSize, "all ranges include their low bound of 100")
}

func TestScalarFallbackAgreesWithGroupedPathWhenSimdDisabled(t *testing.T) {
	orig := simdCapable
	simdCapable = false
	defer func() { simdCapable = orig }()

	m, amount := buildGreaterThanModel(t, 20)
	groups := Build(m)
	g := groups[amount][predicate.GreaterThan]
	require.NotNil(t, g)

	matched := g.Evaluate(5500, nil, nil, nil)
	gotPriorities := matchedPriorities(t, m, matched)
	sort.Ints(gotPriorities)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, gotPriorities)
}

func matchedPriorities(t *testing.T, m *model.Model, ids []model.PredicateID) []int {
	t.Helper()
	var out []int
	for c := 0; c < m.NumCombinations(); c++ {
		preds := m.CombinationPredicates(model.CombinationID(c))
		if len(preds) != 1 {
			continue
		}
		for _, id := range ids {
			if preds[0] == id {
				out = append(out, m.RulesForCombination(model.CombinationID(c))[0].Priority)
			}
		}
	}
	return out
}
