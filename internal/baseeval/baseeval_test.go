package baseeval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulelattice/engine/internal/event"
	"github.com/rulelattice/engine/internal/model"
	"github.com/rulelattice/engine/pkg/bitmap"
	"github.com/rulelattice/engine/pkg/dictionary"
	"github.com/rulelattice/engine/pkg/predicate"
)

// buildS4Model mirrors scenario S4: three rules STATUS=ACTIVE AND AMT>k for
// k in {100, 500, 1000}, sharing one base-condition set.
func buildS4Model(t *testing.T) (*model.Model, dictionary.ID, dictionary.ID) {
	t.Helper()
	fields := dictionary.New()
	values := dictionary.New()
	status := fields.Intern("STATUS")
	amt := fields.Intern("AMT")
	b := model.NewBuilder(fields, values)

	statusPred := b.RegisterPredicate(predicate.Predicate{Field: status, Op: predicate.EqualTo, Str: "ACTIVE"})
	for i, k := range []float64{100, 500, 1000} {
		amtPred := b.RegisterPredicate(predicate.Predicate{Field: amt, Op: predicate.GreaterThan, Num: k})
		b.RegisterCombination([]model.PredicateID{statusPred, amtPred}, model.RuleMatch{RuleCode: ruleCode(i), Priority: 100})
	}

	m, err := b.Build(model.BuildOptions{})
	require.NoError(t, err)
	return m, status, amt
}

func ruleCode(i int) string {
	return []string{"R_100", "R_500", "R_1000"}[i]
}

func TestConstructionProducesOneBaseConditionSetForSharedPrefix(t *testing.T) {
	m, _, _ := buildS4Model(t)
	ev := New(m, Options{})
	assert.Len(t, ev.sets, 1, "three rules sharing STATUS=ACTIVE must collapse to one base-condition set")
	assert.Equal(t, 0, ev.rulesWithNoBaseConditions.Cardinality())
}

func TestEvaluateFiltersByStaticPredicates(t *testing.T) {
	m, status, amt := buildS4Model(t)
	ev := New(m, Options{})

	enc := event.Encoded{
		status: event.StringValue("ACTIVE"),
		amt:    event.FloatValue(750),
	}
	res := ev.Evaluate(enc)
	assert.False(t, res.FromCache)
	assert.Equal(t, 3, res.Eligible.Cardinality(), "all three combinations share the passing static prefix")
}

func TestEvaluateExcludesCombinationsWhenStaticPredicateFails(t *testing.T) {
	m, status, amt := buildS4Model(t)
	ev := New(m, Options{})

	enc := event.Encoded{
		status: event.StringValue("INACTIVE"),
		amt:    event.FloatValue(750),
	}
	res := ev.Evaluate(enc)
	assert.Equal(t, 0, res.Eligible.Cardinality())
}

func TestEvaluateSkipsSetsWithMissingFieldsRatherThanFailing(t *testing.T) {
	m, _, amt := buildS4Model(t)
	ev := New(m, Options{})

	enc := event.Encoded{
		amt: event.FloatValue(750),
	}
	res := ev.Evaluate(enc)
	assert.Equal(t, 0, res.Eligible.Cardinality(), "missing STATUS disqualifies the set, not the event")
}

func TestCacheHitReturnsIdenticalBitmapToMiss(t *testing.T) {
	m, status, amt := buildS4Model(t)
	cache := newFakeCache()
	ev := New(m, Options{Cache: cache, TTL: time.Minute})

	enc := event.Encoded{
		status: event.StringValue("ACTIVE"),
		amt:    event.FloatValue(750),
	}
	miss := ev.Evaluate(enc)
	require.False(t, miss.FromCache)

	hit := ev.Evaluate(enc)
	require.True(t, hit.FromCache)

	assert.Equal(t, miss.Eligible.Cardinality(), hit.Eligible.Cardinality())
	var missIDs, hitIDs []uint32
	miss.Eligible.Each(func(id uint32) { missIDs = append(missIDs, id) })
	hit.Eligible.Each(func(id uint32) { hitIDs = append(hitIDs, id) })
	assert.Equal(t, missIDs, hitIDs)
}

func TestHashIDPairIsDeterministicForEqualInput(t *testing.T) {
	a := []model.PredicateID{1, 2, 3}
	b := []model.PredicateID{1, 2, 3}
	h1a, h2a := hashIDPair(a)
	h1b, h2b := hashIDPair(b)
	assert.Equal(t, h1a, h1b)
	assert.Equal(t, h2a, h2b)
}

func TestHashIDPairDistinguishesDifferentSets(t *testing.T) {
	h1a, h2a := hashIDPair([]model.PredicateID{1, 2, 3})
	h1b, h2b := hashIDPair([]model.PredicateID{1, 2, 4})
	assert.False(t, h1a == h1b && h2a == h2b)
}

// fakeCache is a minimal synchronous in-memory Cache for tests that don't
// want ristretto's async-write semantics.
type fakeCache struct {
	data map[string]*bitmap.Bitmap
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]*bitmap.Bitmap)}
}

func (c *fakeCache) Get(key string) (*bitmap.Bitmap, bool) {
	v, ok := c.data[key]
	return v, ok
}

func (c *fakeCache) SetWithTTL(key string, value *bitmap.Bitmap, cost int64, ttl time.Duration) {
	c.data[key] = value
}

func (c *fakeCache) Del(key string) { delete(c.data, key) }
func (c *fakeCache) Close()         {}
