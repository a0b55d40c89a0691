// Package model defines the EngineModel: the immutable, Structure-of-Arrays
// compiled artifact produced by the rule compiler and consumed by both
// evaluators. A model is built once per ruleset version and never mutated;
// concurrent evaluators share a single *Model by reference.
package model

import (
	"fmt"
	"sort"

	"github.com/rulelattice/engine/pkg/bitmap"
	"github.com/rulelattice/engine/pkg/cachecontract"
	"github.com/rulelattice/engine/pkg/dictionary"
	"github.com/rulelattice/engine/pkg/predicate"
)

// PredicateID indexes the model's unique_predicates array.
type PredicateID uint32

// CombinationID indexes the model's per-combination SoA arrays.
type CombinationID uint32

// RuleMatch is one (rule_code, priority) pair carried by a combination.
type RuleMatch struct {
	RuleCode    string
	Priority    int
	Description string
}

// Combination is a strictly-sorted conjunction of predicate ids produced by
// DNF expansion, plus the logical rules that deduplicated onto it.
type Combination struct {
	Predicates []PredicateID // sorted ascending, strictly increasing, non-empty
	Rules      []RuleMatch   // registration order; Rules[0] is canonical
}

// CanonicalKey returns the identity of a combination: its sorted predicate
// id sequence, encoded so two combinations with equal sequences produce
// equal keys.
func CanonicalKey(ids []PredicateID) string {
	b := make([]byte, 0, len(ids)*5)
	for _, id := range ids {
		b = append(b, byte(id), byte(id>>8), byte(id>>16), byte(id>>24), '|')
	}
	return string(b)
}

// Model is the immutable engine model. Every exported accessor is pure and
// safe for concurrent use once Build has returned successfully.
type Model struct {
	Fields *dictionary.Dictionary
	Values *dictionary.Dictionary

	predicates    []predicate.Predicate // index = PredicateID
	predicateKeys map[predicate.Key]PredicateID

	combinations []Combination // index = CombinationID

	invertedIndex map[PredicateID]*bitmap.Bitmap

	// fieldToPredicates lists, per field, the predicate ids touching it,
	// sorted ascending by combined weight (cheapest/most-selective first).
	fieldToPredicates map[dictionary.ID][]PredicateID
	fieldMinWeight    map[dictionary.ID]float64

	eligibleCache cachecontract.Cache[string, []PredicateID]
}

// NumCombinations returns the number of unique combinations in the model.
func (m *Model) NumCombinations() int { return len(m.combinations) }

// NumPredicates returns the number of unique predicates in the model.
func (m *Model) NumPredicates() int { return len(m.predicates) }

// Predicate returns the predicate registered under id. It panics on an
// out-of-range id, which indicates a programmer bug (a ModelIntegrityError
// class condition), not a data-dependent failure.
func (m *Model) Predicate(id PredicateID) predicate.Predicate {
	return m.predicates[id]
}

// PredicateIDByKey looks up a predicate's id by its canonical key.
func (m *Model) PredicateIDByKey(key predicate.Key) (PredicateID, bool) {
	id, ok := m.predicateKeys[key]
	return id, ok
}

// CombinationPredicates returns the sorted predicate ids for c.
func (m *Model) CombinationPredicates(c CombinationID) []PredicateID {
	return m.combinations[c].Predicates
}

// PredicateCount returns |combination_predicates[c]|.
func (m *Model) PredicateCount(c CombinationID) int {
	return len(m.combinations[c].Predicates)
}

// RulesForCombination returns every (rule_code, priority) that deduplicated
// onto c, in registration order.
func (m *Model) RulesForCombination(c CombinationID) []RuleMatch {
	return m.combinations[c].Rules
}

// InvertedIndex returns the bitmap of combination ids containing predicate
// p, or an empty bitmap if p participates in none.
func (m *Model) InvertedIndex(p PredicateID) *bitmap.Bitmap {
	if bm, ok := m.invertedIndex[p]; ok {
		return bm
	}
	return bitmap.New()
}

// FieldPredicates returns the predicate ids touching field f, sorted
// ascending by combined weight.
func (m *Model) FieldPredicates(f dictionary.ID) []PredicateID {
	return m.fieldToPredicates[f]
}

// FieldMinWeight returns the minimum weight among predicates on field f, for
// early-termination heuristics; returns 0 if the field is unreferenced.
func (m *Model) FieldMinWeight(f dictionary.ID) float64 {
	return m.fieldMinWeight[f]
}

// EligibleCache returns the model's eligible-predicate-set cache (§4.5 of
// the design notes): memoizes the union of predicate ids across a set of
// eligible combinations, keyed by the eligible bitmap's content.
func (m *Model) EligibleCache() cachecontract.Cache[string, []PredicateID] {
	return m.eligibleCache
}

// IntegrityError reports a violated build-time invariant (I1-I5). Its
// occurrence indicates a compiler bug, not a bad input ruleset — by the
// time Build runs, Validate has already rejected malformed rule
// definitions.
type IntegrityError struct {
	Invariant string
	Detail    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("model: invariant %s violated: %s", e.Invariant, e.Detail)
}

// checkInvariants verifies I1-I5 against a fully populated Model.
func checkInvariants(m *Model) error {
	for c, comb := range m.combinations {
		if len(comb.Predicates) == 0 {
			return &IntegrityError{"I1", fmt.Sprintf("combination %d has no predicates", c)}
		}
		for i := 1; i < len(comb.Predicates); i++ {
			if comb.Predicates[i] <= comb.Predicates[i-1] {
				return &IntegrityError{"I1", fmt.Sprintf("combination %d predicates not strictly increasing", c)}
			}
		}
		if len(comb.Rules) == 0 || comb.Rules[0].RuleCode == "" {
			return &IntegrityError{"I2", fmt.Sprintf("combination %d has no canonical rule code", c)}
		}
		for _, p := range comb.Predicates {
			if !m.invertedIndex[p].Contains(uint32(c)) {
				return &IntegrityError{"I3", fmt.Sprintf("combination %d missing from inverted_index[%d]", c, p)}
			}
		}
	}
	if len(m.combinations) > 0 && len(m.invertedIndex) == 0 {
		return &IntegrityError{"I4", "non-empty combination set but empty inverted index"}
	}
	seen := make(map[predicate.Key]PredicateID, len(m.predicates))
	for id, p := range m.predicates {
		key := p.CanonicalKey()
		if other, dup := seen[key]; dup {
			return &IntegrityError{"I5", fmt.Sprintf("predicates %d and %d share canonical key %q", other, id, key)}
		}
		seen[key] = PredicateID(id)
	}
	return nil
}

// Builder assembles a Model incrementally; the compiler is the only
// intended caller.
type Builder struct {
	Fields *dictionary.Dictionary
	Values *dictionary.Dictionary

	predicates    []predicate.Predicate
	predicateKeys map[predicate.Key]PredicateID

	combinations   []Combination
	combinationIdx map[string]CombinationID
}

// NewBuilder returns an empty Builder over the given field/value
// dictionaries.
func NewBuilder(fields, values *dictionary.Dictionary) *Builder {
	return &Builder{
		Fields:         fields,
		Values:         values,
		predicateKeys:  make(map[predicate.Key]PredicateID),
		combinationIdx: make(map[string]CombinationID),
	}
}

// RegisterPredicate returns p's id, minting a new one if p's canonical key
// has not been seen before.
func (b *Builder) RegisterPredicate(p predicate.Predicate) PredicateID {
	key := p.CanonicalKey()
	if id, ok := b.predicateKeys[key]; ok {
		return id
	}
	id := PredicateID(len(b.predicates))
	b.predicates = append(b.predicates, p)
	b.predicateKeys[key] = id
	return id
}

// RegisterCombination sorts ids, looks up or mints a combination id for
// them, and appends match to the combination's rule list (first call for a
// given combination becomes canonical).
func (b *Builder) RegisterCombination(ids []PredicateID, match RuleMatch) CombinationID {
	sorted := append([]PredicateID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	sorted = dedupSorted(sorted)

	key := CanonicalKey(sorted)
	if cid, ok := b.combinationIdx[key]; ok {
		b.combinations[cid].Rules = append(b.combinations[cid].Rules, match)
		return cid
	}
	cid := CombinationID(len(b.combinations))
	b.combinations = append(b.combinations, Combination{
		Predicates: sorted,
		Rules:      []RuleMatch{match},
	})
	b.combinationIdx[key] = cid
	return cid
}

func dedupSorted(ids []PredicateID) []PredicateID {
	if len(ids) < 2 {
		return ids
	}
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}

// BuildOptions configures the finalized Model's eligible-predicate-set
// cache.
type BuildOptions struct {
	EligibleCache cachecontract.Cache[string, []PredicateID]
}

// Build computes selectivity/weight, the field index, the inverted index,
// and returns the finalized, invariant-checked Model.
func (b *Builder) Build(opts BuildOptions) (*Model, error) {
	m := &Model{
		Fields:            b.Fields,
		Values:             b.Values,
		predicates:        b.predicates,
		predicateKeys:     b.predicateKeys,
		combinations:      b.combinations,
		invertedIndex:     make(map[PredicateID]*bitmap.Bitmap, len(b.predicates)),
		fieldToPredicates: make(map[dictionary.ID][]PredicateID),
		fieldMinWeight:    make(map[dictionary.ID]float64),
		eligibleCache:     opts.EligibleCache,
	}

	for cid, comb := range m.combinations {
		for _, pid := range comb.Predicates {
			bm, ok := m.invertedIndex[pid]
			if !ok {
				bm = bitmap.New()
				m.invertedIndex[pid] = bm
			}
			bm.Set(uint32(cid))
		}
	}

	computeSelectivityAndWeight(m.predicates)

	for pid, p := range m.predicates {
		m.fieldToPredicates[p.Field] = append(m.fieldToPredicates[p.Field], PredicateID(pid))
	}
	for field, ids := range m.fieldToPredicates {
		sort.Slice(ids, func(i, j int) bool {
			return m.predicates[ids[i]].Weight < m.predicates[ids[j]].Weight
		})
		m.fieldToPredicates[field] = ids
		minW := m.predicates[ids[0]].Weight
		for _, id := range ids[1:] {
			if m.predicates[id].Weight < minW {
				minW = m.predicates[id].Weight
			}
		}
		m.fieldMinWeight[field] = minW
	}

	if err := checkInvariants(m); err != nil {
		return nil, err
	}
	return m, nil
}

// defaultSelectivity assigns operator-class-ordered selectivity estimates:
// EQUAL_TO/IS_NULL < BETWEEN/GREATER_THAN/LESS_THAN < CONTAINS/REGEX, per
// the compiler's step-6 ordering. The absolute values are arbitrary; only
// the relative ordering is load-bearing (spec.md open question).
func defaultSelectivity(op predicate.Operator) float64 {
	switch op {
	case predicate.EqualTo, predicate.NotEqualTo, predicate.IsNull, predicate.IsNotNull:
		return 0.05
	case predicate.Between, predicate.GreaterThan, predicate.LessThan:
		return 0.30
	case predicate.Contains, predicate.Regex:
		return 0.60
	default:
		return 0.50
	}
}

func computeSelectivityAndWeight(predicates []predicate.Predicate) {
	for i := range predicates {
		if predicates[i].Selectivity == 0 {
			predicates[i].Selectivity = defaultSelectivity(predicates[i].Op)
		}
		predicates[i].Weight = 1 - predicates[i].Selectivity
	}
}
