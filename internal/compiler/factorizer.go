package compiler

import (
	"sort"
	"strings"

	"github.com/rulelattice/engine/pkg/predicate"
)

// maxFactorPasses bounds the fixed-point loop so a bug in the grouping
// logic degrades to "stops factoring early" rather than hanging.
const maxFactorPasses = 64

// factorRules implements the SmartIsAnyOfFactorizer (spec §4.1 step 3):
// iteratively groups rules sharing an identical non-IS_ANY_OF condition
// signature and, within a group, rewrites a shared IS_ANY_OF field so the
// intersection of its value sets becomes its own condition. This exposes
// shared predicate ids across rules for later deduplication without
// changing any rule's matching semantics.
func factorRules(rules []*parsedRule) []*parsedRule {
	current := rules
	for pass := 0; pass < maxFactorPasses; pass++ {
		next, changed := factorOnePass(current)
		if !changed {
			return next
		}
		current = next
	}
	return current
}

func factorOnePass(rules []*parsedRule) ([]*parsedRule, bool) {
	groups := make(map[string][]int)
	for i, r := range rules {
		groups[signature(r)] = append(groups[signature(r)], i)
	}

	replacement := make(map[int][]*parsedRule)
	changed := false

	for _, idxs := range groups {
		if len(idxs) < 2 {
			continue
		}
		field, ok := sharedIsAnyOfField(rules, idxs)
		if !ok {
			continue
		}
		intersection := intersectIsAnyOf(rules, idxs, field)
		if len(intersection) < 2 {
			continue
		}
		for _, i := range idxs {
			split, didSplit := splitRuleForField(rules[i], field, intersection)
			if didSplit {
				replacement[i] = split
				changed = true
			}
		}
	}

	if !changed {
		return rules, false
	}
	out := make([]*parsedRule, 0, len(rules))
	for i, r := range rules {
		if split, ok := replacement[i]; ok {
			out = append(out, split...)
		} else {
			out = append(out, r)
		}
	}
	return out, true
}

// signature is the canonical, order-independent representation of a rule's
// non-IS_ANY_OF conditions, used to group rules that differ only in their
// IS_ANY_OF sets.
func signature(r *parsedRule) string {
	var parts []string
	for _, c := range r.Conditions {
		if c.Op == predicate.IsAnyOf {
			continue
		}
		parts = append(parts, c.canonicalString())
	}
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

// sharedIsAnyOfField returns a field that carries an IS_ANY_OF condition in
// every rule indexed by idxs, preferring the alphabetically smallest field
// name for determinism (property P8).
func sharedIsAnyOfField(rules []*parsedRule, idxs []int) (string, bool) {
	counts := make(map[string]int)
	for _, i := range idxs {
		seen := make(map[string]bool)
		for _, c := range rules[i].Conditions {
			if c.Op == predicate.IsAnyOf && !seen[c.Field] {
				counts[c.Field]++
				seen[c.Field] = true
			}
		}
	}
	var candidates []string
	for field, n := range counts {
		if n == len(idxs) {
			candidates = append(candidates, field)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	return candidates[0], true
}

func intersectIsAnyOf(rules []*parsedRule, idxs []int, field string) []scalarValue {
	var result []scalarValue
	for n, i := range idxs {
		vals := isAnyOfValues(rules[i], field)
		if n == 0 {
			result = append(result, vals...)
			continue
		}
		result = intersectScalars(result, vals)
	}
	return sortAndDedupScalars(result)
}

func isAnyOfValues(r *parsedRule, field string) []scalarValue {
	for _, c := range r.Conditions {
		if c.Op == predicate.IsAnyOf && c.Field == field {
			return c.AnyOf
		}
	}
	return nil
}

func intersectScalars(a, b []scalarValue) []scalarValue {
	bSet := make(map[string]bool, len(b))
	for _, v := range b {
		bSet[v.sortKey()] = true
	}
	var out []scalarValue
	for _, v := range a {
		if bSet[v.sortKey()] {
			out = append(out, v)
		}
	}
	return out
}

// splitRuleForField splits r's IS_ANY_OF condition on field into a rule
// matching the group's shared intersection and, if any of r's own values
// fall outside it, a second rule matching the remainder. The two returned
// rules carry the same rule_code/priority/description and are OR'd by
// virtue of DNF expansion registering separate combinations for each --
// together they match exactly what r's original IS_ANY_OF matched, but the
// shared branch now carries the same predicate set as every other rule in
// its factoring group, letting combination registration dedup across them.
// Returns ok=false if field carries no IS_ANY_OF in r, or intersection is
// not a proper subset of r's own value set (nothing to narrow).
func splitRuleForField(r *parsedRule, field string, intersection []scalarValue) ([]*parsedRule, bool) {
	idx := -1
	for i, c := range r.Conditions {
		if c.Op == predicate.IsAnyOf && c.Field == field {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, false
	}
	original := r.Conditions[idx]
	if len(intersection) == len(original.AnyOf) {
		return nil, false // intersection already is r's full set
	}
	remainder := subtractScalars(original.AnyOf, intersection)

	split := []*parsedRule{
		withCondition(r, idx, condition{Field: field, Op: predicate.IsAnyOf, AnyOf: intersection}),
	}
	switch len(remainder) {
	case 0:
		// unreachable given the length check above, kept for clarity
	case 1:
		split = append(split, withCondition(r, idx, condition{Field: field, Op: predicate.EqualTo, Val: remainder[0]}))
	default:
		split = append(split, withCondition(r, idx, condition{Field: field, Op: predicate.IsAnyOf, AnyOf: remainder}))
	}
	return split, true
}

// withCondition returns a copy of r with Conditions[idx] replaced.
func withCondition(r *parsedRule, idx int, replacement condition) *parsedRule {
	conds := make([]condition, len(r.Conditions))
	copy(conds, r.Conditions)
	conds[idx] = replacement
	return &parsedRule{Code: r.Code, Priority: r.Priority, Description: r.Description, Conditions: conds}
}

func subtractScalars(a, remove []scalarValue) []scalarValue {
	removeSet := make(map[string]bool, len(remove))
	for _, v := range remove {
		removeSet[v.sortKey()] = true
	}
	var out []scalarValue
	for _, v := range a {
		if !removeSet[v.sortKey()] {
			out = append(out, v)
		}
	}
	return out
}
