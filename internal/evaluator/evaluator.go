// Package evaluator implements the Rule Evaluator: the counter-based
// algorithm that turns a base-condition evaluator's eligible-combination
// bitmap into matched rules, delegating numeric predicates to the batched
// evaluator and applying the configured selection strategy.
package evaluator

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rulelattice/engine/internal/baseeval"
	"github.com/rulelattice/engine/internal/event"
	"github.com/rulelattice/engine/internal/model"
	"github.com/rulelattice/engine/internal/numeric"
	"github.com/rulelattice/engine/internal/observability"
	"github.com/rulelattice/engine/pkg/bitmap"
	"github.com/rulelattice/engine/pkg/clock"
	"github.com/rulelattice/engine/pkg/dictionary"
	"github.com/rulelattice/engine/pkg/predicate"
)

const cacheNameEligiblePredicate = "eligible_predicate"

// SelectionStrategy controls which matched (rule_code, priority) entries
// Evaluate surfaces to the caller.
type SelectionStrategy uint8

const (
	// FirstMatch returns the single highest-priority entry, ties broken by
	// the lower combination id. This is the default strategy.
	FirstMatch SelectionStrategy = iota
	// AllMatches returns every matched entry.
	AllMatches
	// MaxPriorityPerFamily groups matches by rule_code and keeps the
	// highest-priority entry per group, ties broken by insertion order.
	MaxPriorityPerFamily
)

func (s SelectionStrategy) String() string {
	switch s {
	case FirstMatch:
		return "FIRST_MATCH"
	case AllMatches:
		return "ALL_MATCHES"
	case MaxPriorityPerFamily:
		return "MAX_PRIORITY_PER_FAMILY"
	default:
		return "UNKNOWN"
	}
}

// Match is one surfaced (rule_code, priority) entry.
type Match struct {
	RuleCode      string
	Priority      int
	Description   string
	CombinationID model.CombinationID
}

// MatchResult is the outcome of one Evaluate call.
type MatchResult struct {
	Matches             []Match
	PredicatesEvaluated int
	EvalNanos           int64
}

// EvaluationTrace carries the intermediate state of one evaluation, for
// callers that asked for evaluate_with_trace.
type EvaluationTrace struct {
	EligibleCombinations []model.CombinationID
	EligiblePredicates   []model.PredicateID
	TruePredicates       []model.PredicateID
	TouchedCombinations  []model.CombinationID
	FromCache            bool
}

// ExplanationPredicate is one predicate's verdict within an explain() call.
type ExplanationPredicate struct {
	Field    string
	Operator string
	Expected string
	Actual   string
	Passed   bool
	Reason   string
}

// ExplanationResult is the outcome of explain(event, rule_code).
type ExplanationResult struct {
	RuleCode   string
	Found      bool
	Matched    bool
	Predicates []ExplanationPredicate
}

// Options configures a new Evaluator. Every field has a usable default.
type Options struct {
	Base          *baseeval.Evaluator
	NumericGroups numeric.Groups
	Strategy      SelectionStrategy
	Clock         clock.Clock
}

// Evaluator is the constructed Rule Evaluator for one model.
type Evaluator struct {
	m        *model.Model
	base     *baseeval.Evaluator
	numeric  numeric.Groups
	strategy SelectionStrategy
	clk      clock.Clock
	encoder  *event.Encoder

	ctxPool sync.Pool
}

// New constructs an Evaluator bound to m.
func New(m *model.Model, opts Options) *Evaluator {
	base := opts.Base
	if base == nil {
		base = baseeval.New(m, baseeval.Options{})
	}
	groups := opts.NumericGroups
	if groups == nil {
		groups = numeric.Build(m)
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	e := &Evaluator{
		m:        m,
		base:     base,
		numeric:  groups,
		strategy: opts.Strategy,
		clk:      clk,
		encoder:  event.NewEncoder(m),
	}
	numCombinations := m.NumCombinations()
	e.ctxPool.New = func() any { return newEvaluationContext(numCombinations) }
	return e
}

// Evaluate runs the counter-based algorithm for one event and applies the
// configured selection strategy. A panic raised during evaluation is
// recovered and logged; the context is still reset and returned to the
// pool, and the call returns an empty MatchResult.
func (e *Evaluator) Evaluate(ev event.Event) (result MatchResult) {
	ctx := e.ctxPool.Get().(*EvaluationContext)
	defer func() {
		if r := recover(); r != nil {
			observability.Error(context.Background(), "evaluate: recovered panic for event %s: %v", ev.EventID, r)
			result = MatchResult{}
		}
		ctx.reset()
		e.ctxPool.Put(ctx)
	}()
	return e.evaluateWithContext(ev, ctx)
}

// EvaluateWithTrace runs Evaluate while also recording the intermediate
// eligible/true/touched sets for diagnostics.
func (e *Evaluator) EvaluateWithTrace(ev event.Event) (MatchResult, EvaluationTrace) {
	ctx := e.ctxPool.Get().(*EvaluationContext)
	ctx.trace = true
	result := e.evaluateWithContext(ev, ctx)
	trace := EvaluationTrace{
		EligibleCombinations: append([]model.CombinationID(nil), ctx.traceEligible...),
		EligiblePredicates:   append([]model.PredicateID(nil), ctx.traceEligiblePreds...),
		TruePredicates:       append([]model.PredicateID(nil), ctx.truePredicates...),
		TouchedCombinations:  append([]model.CombinationID(nil), ctx.touched...),
		FromCache:            ctx.traceFromCache,
	}
	ctx.reset()
	e.ctxPool.Put(ctx)
	return result, trace
}

// Explain locates any combination carrying ruleCode and evaluates every one
// of its predicates against ev, recording a per-predicate verdict. It
// bypasses the base-condition and eligible-predicate caches entirely since
// its purpose is diagnostic completeness, not hot-path throughput.
func (e *Evaluator) Explain(ev event.Event, ruleCode string) ExplanationResult {
	preds, ok := e.findCombinationForRule(ruleCode)
	if !ok {
		return ExplanationResult{RuleCode: ruleCode, Found: false}
	}

	enc := e.encoder.Encode(ev)
	entries := make([]ExplanationPredicate, 0, len(preds))
	matched := true
	for _, pid := range preds {
		p := e.m.Predicate(pid)
		passed, reason := evalScalar(p, enc)
		if !passed {
			matched = false
		}
		entries = append(entries, ExplanationPredicate{
			Field:    e.m.Fields.Value(p.Field),
			Operator: p.Op.String(),
			Expected: expectedString(p),
			Actual:   actualString(enc[p.Field]),
			Passed:   passed,
			Reason:   reason,
		})
	}

	return ExplanationResult{RuleCode: ruleCode, Found: true, Matched: matched, Predicates: entries}
}

func (e *Evaluator) findCombinationForRule(ruleCode string) ([]model.PredicateID, bool) {
	for c := 0; c < e.m.NumCombinations(); c++ {
		cid := model.CombinationID(c)
		for _, rm := range e.m.RulesForCombination(cid) {
			if rm.RuleCode == ruleCode {
				return e.m.CombinationPredicates(cid), true
			}
		}
	}
	return nil, false
}

func expectedString(p predicate.Predicate) string {
	switch p.Op {
	case predicate.IsNull, predicate.IsNotNull:
		return ""
	case predicate.GreaterThan:
		return ">" + strconv.FormatFloat(p.Num, 'g', -1, 64)
	case predicate.LessThan:
		return "<" + strconv.FormatFloat(p.Num, 'g', -1, 64)
	case predicate.Between:
		return fmt.Sprintf("[%s, %s]",
			strconv.FormatFloat(p.Range.Low, 'g', -1, 64),
			strconv.FormatFloat(p.Range.High, 'g', -1, 64))
	case predicate.Regex:
		return p.PatternSrc
	default:
		if p.Str != "" {
			return p.Str
		}
		return strconv.FormatFloat(p.Num, 'g', -1, 64)
	}
}

func actualString(v event.Value) string {
	switch v.Kind {
	case event.KindBool:
		return boolString(v.Bool)
	case event.KindInt64:
		return strconv.FormatInt(v.Int, 10)
	case event.KindFloat64:
		return strconv.FormatFloat(v.Flt, 'g', -1, 64)
	case event.KindString:
		return v.Str
	default:
		return "<missing>"
	}
}

// EvaluateBatch evaluates each event independently and in order.
func (e *Evaluator) EvaluateBatch(events []event.Event) []MatchResult {
	out := make([]MatchResult, len(events))
	for i, ev := range events {
		out[i] = e.Evaluate(ev)
	}
	return out
}

// evaluateWithContext is the §4.4 algorithm body, steps 1-8. ctx is caller
// owned: callers are responsible for resetting and returning it to the pool.
func (e *Evaluator) evaluateWithContext(ev event.Event, ctx *EvaluationContext) MatchResult {
	start := e.clk.Now()

	enc := e.encoder.Encode(ev)

	baseResult := e.base.Evaluate(enc)
	if ctx.trace {
		ctx.traceFromCache = baseResult.FromCache
	}
	if baseResult.Eligible.Cardinality() == 0 {
		return MatchResult{EvalNanos: int64(e.clk.Now().Sub(start))}
	}

	var eligibleCombinations []model.CombinationID
	baseResult.Eligible.Each(func(id uint32) {
		eligibleCombinations = append(eligibleCombinations, model.CombinationID(id))
	})
	if ctx.trace {
		ctx.traceEligible = append(ctx.traceEligible[:0], eligibleCombinations...)
	}

	eligiblePredicates := e.eligiblePredicateIDs(baseResult.Eligible)
	if ctx.trace {
		ctx.traceEligiblePreds = append(ctx.traceEligiblePreds[:0], eligiblePredicates...)
	}

	for _, pid := range eligiblePredicates {
		ctx.eligibleSet[pid] = struct{}{}
	}

	e.evaluatePredicates(eligiblePredicates, enc, ctx)

	for _, pid := range ctx.truePredicates {
		e.m.InvertedIndex(pid).Each(func(cid uint32) {
			if !baseResult.Eligible.Contains(cid) {
				return
			}
			c := model.CombinationID(cid)
			if !ctx.touchedSeen[c] {
				ctx.touchedSeen[c] = true
				ctx.touched = append(ctx.touched, c)
			}
			ctx.counters[c]++
		})
	}

	var matches []Match
	for _, c := range ctx.touched {
		if int(ctx.counters[c]) == e.m.PredicateCount(c) {
			for _, rm := range e.m.RulesForCombination(c) {
				matches = append(matches, Match{
					RuleCode:      rm.RuleCode,
					Priority:      rm.Priority,
					Description:   rm.Description,
					CombinationID: c,
				})
			}
		}
	}

	matches = applySelection(matches, e.strategy)

	return MatchResult{
		Matches:             matches,
		PredicatesEvaluated: len(eligiblePredicates),
		EvalNanos:           int64(e.clk.Now().Sub(start)),
	}
}

// evaluatePredicates evaluates every eligible predicate in sorted-id order
// (the spec's deterministic evaluation order), delegating grouped numeric
// predicates to the batched evaluator once per (field, operator) group and
// falling back to scalar evaluation for everything else.
func (e *Evaluator) evaluatePredicates(eligible []model.PredicateID, enc event.Encoded, ctx *EvaluationContext) {
	type groupKey struct {
		field dictionary.ID
		op    predicate.Operator
	}
	doneGroups := make(map[groupKey]bool)

	for _, pid := range eligible {
		p := e.m.Predicate(pid)
		if !p.Op.Numeric() {
			if ok, _ := evalScalar(p, enc); ok {
				ctx.truePredicates = append(ctx.truePredicates, pid)
			}
			continue
		}

		fieldGroups := e.numeric[p.Field]
		group := fieldGroups[p.Op]
		if group == nil {
			if ok, _ := evalScalar(p, enc); ok {
				ctx.truePredicates = append(ctx.truePredicates, pid)
			}
			continue
		}

		key := groupKey{p.Field, p.Op}
		if doneGroups[key] {
			continue
		}
		doneGroups[key] = true

		v, present := enc[p.Field]
		if !present {
			continue
		}
		fv, isNum := v.AsFloat64()
		if !isNum {
			continue
		}
		matched := group.Evaluate(fv, ctx.eligibleSet, ctx.numericIDScratch, ctx.numericValScratch)
		ctx.truePredicates = append(ctx.truePredicates, matched...)
	}
}

// eligiblePredicateIDs returns the sorted, deduplicated union of
// combination_predicates[c] for c in eligible, memoized on the model's
// eligible-predicate-set cache (§4.5) keyed by the eligible bitmap's
// content.
func (e *Evaluator) eligiblePredicateIDs(eligible *bitmap.Bitmap) []model.PredicateID {
	cache := e.m.EligibleCache()
	key := ""
	if cache != nil {
		key = eligibleCacheKey(eligible)
		if ids, ok := cache.Get(key); ok {
			observability.RecordCacheHit(context.Background(), cacheNameEligiblePredicate)
			return ids
		}
		observability.RecordCacheMiss(context.Background(), cacheNameEligiblePredicate)
	}

	seen := make(map[model.PredicateID]struct{})
	var out []model.PredicateID
	eligible.Each(func(cid uint32) {
		for _, pid := range e.m.CombinationPredicates(model.CombinationID(cid)) {
			if _, dup := seen[pid]; !dup {
				seen[pid] = struct{}{}
				out = append(out, pid)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	if cache != nil {
		cache.SetWithTTL(key, out, int64(len(out)), eligiblePredicateCacheTTL)
	}
	return out
}

const eligiblePredicateCacheTTL = 10 * time.Minute

func eligibleCacheKey(eligible *bitmap.Bitmap) string {
	h1 := fnv.New64a()
	h2 := fnv.New64a()
	var buf [4]byte
	eligible.Each(func(id uint32) {
		binary.LittleEndian.PutUint32(buf[:], id)
		h1.Write(buf[:])
		h2.Write([]byte{0xA5})
		h2.Write(buf[:])
	})
	var key [16]byte
	binary.LittleEndian.PutUint64(key[:8], h1.Sum64())
	binary.LittleEndian.PutUint64(key[8:], h2.Sum64())
	return string(key[:])
}

func applySelection(matches []Match, strategy SelectionStrategy) []Match {
	switch strategy {
	case AllMatches:
		return matches
	case MaxPriorityPerFamily:
		best := make(map[string]Match)
		var order []string
		for _, m := range matches {
			cur, ok := best[m.RuleCode]
			if !ok {
				order = append(order, m.RuleCode)
				best[m.RuleCode] = m
				continue
			}
			if m.Priority > cur.Priority {
				best[m.RuleCode] = m
			}
		}
		out := make([]Match, 0, len(order))
		for _, code := range order {
			out = append(out, best[code])
		}
		return out
	default: // FirstMatch
		if len(matches) == 0 {
			return nil
		}
		best := matches[0]
		for _, m := range matches[1:] {
			if m.Priority > best.Priority || (m.Priority == best.Priority && m.CombinationID < best.CombinationID) {
				best = m
			}
		}
		return []Match{best}
	}
}

func evalScalar(p predicate.Predicate, enc event.Encoded) (bool, string) {
	v, present := enc[p.Field]
	switch p.Op {
	case predicate.IsNull:
		if !present || v.Kind == event.KindNull {
			return true, "ok"
		}
		return false, "value_mismatch"
	case predicate.IsNotNull:
		if !present {
			return false, "field_missing"
		}
		if v.Kind != event.KindNull {
			return true, "ok"
		}
		return false, "value_mismatch"
	case predicate.EqualTo:
		if !present {
			return false, "field_missing"
		}
		if !comparableKind(v.Kind) {
			return false, "type_mismatch"
		}
		if valueEqualsPredicate(v, p) {
			return true, "ok"
		}
		return false, "value_mismatch"
	case predicate.NotEqualTo:
		if !present {
			return false, "field_missing"
		}
		if !comparableKind(v.Kind) {
			return false, "type_mismatch"
		}
		if !valueEqualsPredicate(v, p) {
			return true, "ok"
		}
		return false, "value_mismatch"
	case predicate.GreaterThan:
		if !present {
			return false, "field_missing"
		}
		fv, ok := v.AsFloat64()
		if !ok {
			return false, "type_mismatch"
		}
		if fv > p.Num {
			return true, "ok"
		}
		return false, "value_mismatch"
	case predicate.LessThan:
		if !present {
			return false, "field_missing"
		}
		fv, ok := v.AsFloat64()
		if !ok {
			return false, "type_mismatch"
		}
		if fv < p.Num {
			return true, "ok"
		}
		return false, "value_mismatch"
	case predicate.Between:
		if !present {
			return false, "field_missing"
		}
		fv, ok := v.AsFloat64()
		if !ok {
			return false, "type_mismatch"
		}
		if fv >= p.Range.Low && fv <= p.Range.High {
			return true, "ok"
		}
		return false, "range_violation"
	case predicate.Contains:
		if !present {
			return false, "field_missing"
		}
		s, ok := v.AsString()
		if !ok {
			return false, "type_mismatch"
		}
		if strings.Contains(s, p.Str) {
			return true, "ok"
		}
		return false, "value_mismatch"
	case predicate.Regex:
		if !present {
			return false, "field_missing"
		}
		s, ok := v.AsString()
		if !ok {
			return false, "type_mismatch"
		}
		if p.Pattern != nil && p.Pattern.MatchString(s) {
			return true, "ok"
		}
		return false, "regex_no_match"
	default:
		return false, "type_mismatch"
	}
}

func comparableKind(k event.ValueKind) bool {
	return k != event.KindNull
}

func valueEqualsPredicate(v event.Value, p predicate.Predicate) bool {
	switch v.Kind {
	case event.KindString:
		return v.Str == p.Str
	case event.KindBool:
		return p.Str == boolString(v.Bool)
	case event.KindInt64:
		f, _ := v.AsFloat64()
		return f == p.Num
	case event.KindFloat64:
		return v.Flt == p.Num
	default:
		return false
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
