package evaluator

import "github.com/rulelattice/engine/internal/model"

// EvaluationContext is the thread-local scratch state for one evaluation:
// the counters array, touched-combination tracking, the eligible-predicate
// membership set used to densify numeric groups, and numeric scratch
// buffers. Evaluators pool these per worker and reset() between calls so
// the counters, touched set and eligible set are reused rather than
// reallocated. Evaluation still allocates per call: the encoded event, the
// numeric group bookkeeping and results, and the match list.
type EvaluationContext struct {
	counters    []uint16 // index = CombinationID
	touchedSeen []bool   // index = CombinationID
	touched     []model.CombinationID

	truePredicates []model.PredicateID
	eligibleSet    map[model.PredicateID]struct{}

	numericIDScratch  []model.PredicateID
	numericValScratch []float64

	// trace gates the extra bookkeeping EvaluateWithTrace asks for; plain
	// Evaluate calls leave it false and skip the copies below.
	trace              bool
	traceEligible      []model.CombinationID
	traceEligiblePreds []model.PredicateID
	traceFromCache     bool
}

func newEvaluationContext(numCombinations int) *EvaluationContext {
	return &EvaluationContext{
		counters:    make([]uint16, numCombinations),
		touchedSeen: make([]bool, numCombinations),
		eligibleSet: make(map[model.PredicateID]struct{}),
	}
}

// reset zeros only the slots touched during the prior evaluation (per the
// spec's "reset() zeros only touched slots"), leaving the context bitwise
// equal to a fresh one on every observable field.
func (ctx *EvaluationContext) reset() {
	for _, c := range ctx.touched {
		ctx.counters[c] = 0
		ctx.touchedSeen[c] = false
	}
	ctx.touched = ctx.touched[:0]

	ctx.truePredicates = ctx.truePredicates[:0]
	for pid := range ctx.eligibleSet {
		delete(ctx.eligibleSet, pid)
	}

	ctx.trace = false
	ctx.traceEligible = ctx.traceEligible[:0]
	ctx.traceEligiblePreds = ctx.traceEligiblePreds[:0]
	ctx.traceFromCache = false
}
