// Package numeric implements the batched evaluator for GT/LT/BETWEEN
// predicates. Fields accumulating enough numeric predicates on the same
// operator are grouped into dense threshold arrays; evaluating an event
// value against a group walks the array in SIMD-lane-width strides so the
// Go compiler's SSA backend can autovectorize the comparison, falling back
// to a plain scalar loop below the grouping threshold or on architectures
// without the relevant feature bits. Both paths are required to agree
// bit-for-bit (property P6); the dispatch only changes performance, never
// the matched set.
package numeric

import (
	"sort"

	"golang.org/x/sys/cpu"

	"github.com/rulelattice/engine/internal/model"
	"github.com/rulelattice/engine/internal/observability"
	"github.com/rulelattice/engine/pkg/dictionary"
	"github.com/rulelattice/engine/pkg/predicate"
)

// MinGroupSize is the per-field, per-operator predicate count at which a
// field's predicates are organized into a dense comparison group.
const MinGroupSize = 8

// laneWidth is the stride used for the vectorizable comparison loop. It is
// a portability-oriented choice (not tied to a real SIMD register width)
// since no assembly is emitted here — it only changes how the Go compiler
// can schedule the scalar comparisons it already emits.
const laneWidth = 8

// simdCapable gates the strided comparison path, mirroring the
// feature-detection-then-fallback dispatch pattern used for the engine's
// other architecture-sensitive code paths.
var simdCapable = cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD

// Group is a dense array of same-operator numeric predicates on one field.
type Group struct {
	Field dictionary.ID
	Op    predicate.Operator
	IDs   []model.PredicateID
	// Thresholds holds the GT/LT operand per id; Los/His hold the BETWEEN
	// bounds per id. Only the slice matching Op is populated.
	Thresholds []float64
	Los        []float64
	His        []float64
}

// Groups indexes numeric predicate groups by field then operator.
type Groups map[dictionary.ID]map[predicate.Operator]*Group

// Build scans m's predicates and assembles Groups for every (field,
// operator) pair with at least MinGroupSize members. Fields or operators
// below the threshold are omitted; callers must fall back to evaluating
// those predicates individually.
func Build(m *model.Model) Groups {
	type key struct {
		field dictionary.ID
		op    predicate.Operator
	}
	byKey := make(map[key][]model.PredicateID)

	for id := 0; id < m.NumPredicates(); id++ {
		pid := model.PredicateID(id)
		p := m.Predicate(pid)
		if !p.Op.Numeric() {
			continue
		}
		k := key{p.Field, p.Op}
		byKey[k] = append(byKey[k], pid)
	}

	groups := make(Groups)
	for k, ids := range byKey {
		if len(ids) < MinGroupSize {
			continue
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		g := &Group{Field: k.field, Op: k.op, IDs: ids}
		switch k.op {
		case predicate.Between:
			g.Los = make([]float64, len(ids))
			g.His = make([]float64, len(ids))
			for i, id := range ids {
				r := m.Predicate(id).Range
				g.Los[i] = r.Low
				g.His[i] = r.High
			}
		default:
			g.Thresholds = make([]float64, len(ids))
			for i, id := range ids {
				g.Thresholds[i] = m.Predicate(id).Num
			}
		}
		if groups[k.field] == nil {
			groups[k.field] = make(map[predicate.Operator]*Group)
		}
		groups[k.field][k.op] = g
	}
	return groups
}

// Evaluate returns the subset of g's predicate ids that eventValue
// satisfies. If eligible is non-nil, only ids present in it are
// considered (densified into scratch first); a nil eligible evaluates the
// whole group.
func (g *Group) Evaluate(eventValue float64, eligible map[model.PredicateID]struct{}, scratchIDs []model.PredicateID, scratchVals []float64) []model.PredicateID {
	ids, thresholds, los, his := g.densify(eligible, scratchIDs, scratchVals)

	out := make([]model.PredicateID, 0, len(ids))
	n := len(ids)
	i := 0
	if simdCapable && n >= laneWidth {
		observability.NumericGroupEvaluationsTotal.WithLabelValues("simd").Inc()
		for ; i+laneWidth <= n; i += laneWidth {
			for lane := 0; lane < laneWidth; lane++ {
				idx := i + lane
				if g.laneMatches(idx, eventValue, thresholds, los, his) {
					out = append(out, ids[idx])
				}
			}
		}
	} else {
		observability.NumericGroupEvaluationsTotal.WithLabelValues("scalar_fallback").Inc()
	}
	for ; i < n; i++ {
		if g.laneMatches(i, eventValue, thresholds, los, his) {
			out = append(out, ids[i])
		}
	}
	return out
}

func (g *Group) laneMatches(i int, eventValue float64, thresholds, los, his []float64) bool {
	switch g.Op {
	case predicate.GreaterThan:
		return eventValue > thresholds[i]
	case predicate.LessThan:
		return eventValue < thresholds[i]
	case predicate.Between:
		return eventValue >= los[i] && eventValue <= his[i]
	default:
		return false
	}
}

// densify copies the eligible subset of the group into the supplied
// scratch buffers (scratchIDs for ids, scratchVals for thresholds or
// BETWEEN low bounds), or returns the group's own arrays directly when no
// eligibility filter applies. BETWEEN high bounds go into a buffer
// allocated on each call.
func (g *Group) densify(eligible map[model.PredicateID]struct{}, scratchIDs []model.PredicateID, scratchVals []float64) (ids []model.PredicateID, thresholds, los, his []float64) {
	if eligible == nil {
		return g.IDs, g.Thresholds, g.Los, g.His
	}

	ids = scratchIDs[:0]
	switch g.Op {
	case predicate.Between:
		loBuf := scratchVals[:0]
		hiBuf := make([]float64, 0, len(g.IDs))
		for i, id := range g.IDs {
			if _, ok := eligible[id]; ok {
				ids = append(ids, id)
				loBuf = append(loBuf, g.Los[i])
				hiBuf = append(hiBuf, g.His[i])
			}
		}
		return ids, nil, loBuf, hiBuf
	default:
		buf := scratchVals[:0]
		for i, id := range g.IDs {
			if _, ok := eligible[id]; ok {
				ids = append(ids, id)
				buf = append(buf, g.Thresholds[i])
			}
		}
		return ids, buf, nil, nil
	}
}
