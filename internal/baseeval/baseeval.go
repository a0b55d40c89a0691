// Package baseeval implements the Base-Condition Evaluator: it groups
// combinations by their shared static-predicate prefix (equality/nullity
// checks on low-cardinality fields) and caches, per event, the set of
// combinations that survive those static checks. In realistic rulesets the
// static prefix is shared across many rules, so caching its outcome avoids
// re-evaluating the same equality checks for every combination on every
// event.
package baseeval

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rulelattice/engine/internal/event"
	"github.com/rulelattice/engine/internal/model"
	"github.com/rulelattice/engine/internal/observability"
	"github.com/rulelattice/engine/pkg/bitmap"
	"github.com/rulelattice/engine/pkg/cachecontract"
	"github.com/rulelattice/engine/pkg/clock"
	"github.com/rulelattice/engine/pkg/dictionary"
	"github.com/rulelattice/engine/pkg/predicate"
)

const cacheNameBaseCondition = "base_condition"

// DefaultTTL is the default lifetime of a cached eligibility bitmap, per
// the design's "5 minutes unless configured otherwise" default.
const DefaultTTL = 5 * time.Minute

// smallKeyMaxPredicates and smallKeyMaxBytes bound the inline-serialization
// fast path; keys above either threshold go through the pooled-buffer path
// instead. Both paths serialize identically and therefore hash identically
// for the same semantic input (property P5) — they differ only in where
// the serialization buffer comes from.
const (
	smallKeyMaxPredicates = 16
	smallKeyMaxBytes      = 256
)

// Set is a BaseConditionSet: a group of combinations sharing one static
// predicate set.
type Set struct {
	ID                   uint32
	StaticPredicateIDs   []model.PredicateID // sorted
	Fields               []dictionary.ID     // distinct fields referenced, for presence filtering
	AffectedCombinations *bitmap.Bitmap
	AvgSelectivity       float64
}

// Result is what Evaluate returns for one event.
type Result struct {
	Eligible            *bitmap.Bitmap
	PredicatesEvaluated int
	FromCache           bool
	EvalNanos           int64
}

var bufPool = sync.Pool{New: func() any { return make([]byte, 0, 4096) }}

// Evaluator is the constructed Base-Condition Evaluator for one model.
type Evaluator struct {
	m *model.Model

	sets                      []*Set
	rulesWithNoBaseConditions *bitmap.Bitmap

	cache cachecontract.Cache[string, *bitmap.Bitmap]
	ttl   time.Duration
	clk   clock.Clock
}

// Options configures a new Evaluator.
type Options struct {
	Cache cachecontract.Cache[string, *bitmap.Bitmap]
	TTL   time.Duration
	Clock clock.Clock
}

// New constructs an Evaluator by partitioning m's combinations into static
// base-condition groups, per §4.3's construction algorithm.
func New(m *model.Model, opts Options) *Evaluator {
	ttl := opts.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	e := &Evaluator{
		m:                         m,
		rulesWithNoBaseConditions: bitmap.New(),
		cache:                     opts.Cache,
		ttl:                       ttl,
		clk:                       clk,
	}

	type bucketEntry struct {
		ids []model.PredicateID
		set *Set
	}
	buckets := make(map[[2]uint64][]*bucketEntry)

	for c := 0; c < m.NumCombinations(); c++ {
		cid := model.CombinationID(c)
		var static []model.PredicateID
		for _, pid := range m.CombinationPredicates(cid) {
			if m.Predicate(pid).Op.Static() {
				static = append(static, pid)
			}
		}
		if len(static) == 0 {
			e.rulesWithNoBaseConditions.Set(uint32(cid))
			continue
		}
		sort.Slice(static, func(i, j int) bool { return static[i] < static[j] })

		h1, h2 := hashIDPair(static)
		key := [2]uint64{h1, h2}
		var found *Set
		for _, entry := range buckets[key] {
			if idsEqual(entry.ids, static) {
				found = entry.set
				break
			}
		}
		if found == nil {
			found = &Set{
				ID:                   uint32(len(e.sets)),
				StaticPredicateIDs:   static,
				Fields:               fieldsOf(m, static),
				AffectedCombinations: bitmap.New(),
			}
			e.sets = append(e.sets, found)
			buckets[key] = append(buckets[key], &bucketEntry{ids: static, set: found})
		}
		found.AffectedCombinations.Set(uint32(cid))
	}

	for _, s := range e.sets {
		s.AvgSelectivity = avgSelectivity(m, s.StaticPredicateIDs)
	}

	return e
}

func idsEqual(a, b []model.PredicateID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func fieldsOf(m *model.Model, ids []model.PredicateID) []dictionary.ID {
	seen := make(map[dictionary.ID]struct{})
	var out []dictionary.ID
	for _, id := range ids {
		f := m.Predicate(id).Field
		if _, ok := seen[f]; !ok {
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

func avgSelectivity(m *model.Model, ids []model.PredicateID) float64 {
	if len(ids) == 0 {
		return 0
	}
	var sum float64
	for _, id := range ids {
		sum += m.Predicate(id).Selectivity
	}
	return sum / float64(len(ids))
}

// hashIDPair computes the group-identity hash for a sorted predicate-id
// list: a primary 64-bit FNV-1a digest over the little-endian id bytes,
// plus a secondary alternate digest (FNV-1a over the same bytes in
// reverse iteration order) used only to disambiguate a primary-hash
// collision between two distinct sets.
func hashIDPair(ids []model.PredicateID) (uint64, uint64) {
	h1 := fnv.New64a()
	h2 := fnv.New64a()
	var buf [4]byte
	for _, id := range ids {
		binary.LittleEndian.PutUint32(buf[:], uint32(id))
		h1.Write(buf[:])
	}
	for i := len(ids) - 1; i >= 0; i-- {
		binary.LittleEndian.PutUint32(buf[:], uint32(ids[i]))
		h2.Write(buf[:])
	}
	return h1.Sum64(), h2.Sum64()
}

// Evaluate runs the per-event base-condition algorithm described in
// spec §4.3: filter applicable sets, consult the cache, and on a miss,
// compute and cache the eligibility bitmap.
func (e *Evaluator) Evaluate(enc event.Encoded) Result {
	start := e.clk.Now()

	applicable := e.applicableSets(enc)
	sort.Slice(applicable, func(i, j int) bool {
		return applicable[i].AvgSelectivity < applicable[j].AvgSelectivity
	})

	keyH1, keyH2 := e.cacheKey(applicable, enc)
	cacheKey := formatCacheKey(keyH1, keyH2)

	if e.cache != nil {
		if bm, ok := e.cache.Get(cacheKey); ok {
			observability.RecordCacheHit(context.Background(), cacheNameBaseCondition)
			return Result{Eligible: bm, PredicatesEvaluated: 0, FromCache: true, EvalNanos: int64(e.clk.Now().Sub(start))}
		}
		observability.RecordCacheMiss(context.Background(), cacheNameBaseCondition)
	}

	eligible := e.rulesWithNoBaseConditions.Or(bitmap.New())
	for _, s := range applicable {
		eligible = eligible.Or(s.AffectedCombinations)
	}

	evaluated := 0
	for _, s := range applicable {
		allTrue := true
		for _, pid := range s.StaticPredicateIDs {
			evaluated++
			if !evalStatic(e.m.Predicate(pid), enc) {
				allTrue = false
				break // short-circuit within the set
			}
		}
		if !allTrue {
			eligible = subtract(eligible, s.AffectedCombinations)
		}
	}

	if e.cache != nil {
		e.cache.SetWithTTL(cacheKey, eligible, 1, e.ttl)
	}

	return Result{Eligible: eligible, PredicatesEvaluated: evaluated, FromCache: false, EvalNanos: int64(e.clk.Now().Sub(start))}
}

// applicableSets returns the sets whose referenced fields are all present
// on the event; sets missing a required field are skipped, never failed.
func (e *Evaluator) applicableSets(enc event.Encoded) []*Set {
	var out []*Set
	for _, s := range e.sets {
		allPresent := true
		for _, f := range s.Fields {
			if _, ok := enc[f]; !ok {
				allPresent = false
				break
			}
		}
		if allPresent {
			out = append(out, s)
		}
	}
	return out
}

func subtract(b, remove *bitmap.Bitmap) *bitmap.Bitmap {
	out := bitmap.New()
	b.Each(func(id uint32) {
		if !remove.Contains(id) {
			out.Set(id)
		}
	})
	return out
}

// evalStatic evaluates one static (EQUAL_TO/NOT_EQUAL_TO/IS_NULL/
// IS_NOT_NULL) predicate against the encoded event. Missing attributes and
// type mismatches both evaluate to false, never panic.
func evalStatic(p predicate.Predicate, enc event.Encoded) bool {
	v, present := enc[p.Field]
	switch p.Op {
	case predicate.IsNull:
		return !present || v.Kind == event.KindNull
	case predicate.IsNotNull:
		return present && v.Kind != event.KindNull
	case predicate.EqualTo:
		if !present {
			return false
		}
		return valueEqualsPredicate(v, p)
	case predicate.NotEqualTo:
		if !present {
			return false
		}
		return !valueEqualsPredicate(v, p)
	default:
		return false
	}
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

// cacheKey computes the 128-bit (two 64-bit FNV-1a digests) fingerprint of
// the sorted predicate-id list across applicable sets paired with the
// event's values on those fields. Small inputs serialize into a stack
// array; larger ones borrow a pooled buffer — both produce identical bytes
// for identical semantic input, so the hash is identical regardless of
// which path ran.
func (e *Evaluator) cacheKey(applicable []*Set, enc event.Encoded) (uint64, uint64) {
	totalPredicates := 0
	for _, s := range applicable {
		totalPredicates += len(s.StaticPredicateIDs)
	}

	if totalPredicates <= smallKeyMaxPredicates {
		var stack [smallKeyMaxBytes]byte
		n := e.serializeKey(stack[:0], applicable, enc)
		if len(n) <= smallKeyMaxBytes {
			return fnv1a(n), fnv1aAlt(n)
		}
	}

	buf := bufPool.Get().([]byte)[:0]
	buf = e.serializeKey(buf, applicable, enc)
	h1, h2 := fnv1a(buf), fnv1aAlt(buf)
	bufPool.Put(buf) //nolint:staticcheck // buffer is copied out via the hash, safe to return
	return h1, h2
}

func (e *Evaluator) serializeKey(buf []byte, applicable []*Set, enc event.Encoded) []byte {
	var scratch [4]byte
	for _, s := range applicable {
		for _, pid := range s.StaticPredicateIDs {
			binary.LittleEndian.PutUint32(scratch[:], uint32(pid))
			buf = append(buf, scratch[:]...)
			field := e.m.Predicate(pid).Field
			v, ok := enc[field]
			if !ok {
				buf = append(buf, 0)
				continue
			}
			buf = appendValue(buf, v)
		}
	}
	return buf
}

func appendValue(buf []byte, v event.Value) []byte {
	buf = append(buf, byte(v.Kind)+1)
	switch v.Kind {
	case event.KindBool:
		if v.Bool {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case event.KindInt64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v.Int))
		buf = append(buf, b[:]...)
	case event.KindFloat64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.Flt))
		buf = append(buf, b[:]...)
	case event.KindString:
		buf = append(buf, v.Str...)
	}
	return buf
}

func formatCacheKey(h1, h2 uint64) string {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], h1)
	binary.LittleEndian.PutUint64(b[8:], h2)
	return string(b[:])
}

func fnv1a(data []byte) uint64 {
	h := fnv.New64a()
	h.Write(data)
	return h.Sum64()
}

// fnv1aAlt computes the secondary 64-bit digest used to widen the cache key
// to 128 bits, by hashing the data with a one-byte salt prefix so it
// diverges from fnv1a's digest even though both are FNV-1a.
func fnv1aAlt(data []byte) uint64 {
	h := fnv.New64a()
	h.Write([]byte{0xA5})
	h.Write(data)
	return h.Sum64()
}
