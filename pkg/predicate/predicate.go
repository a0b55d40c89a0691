// Package predicate defines the atomic condition value object shared by the
// compiler, the inverted index, and both evaluators. A Predicate pairs a
// dictionary-encoded field with an operator and a value; predicates compare
// for dedup purposes on (field, operator, value) alone, never on weight or
// selectivity.
package predicate

import (
	"fmt"
	"strconv"

	"github.com/coregx/coregex"
	"github.com/rulelattice/engine/pkg/dictionary"
)

// Operator enumerates the predicate operators spec'd for the engine.
type Operator uint8

const (
	EqualTo Operator = iota
	NotEqualTo
	GreaterThan
	LessThan
	Between
	IsAnyOf
	IsNull
	IsNotNull
	Contains
	Regex
)

func (op Operator) String() string {
	switch op {
	case EqualTo:
		return "EQUAL_TO"
	case NotEqualTo:
		return "NOT_EQUAL_TO"
	case GreaterThan:
		return "GREATER_THAN"
	case LessThan:
		return "LESS_THAN"
	case Between:
		return "BETWEEN"
	case IsAnyOf:
		return "IS_ANY_OF"
	case IsNull:
		return "IS_NULL"
	case IsNotNull:
		return "IS_NOT_NULL"
	case Contains:
		return "CONTAINS"
	case Regex:
		return "REGEX"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", op)
	}
}

// Static reports whether op can be decided from a single attribute lookup
// plus a direct comparison, independent of the numeric batching path —
// EQUAL_TO/NOT_EQUAL_TO/IS_NULL/IS_NOT_NULL are clustered by the
// base-condition evaluator; the rest require the numeric or string paths.
func (op Operator) Static() bool {
	switch op {
	case EqualTo, NotEqualTo, IsNull, IsNotNull:
		return true
	default:
		return false
	}
}

// Numeric reports whether op is evaluated by the batched numeric evaluator.
func (op Operator) Numeric() bool {
	switch op {
	case GreaterThan, LessThan, Between:
		return true
	default:
		return false
	}
}

// Range holds the two numeric bounds for a BETWEEN predicate (inclusive).
type Range struct {
	Low  float64
	High float64
}

// Predicate is an atomic, immutable condition: field OP value.
type Predicate struct {
	Field       dictionary.ID
	Op          Operator
	Num         float64        // GREATER_THAN / LESS_THAN operand, and numeric EQUAL_TO / NOT_EQUAL_TO operand
	Range       Range          // BETWEEN operand
	Str         string         // EQUAL_TO/NOT_EQUAL_TO/CONTAINS string operand
	StrID       dictionary.ID  // dictionary id of Str, when the value was interned
	Pattern     *coregex.Regex // REGEX compiled pattern
	PatternSrc  string         // REGEX source, kept for canonical key + debugging
	Weight      float64        // debug/explain only, never part of identity
	Selectivity float64        // debug/explain only, never part of identity
}

// Key is the canonical dedup identity of a Predicate: (field, operator,
// value) only. Two Predicate values with different Weight/Selectivity but
// identical Key are the same predicate for compilation purposes.
type Key string

// CanonicalKey returns p's dedup identity. It intentionally excludes Weight
// and Selectivity.
func (p Predicate) CanonicalKey() Key {
	switch p.Op {
	case IsNull, IsNotNull:
		return Key(fmt.Sprintf("%d|%s", p.Field, p.Op))
	case GreaterThan, LessThan:
		return Key(fmt.Sprintf("%d|%s|%s", p.Field, p.Op, strconv.FormatFloat(p.Num, 'g', -1, 64)))
	case Between:
		return Key(fmt.Sprintf("%d|%s|%s|%s", p.Field, p.Op,
			strconv.FormatFloat(p.Range.Low, 'g', -1, 64),
			strconv.FormatFloat(p.Range.High, 'g', -1, 64)))
	case Regex:
		return Key(fmt.Sprintf("%d|%s|%s", p.Field, p.Op, p.PatternSrc))
	default:
		// EQUAL_TO/NOT_EQUAL_TO/CONTAINS may carry either a string or a
		// numeric operand (Str is empty for the latter); both must be part
		// of the key or distinct numeric equality predicates on the same
		// field would wrongly dedup together.
		return Key(fmt.Sprintf("%d|%s|%s|%s", p.Field, p.Op, p.Str, strconv.FormatFloat(p.Num, 'g', -1, 64)))
	}
}

// Equal compares two predicates field-by-field, including the debug-only
// Weight/Selectivity. Use CanonicalKey for dedup; use Equal only when a
// byte-for-byte comparison (e.g. in tests) is required.
func (p Predicate) Equal(other Predicate) bool {
	return p.CanonicalKey() == other.CanonicalKey() &&
		p.Weight == other.Weight &&
		p.Selectivity == other.Selectivity
}

// CompileRegex compiles src via coregex and returns a Predicate ready for
// the REGEX operator.
func CompileRegex(field dictionary.ID, src string) (Predicate, error) {
	re, err := coregex.Compile(src)
	if err != nil {
		return Predicate{}, fmt.Errorf("predicate: compiling regex %q: %w", src, err)
	}
	return Predicate{Field: field, Op: Regex, Pattern: re, PatternSrc: src}, nil
}
