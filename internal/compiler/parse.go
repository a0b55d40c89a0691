package compiler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rulelattice/engine/pkg/predicate"
	"github.com/rulelattice/engine/pkg/ruledef"
)

// scalarValue is a single discrete condition operand prior to dictionary
// encoding: either a string or a numeric value (booleans are normalized to
// the strings "true"/"false" here, matching how the base-condition
// evaluator compares them).
type scalarValue struct {
	Str   string
	Num   float64
	IsNum bool
}

// sortKey is a scalarValue's identity key for set operations and its
// fallback sort key: a zero-padded fixed-point string for numbers, the raw
// string otherwise. sortAndDedupScalars orders all-numeric lists by value
// and uses sortKey order when a list mixes numbers and strings.
func (v scalarValue) sortKey() string {
	if v.IsNum {
		return fmt.Sprintf("%020.6f", v.Num)
	}
	return v.Str
}

func (v scalarValue) equal(other scalarValue) bool {
	return v.IsNum == other.IsNum && v.Str == other.Str && v.Num == other.Num
}

// condition is one leaf condition after parsing, prior to dictionary
// encoding and prior to DNF expansion.
type condition struct {
	Field     string // upper-cased
	Op        predicate.Operator
	Val       scalarValue   // EQUAL_TO / NOT_EQUAL_TO / GREATER_THAN / LESS_THAN / CONTAINS
	Range     predicate.Range // BETWEEN
	AnyOf     []scalarValue // IS_ANY_OF, sorted by sortKey
	RegexSrc  string        // REGEX
}

// canonicalString is condition's signature contribution: used both to
// group rules by their non-IS_ANY_OF conditions (factorizer) and, combined
// across a rule's conditions, to detect identical rules.
func (c condition) canonicalString() string {
	switch c.Op {
	case predicate.IsAnyOf:
		parts := make([]string, len(c.AnyOf))
		for i, v := range c.AnyOf {
			parts[i] = v.sortKey()
		}
		return fmt.Sprintf("%s|%s|[%s]", c.Field, c.Op, strings.Join(parts, ","))
	case predicate.Between:
		return fmt.Sprintf("%s|%s|%g|%g", c.Field, c.Op, c.Range.Low, c.Range.High)
	case predicate.IsNull, predicate.IsNotNull:
		return fmt.Sprintf("%s|%s", c.Field, c.Op)
	case predicate.Regex:
		return fmt.Sprintf("%s|%s|%s", c.Field, c.Op, c.RegexSrc)
	default:
		return fmt.Sprintf("%s|%s|%s", c.Field, c.Op, c.Val.sortKey())
	}
}

// parsedRule is a RuleDefinition after stage 1/2: field names normalized,
// operators validated, values typed, disabled rules dropped, single-element
// IS_ANY_OF strength-reduced to EQUAL_TO.
type parsedRule struct {
	Code        string
	Priority    int
	Description string
	Conditions  []condition
}

func operatorFromString(s string) (predicate.Operator, bool) {
	switch s {
	case "EQUAL_TO":
		return predicate.EqualTo, true
	case "NOT_EQUAL_TO":
		return predicate.NotEqualTo, true
	case "GREATER_THAN":
		return predicate.GreaterThan, true
	case "LESS_THAN":
		return predicate.LessThan, true
	case "BETWEEN":
		return predicate.Between, true
	case "IS_ANY_OF":
		return predicate.IsAnyOf, true
	case "CONTAINS":
		return predicate.Contains, true
	case "REGEX":
		return predicate.Regex, true
	case "IS_NULL":
		return predicate.IsNull, true
	case "IS_NOT_NULL":
		return predicate.IsNotNull, true
	default:
		return 0, false
	}
}

func toScalarValue(v interface{}) (scalarValue, bool) {
	switch t := v.(type) {
	case string:
		return scalarValue{Str: t}, true
	case float64:
		return scalarValue{Num: t, IsNum: true}, true
	case int:
		return scalarValue{Num: float64(t), IsNum: true}, true
	case bool:
		return scalarValue{Str: strconv.FormatBool(t)}, true
	default:
		return scalarValue{}, false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

// parseCondition converts one wire-level Condition into a typed condition,
// validating the operator and the value's shape for that operator.
func parseCondition(ruleCode string, idx int, c ruledef.Condition) (condition, *Error) {
	op, ok := operatorFromString(c.Operator)
	if !ok {
		return condition{}, newError(InvalidOperator, ruleCode, idx, "unknown operator %q", c.Operator)
	}
	field := strings.ToUpper(c.Field)

	switch op {
	case predicate.IsNull, predicate.IsNotNull:
		return condition{Field: field, Op: op}, nil

	case predicate.Between:
		list, ok := c.Value.([]interface{})
		if !ok || len(list) != 2 {
			return condition{}, newError(InvalidValue, ruleCode, idx, "BETWEEN requires a 2-element [lo, hi] list")
		}
		lo, loOK := toFloat(list[0])
		hi, hiOK := toFloat(list[1])
		if !loOK || !hiOK {
			return condition{}, newError(InvalidValue, ruleCode, idx, "BETWEEN bounds must be numeric")
		}
		if lo > hi {
			return condition{}, newError(InvalidValue, ruleCode, idx, "BETWEEN lo (%g) must be <= hi (%g)", lo, hi)
		}
		return condition{Field: field, Op: op, Range: predicate.Range{Low: lo, High: hi}}, nil

	case predicate.IsAnyOf:
		list, ok := c.Value.([]interface{})
		if !ok {
			return condition{}, newError(IsAnyOfNotList, ruleCode, idx, "IS_ANY_OF value must be a non-empty list")
		}
		if len(list) == 0 {
			return condition{}, newError(IsAnyOfNotList, ruleCode, idx, "IS_ANY_OF value must be non-empty")
		}
		values := make([]scalarValue, 0, len(list))
		for _, raw := range list {
			sv, ok := toScalarValue(raw)
			if !ok {
				return condition{}, newError(InvalidValue, ruleCode, idx, "IS_ANY_OF element %v has unsupported type", raw)
			}
			values = append(values, sv)
		}
		values = sortAndDedupScalars(values)
		if len(values) == 1 {
			// Strength reduction, per stage 2.
			return condition{Field: field, Op: predicate.EqualTo, Val: values[0]}, nil
		}
		return condition{Field: field, Op: op, AnyOf: values}, nil

	case predicate.Contains, predicate.Regex:
		s, ok := c.Value.(string)
		if !ok {
			return condition{}, newError(InvalidValue, ruleCode, idx, "%s requires a string value", op)
		}
		if op == predicate.Regex {
			return condition{Field: field, Op: op, RegexSrc: s}, nil
		}
		return condition{Field: field, Op: op, Val: scalarValue{Str: s}}, nil

	case predicate.GreaterThan, predicate.LessThan:
		n, ok := toFloat(c.Value)
		if !ok {
			return condition{}, newError(InvalidValue, ruleCode, idx, "%s requires a numeric value", op)
		}
		return condition{Field: field, Op: op, Val: scalarValue{Num: n, IsNum: true}}, nil

	default: // EQUAL_TO, NOT_EQUAL_TO
		sv, ok := toScalarValue(c.Value)
		if !ok {
			return condition{}, newError(InvalidValue, ruleCode, idx, "%s value has unsupported type", op)
		}
		return condition{Field: field, Op: op, Val: sv}, nil
	}
}

func sortAndDedupScalars(values []scalarValue) []scalarValue {
	allNum := true
	for _, v := range values {
		if !v.IsNum {
			allNum = false
			break
		}
	}
	sort.Slice(values, func(i, j int) bool {
		if allNum {
			return values[i].Num < values[j].Num
		}
		return values[i].sortKey() < values[j].sortKey()
	})
	out := values[:0:0]
	for i, v := range values {
		if i == 0 || !v.equal(values[i-1]) {
			out = append(out, v)
		}
	}
	return out
}

// parseRule runs stage 1 (decode + normalize) and the non-factoring part of
// stage 2 (drop disabled, reject empty, validate conditions) for a single
// RuleDefinition.
func parseRule(def ruledef.RuleDefinition) (*parsedRule, *Error) {
	if !def.IsEnabled() {
		return nil, nil
	}
	if len(def.Conditions) == 0 {
		return nil, newError(EmptyRule, def.RuleCode, -1, "rule has no conditions")
	}
	conds := make([]condition, 0, len(def.Conditions))
	for i, c := range def.Conditions {
		parsed, err := parseCondition(def.RuleCode, i, c)
		if err != nil {
			return nil, err
		}
		conds = append(conds, parsed)
	}
	return &parsedRule{Code: def.RuleCode, Priority: def.Priority, Description: def.Description, Conditions: conds}, nil
}
