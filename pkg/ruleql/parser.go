package ruleql

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rulelattice/engine/pkg/ruledef"
)

// Parse parses a ruleql document into the same RuleDefinition shape the
// JSON/YAML sources produce, ready for the compiler.
func Parse(input string) ([]ruledef.RuleDefinition, error) {
	doc, err := grammarParser.ParseString("", input)
	if err != nil {
		return nil, fmt.Errorf("ruleql: %w", err)
	}
	out := make([]ruledef.RuleDefinition, 0, len(doc.Rules))
	for _, r := range doc.Rules {
		def, err := toRuleDefinition(r)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

// ParseFile reads path and parses it as a ruleql document.
func ParseFile(path string) ([]ruledef.RuleDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ruleql: reading %s: %w", path, err)
	}
	return Parse(string(data))
}

func toRuleDefinition(r *ruleNode) (ruledef.RuleDefinition, error) {
	def := ruledef.RuleDefinition{RuleCode: r.Code}

	if r.Priority != "" {
		n, err := strconv.Atoi(r.Priority)
		if err != nil {
			return ruledef.RuleDefinition{}, fmt.Errorf("ruleql: rule %s: priority %q is not an integer", r.Code, r.Priority)
		}
		def.Priority = n
	}
	if r.Description != "" {
		def.Description = unquote(r.Description)
	}
	if r.Disabled {
		disabled := false
		def.Enabled = &disabled
	}

	conds := make([]ruledef.Condition, 0, len(r.Conditions))
	for _, c := range r.Conditions {
		cond, err := toCondition(r.Code, c)
		if err != nil {
			return ruledef.RuleDefinition{}, err
		}
		conds = append(conds, cond)
	}
	def.Conditions = conds
	return def, nil
}

func toCondition(ruleCode string, c *condition) (ruledef.Condition, error) {
	switch {
	case c.Null != nil:
		op := "IS_NULL"
		if c.Null.Not {
			op = "IS_NOT_NULL"
		}
		return ruledef.Condition{Field: c.Field, Operator: op}, nil

	case c.Between != nil:
		lo, err := strconv.ParseFloat(c.Between.Low, 64)
		if err != nil {
			return ruledef.Condition{}, fmt.Errorf("ruleql: rule %s: between lower bound %q is not numeric", ruleCode, c.Between.Low)
		}
		hi, err := strconv.ParseFloat(c.Between.High, 64)
		if err != nil {
			return ruledef.Condition{}, fmt.Errorf("ruleql: rule %s: between upper bound %q is not numeric", ruleCode, c.Between.High)
		}
		return ruledef.Condition{Field: c.Field, Operator: "BETWEEN", Value: []interface{}{lo, hi}}, nil

	case c.In != nil:
		values := make([]interface{}, len(c.In.Values))
		for i, raw := range c.In.Values {
			values[i] = literalValue(raw)
		}
		return ruledef.Condition{Field: c.Field, Operator: "IS_ANY_OF", Value: values}, nil

	case c.Contains != nil:
		return ruledef.Condition{Field: c.Field, Operator: "CONTAINS", Value: unquote(c.Contains.Value)}, nil

	case c.Matches != nil:
		return ruledef.Condition{Field: c.Field, Operator: "REGEX", Value: unquote(c.Matches.Pattern)}, nil

	case c.Compare != nil:
		op, ok := compareOperator(c.Compare.Operator)
		if !ok {
			return ruledef.Condition{}, fmt.Errorf("ruleql: rule %s: unsupported operator %q", ruleCode, c.Compare.Operator)
		}
		return ruledef.Condition{Field: c.Field, Operator: op, Value: literalValue(c.Compare.Value)}, nil

	default:
		return ruledef.Condition{}, fmt.Errorf("ruleql: rule %s: field %s has no recognized condition shape", ruleCode, c.Field)
	}
}

func compareOperator(tok string) (string, bool) {
	switch tok {
	case "==":
		return "EQUAL_TO", true
	case "!=":
		return "NOT_EQUAL_TO", true
	case ">":
		return "GREATER_THAN", true
	case "<":
		return "LESS_THAN", true
	default:
		return "", false
	}
}

// literalValue converts one raw ruleql token (quoted string, number, or bare
// identifier) into the interface{} the compiler's operator parsers expect:
// a quoted token always stays a string, an unquoted token that parses as a
// number becomes a float64, the bare words true/false become bools, and any
// other bare word (enum-like identifiers) is passed through as its literal
// string.
func literalValue(raw string) interface{} {
	if strings.HasPrefix(raw, `"`) {
		return unquote(raw)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	default:
		return raw
	}
}

func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}
	return strings.NewReplacer(`\"`, `"`, `\\`, `\`).Replace(s)
}
