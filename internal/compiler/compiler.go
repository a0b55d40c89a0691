// Package compiler implements the Rule Compiler: parse, validate,
// subset-factor, DNF-expand, deduplicate, index, and finalize a ruleset
// into an immutable EngineModel.
package compiler

import (
	"github.com/rulelattice/engine/internal/model"
	"github.com/rulelattice/engine/pkg/cachecontract"
	"github.com/rulelattice/engine/pkg/dictionary"
	"github.com/rulelattice/engine/pkg/predicate"
	"github.com/rulelattice/engine/pkg/ruledef"
)

// Options configures a compilation run.
type Options struct {
	// EligibleCache backs the resulting model's eligible-predicate-set
	// cache (§4.5). Nil disables that cache.
	EligibleCache cachecontract.Cache[string, []model.PredicateID]
}

// Compile runs the full pipeline with no stage listener.
func Compile(source ruledef.Source, opts Options) (*model.Model, error) {
	return CompileWithListener(source, noopListener{}, opts)
}

// CompileWithListener runs the full pipeline, reporting stage_start/
// stage_complete to l for each stage.
func CompileWithListener(source ruledef.Source, l Listener, opts Options) (*model.Model, error) {
	if l == nil {
		l = noopListener{}
	}

	defs, err := runParseStage(source, l)
	if err != nil {
		return nil, err
	}

	parsed, err := runValidateStage(defs, l)
	if err != nil {
		return nil, err
	}

	parsed = runFactorStage(parsed, l)

	fields := dictionary.New()
	values := dictionary.New()
	builder := model.NewBuilder(fields, values)

	combinationCount, err := runExpandAndRegisterStages(parsed, builder, fields, values, l)
	if err != nil {
		return nil, err
	}

	var m *model.Model
	if err := timeStage(l, StageIndex, func() map[string]int {
		return map[string]int{"combinations": combinationCount, "fields": fields.Len(), "values": values.Len()}
	}, func() error { return nil }); err != nil {
		return nil, err
	}

	if err := timeStage(l, StageFinalize, func() map[string]int { return nil }, func() error {
		var buildErr error
		m, buildErr = builder.Build(model.BuildOptions{EligibleCache: opts.EligibleCache})
		return buildErr
	}); err != nil {
		return nil, err
	}

	return m, nil
}

func runParseStage(source ruledef.Source, l Listener) ([]ruledef.RuleDefinition, error) {
	var defs []ruledef.RuleDefinition
	err := timeStage(l, StageParse, func() map[string]int { return map[string]int{"rules_read": len(defs)} }, func() error {
		var srcErr error
		defs, srcErr = source.Rules()
		if srcErr != nil {
			return &Error{Kind: IO, ConditionIndex: -1, Message: srcErr.Error()}
		}
		return nil
	})
	return defs, err
}

func runValidateStage(defs []ruledef.RuleDefinition, l Listener) ([]*parsedRule, error) {
	var parsed []*parsedRule
	err := timeStage(l, StageValidate, func() map[string]int { return map[string]int{"rules_accepted": len(parsed)} }, func() error {
		seenCodes := make(map[string]bool)
		for _, def := range defs {
			rule, parseErr := parseRule(def)
			if parseErr != nil {
				return parseErr
			}
			if rule == nil {
				continue // disabled
			}
			if seenCodes[rule.Code] {
				// DuplicateRuleCode is a warning, not fatal; Validate's report
				// surfaces it explicitly, Compile just keeps the first.
				continue
			}
			seenCodes[rule.Code] = true
			parsed = append(parsed, rule)
		}
		return nil
	})
	return parsed, err
}

func runFactorStage(parsed []*parsedRule, l Listener) []*parsedRule {
	_ = timeStage(l, StageFactor, func() map[string]int { return map[string]int{"rules": len(parsed)} }, func() error {
		parsed = factorRules(parsed)
		return nil
	})
	return parsed
}

// runExpandAndRegisterStages performs DNF expansion and predicate/
// combination registration together, since expansion only has meaning in
// terms of the ids it registers.
func runExpandAndRegisterStages(parsed []*parsedRule, builder *model.Builder, fields, values *dictionary.Dictionary, l Listener) (int, error) {
	combinationCount := 0
	err := timeStage(l, StageExpand, func() map[string]int { return map[string]int{"combinations": combinationCount} }, func() error {
		for _, rule := range parsed {
			for _, leaves := range expandDNF(rule.Conditions) {
				ids := make([]model.PredicateID, 0, len(leaves))
				for _, leaf := range leaves {
					p, convErr := toPredicate(leaf, fields, values)
					if convErr != nil {
						return newError(InvalidValue, rule.Code, -1, "%s", convErr.Error())
					}
					ids = append(ids, builder.RegisterPredicate(p))
				}
				builder.RegisterCombination(ids, model.RuleMatch{
					RuleCode:    rule.Code,
					Priority:    rule.Priority,
					Description: rule.Description,
				})
				combinationCount++
			}
		}
		return nil
	})
	return combinationCount, err
}

// expandDNF enumerates the Cartesian product of conds, treating IS_ANY_OF
// as a disjunction of EQUAL_TO alternatives. Each returned slice is one
// fully conjunctive combination.
func expandDNF(conds []condition) [][]condition {
	result := [][]condition{{}}
	for _, c := range conds {
		alternatives := alternativesFor(c)
		next := make([][]condition, 0, len(result)*len(alternatives))
		for _, prefix := range result {
			for _, alt := range alternatives {
				combo := make([]condition, len(prefix), len(prefix)+1)
				copy(combo, prefix)
				combo = append(combo, alt)
				next = append(next, combo)
			}
		}
		result = next
	}
	return result
}

func alternativesFor(c condition) []condition {
	if c.Op != predicate.IsAnyOf {
		return []condition{c}
	}
	alts := make([]condition, len(c.AnyOf))
	for i, v := range c.AnyOf {
		alts[i] = condition{Field: c.Field, Op: predicate.EqualTo, Val: v}
	}
	return alts
}

// toPredicate converts one expanded leaf condition into a Predicate,
// dictionary-encoding the field and, for string-valued EQUAL_TO/
// NOT_EQUAL_TO, the value.
func toPredicate(c condition, fields, values *dictionary.Dictionary) (predicate.Predicate, error) {
	fieldID := fields.Intern(c.Field)

	switch c.Op {
	case predicate.IsNull, predicate.IsNotNull:
		return predicate.Predicate{Field: fieldID, Op: c.Op}, nil
	case predicate.GreaterThan, predicate.LessThan:
		return predicate.Predicate{Field: fieldID, Op: c.Op, Num: c.Val.Num}, nil
	case predicate.Between:
		return predicate.Predicate{Field: fieldID, Op: c.Op, Range: c.Range}, nil
	case predicate.Regex:
		return predicate.CompileRegex(fieldID, c.RegexSrc)
	case predicate.Contains:
		return predicate.Predicate{Field: fieldID, Op: c.Op, Str: c.Val.Str}, nil
	default: // EQUAL_TO, NOT_EQUAL_TO
		if c.Val.IsNum {
			return predicate.Predicate{Field: fieldID, Op: c.Op, Num: c.Val.Num}, nil
		}
		strID := values.Intern(c.Val.Str)
		return predicate.Predicate{Field: fieldID, Op: c.Op, Str: c.Val.Str, StrID: strID}, nil
	}
}

// Validate runs stages 1-2 plus a dry expansion, never constructing
// indices, per the validation-only path described in §4.1.
func Validate(source ruledef.Source) (*ValidationReport, error) {
	defs, err := source.Rules()
	if err != nil {
		return nil, &Error{Kind: IO, ConditionIndex: -1, Message: err.Error()}
	}

	report := &ValidationReport{IsValid: true}
	seenCodes := make(map[string]bool)
	var parsed []*parsedRule

	for _, def := range defs {
		if !def.IsEnabled() {
			continue
		}
		if len(def.Conditions) == 0 {
			report.IsValid = false
			report.Errors = append(report.Errors, ValidationIssue{RuleCode: def.RuleCode, Message: "rule has no conditions", ConditionIndex: -1})
			continue
		}
		if seenCodes[def.RuleCode] {
			report.Warnings = append(report.Warnings, ValidationWarning{RuleCode: def.RuleCode, Message: "duplicate rule_code", Severity: "warning"})
			continue
		}

		var conds []condition
		ruleValid := true
		for i, c := range def.Conditions {
			parsedCond, condErr := parseCondition(def.RuleCode, i, c)
			if condErr != nil {
				report.IsValid = false
				report.Errors = append(report.Errors, ValidationIssue{
					RuleCode: def.RuleCode, Message: condErr.Message, Field: c.Field, ConditionIndex: i,
				})
				ruleValid = false
				continue
			}
			conds = append(conds, parsedCond)
		}
		if !ruleValid {
			continue
		}
		seenCodes[def.RuleCode] = true
		parsed = append(parsed, &parsedRule{Code: def.RuleCode, Priority: def.Priority, Description: def.Description, Conditions: conds})
	}

	parsed = factorRules(parsed)
	for _, rule := range parsed {
		_ = expandDNF(rule.Conditions) // dry expansion: result discarded; expandDNF cannot fail and no predicates are encoded
	}

	return report, nil
}
