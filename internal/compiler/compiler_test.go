package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulelattice/engine/internal/model"
	"github.com/rulelattice/engine/pkg/ruledef"
)

func defs(rules ...ruledef.RuleDefinition) ruledef.StaticSource {
	return ruledef.StaticSource{Defs: rules}
}

func cond(field, op string, value interface{}) ruledef.Condition {
	return ruledef.Condition{Field: field, Operator: op, Value: value}
}

func TestCompileScenarioS1PrioritySelection(t *testing.T) {
	src := defs(
		ruledef.RuleDefinition{RuleCode: "R1", Priority: 100, Conditions: []ruledef.Condition{
			cond("STATUS", "EQUAL_TO", "ACTIVE"),
			cond("AMOUNT", "GREATER_THAN", float64(5000)),
		}},
		ruledef.RuleDefinition{RuleCode: "R2", Priority: 50, Conditions: []ruledef.Condition{
			cond("STATUS", "EQUAL_TO", "ACTIVE"),
			cond("AMOUNT", "GREATER_THAN", float64(100)),
		}},
	)

	m, err := Compile(src, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, m.NumCombinations())
}

func TestCompileScenarioS2IsAnyOfExpansion(t *testing.T) {
	src := defs(ruledef.RuleDefinition{RuleCode: "R3", Conditions: []ruledef.Condition{
		cond("COUNTRY", "IS_ANY_OF", []interface{}{"US", "CA", "UK"}),
	}})

	m, err := Compile(src, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, m.NumCombinations(), "IS_ANY_OF with 3 values expands to 3 combinations")
	for c := 0; c < m.NumCombinations(); c++ {
		rules := m.RulesForCombination(model.CombinationID(c))
		assert.Equal(t, "R3", rules[0].RuleCode)
	}
}

func TestCompileScenarioS3SubsetFactoring(t *testing.T) {
	src := defs(
		ruledef.RuleDefinition{RuleCode: "R4", Conditions: []ruledef.Condition{
			cond("AMT", "GREATER_THAN", float64(10)),
			cond("COUNTRY", "IS_ANY_OF", []interface{}{"US", "CA", "UK"}),
		}},
		ruledef.RuleDefinition{RuleCode: "R5", Conditions: []ruledef.Condition{
			cond("AMT", "GREATER_THAN", float64(10)),
			cond("COUNTRY", "IS_ANY_OF", []interface{}{"US", "CA", "MX"}),
		}},
	)

	m, err := Compile(src, Options{})
	require.NoError(t, err)

	// Factoring exposes a shared COUNTRY IN [CA, US] predicate; both rules'
	// US/CA combinations should therefore dedup onto shared combinations
	// carrying both rule codes.
	sharedCount := 0
	for c := 0; c < m.NumCombinations(); c++ {
		rules := m.RulesForCombination(model.CombinationID(c))
		if len(rules) == 2 {
			sharedCount++
		}
	}
	assert.Equal(t, 2, sharedCount, "US and CA combinations should be shared by both R4 and R5")
}

func TestCompileStrengthReducesSingleElementIsAnyOf(t *testing.T) {
	src := defs(ruledef.RuleDefinition{RuleCode: "R1", Conditions: []ruledef.Condition{
		cond("COUNTRY", "IS_ANY_OF", []interface{}{"US"}),
	}})

	m, err := Compile(src, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, m.NumCombinations())
	preds := m.CombinationPredicates(0)
	require.Len(t, preds, 1)
	assert.Equal(t, "EQUAL_TO", m.Predicate(preds[0]).Op.String())
}

func TestCompileRejectsUnknownOperator(t *testing.T) {
	src := defs(ruledef.RuleDefinition{RuleCode: "R1", Conditions: []ruledef.Condition{
		cond("STATUS", "FUZZY_MATCH", "x"),
	}})

	_, err := Compile(src, Options{})
	require.Error(t, err)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, InvalidOperator, ce.Kind)
}

func TestCompileRejectsEmptyConditions(t *testing.T) {
	src := defs(ruledef.RuleDefinition{RuleCode: "R1"})
	_, err := Compile(src, Options{})
	require.Error(t, err)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, EmptyRule, ce.Kind)
}

func TestCompileRejectsBetweenWithLoGreaterThanHi(t *testing.T) {
	src := defs(ruledef.RuleDefinition{RuleCode: "R1", Conditions: []ruledef.Condition{
		cond("AMOUNT", "BETWEEN", []interface{}{float64(500), float64(100)}),
	}})
	_, err := Compile(src, Options{})
	require.Error(t, err)
}

func TestCompileSkipsDisabledRules(t *testing.T) {
	disabled := false
	src := defs(ruledef.RuleDefinition{RuleCode: "R1", Enabled: &disabled, Conditions: []ruledef.Condition{
		cond("STATUS", "EQUAL_TO", "ACTIVE"),
	}})
	m, err := Compile(src, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, m.NumCombinations())
}

func TestCompileEmptyRulesetProducesEmptyModel(t *testing.T) {
	m, err := Compile(defs(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, m.NumCombinations())
}

func TestCompileIsDeterministic(t *testing.T) {
	src := defs(
		ruledef.RuleDefinition{RuleCode: "R1", Conditions: []ruledef.Condition{cond("STATUS", "EQUAL_TO", "ACTIVE")}},
		ruledef.RuleDefinition{RuleCode: "R2", Conditions: []ruledef.Condition{cond("COUNTRY", "IS_ANY_OF", []interface{}{"US", "CA"})}},
	)

	m1, err := Compile(src, Options{})
	require.NoError(t, err)
	m2, err := Compile(src, Options{})
	require.NoError(t, err)

	assert.Equal(t, m1.NumCombinations(), m2.NumCombinations())
	assert.Equal(t, m1.NumPredicates(), m2.NumPredicates())
	for c := 0; c < m1.NumCombinations(); c++ {
		assert.Equal(t, m1.CombinationPredicates(model.CombinationID(c)), m2.CombinationPredicates(model.CombinationID(c)))
	}
}

func TestValidateReportsErrorsWithoutBuildingModel(t *testing.T) {
	src := defs(ruledef.RuleDefinition{RuleCode: "R1", Conditions: []ruledef.Condition{
		cond("STATUS", "NOT_AN_OPERATOR", "x"),
	}})
	report, err := Validate(src)
	require.NoError(t, err)
	assert.False(t, report.IsValid)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "R1", report.Errors[0].RuleCode)
}

func TestValidateWarnsOnDuplicateRuleCode(t *testing.T) {
	src := defs(
		ruledef.RuleDefinition{RuleCode: "R1", Conditions: []ruledef.Condition{cond("STATUS", "EQUAL_TO", "ACTIVE")}},
		ruledef.RuleDefinition{RuleCode: "R1", Conditions: []ruledef.Condition{cond("STATUS", "EQUAL_TO", "INACTIVE")}},
	)
	report, err := Validate(src)
	require.NoError(t, err)
	assert.True(t, report.IsValid)
	require.Len(t, report.Warnings, 1)
}
