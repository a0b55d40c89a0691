package ruleql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleRule(t *testing.T) {
	defs, err := Parse(`
		rule R1 priority 100 description "high value transfer" {
			STATUS == "ACTIVE" and AMOUNT > 5000
		}
	`)
	require.NoError(t, err)
	require.Len(t, defs, 1)

	r := defs[0]
	assert.Equal(t, "R1", r.RuleCode)
	assert.Equal(t, 100, r.Priority)
	assert.Equal(t, "high value transfer", r.Description)
	require.Len(t, r.Conditions, 2)

	assert.Equal(t, "STATUS", r.Conditions[0].Field)
	assert.Equal(t, "EQUAL_TO", r.Conditions[0].Operator)
	assert.Equal(t, "ACTIVE", r.Conditions[0].Value)

	assert.Equal(t, "AMOUNT", r.Conditions[1].Field)
	assert.Equal(t, "GREATER_THAN", r.Conditions[1].Operator)
	assert.Equal(t, float64(5000), r.Conditions[1].Value)
}

func TestParseIsAnyOf(t *testing.T) {
	defs, err := Parse(`rule R2 { COUNTRY in [US, CA, UK] }`)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	cond := defs[0].Conditions[0]
	assert.Equal(t, "IS_ANY_OF", cond.Operator)
	assert.Equal(t, []interface{}{"US", "CA", "UK"}, cond.Value)
}

func TestParseBetween(t *testing.T) {
	defs, err := Parse(`rule R3 { AMOUNT between [100, 500.5] }`)
	require.NoError(t, err)
	cond := defs[0].Conditions[0]
	assert.Equal(t, "BETWEEN", cond.Operator)
	assert.Equal(t, []interface{}{float64(100), float64(500.5)}, cond.Value)
}

func TestParseContainsAndMatches(t *testing.T) {
	defs, err := Parse(`
		rule R4 {
			DESCRIPTION contains "wire transfer" and REFERENCE matches "^TXN-[0-9]+$"
		}
	`)
	require.NoError(t, err)
	conds := defs[0].Conditions
	require.Len(t, conds, 2)
	assert.Equal(t, "CONTAINS", conds[0].Operator)
	assert.Equal(t, "wire transfer", conds[0].Value)
	assert.Equal(t, "REGEX", conds[1].Operator)
	assert.Equal(t, "^TXN-[0-9]+$", conds[1].Value)
}

func TestParseIsNullAndIsNotNull(t *testing.T) {
	defs, err := Parse(`rule R5 { MIDDLE_NAME is null and LAST_NAME is not null }`)
	require.NoError(t, err)
	conds := defs[0].Conditions
	require.Len(t, conds, 2)
	assert.Equal(t, "IS_NULL", conds[0].Operator)
	assert.Equal(t, "IS_NOT_NULL", conds[1].Operator)
}

func TestParseDisabledRule(t *testing.T) {
	defs, err := Parse(`rule R6 disabled { STATUS == "ACTIVE" }`)
	require.NoError(t, err)
	require.NotNil(t, defs[0].Enabled)
	assert.False(t, defs[0].IsEnabled())
}

func TestParseMultipleRules(t *testing.T) {
	defs, err := Parse(`
		rule R1 { STATUS == "ACTIVE" }
		rule R2 { STATUS == "INACTIVE" }
	`)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "R1", defs[0].RuleCode)
	assert.Equal(t, "R2", defs[1].RuleCode)
}

func TestParseNotEqualAndLessThan(t *testing.T) {
	defs, err := Parse(`rule R7 { STATUS != "CLOSED" and AMOUNT < 10 }`)
	require.NoError(t, err)
	conds := defs[0].Conditions
	assert.Equal(t, "NOT_EQUAL_TO", conds[0].Operator)
	assert.Equal(t, "LESS_THAN", conds[1].Operator)
}

func TestParseRejectsMalformedInput(t *testing.T) {
	_, err := Parse(`rule R1 { STATUS ~~ "ACTIVE" }`)
	assert.Error(t, err)
}

func TestParseBooleanLiteral(t *testing.T) {
	defs, err := Parse(`rule R8 { VERIFIED == true }`)
	require.NoError(t, err)
	assert.Equal(t, true, defs[0].Conditions[0].Value)
}
