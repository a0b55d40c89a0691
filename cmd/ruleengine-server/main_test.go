package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleSourceDefaultsToEmptyStaticSourceWhenNoPathGiven(t *testing.T) {
	src, err := ruleSource("")
	require.NoError(t, err)
	defs, err := src.Rules()
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestRuleSourceLoadsJSONFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	body := `{"rules":[{"rule_code":"R1","conditions":[{"field":"status","operator":"EQUAL_TO","value":"ACTIVE"}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	src, err := ruleSource(path)
	require.NoError(t, err)
	defs, err := src.Rules()
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "R1", defs[0].RuleCode)
}

func TestRuleSourceLoadsRuleqlFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.ruleql")
	body := `rule R1 priority 10 { status == "ACTIVE" and amount > 500 }`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	src, err := ruleSource(path)
	require.NoError(t, err)
	defs, err := src.Rules()
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "R1", defs[0].RuleCode)
	assert.Equal(t, 10, defs[0].Priority)
}

func TestAddrDefaultsTo8080(t *testing.T) {
	assert.Equal(t, ":8080", addr(0))
	assert.Equal(t, ":9090", addr(9090))
}
