package cleaner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spm-edge/spmedge/internal/spmedge"
)

func TestCompileRulesOrderAndSkips(t *testing.T) {
	rules := []*spmedge.CleaningRule{
		{ID: 3, Pattern: "c", Kind: spmedge.RuleExact, Priority: 10, Context: "all", Active: true},
		{ID: 1, Pattern: "a", Kind: spmedge.RuleExact, Priority: 5, Context: "all", Active: true},
		{ID: 2, Pattern: "b", Kind: spmedge.RuleExact, Priority: 5, Context: "all", Active: true},
		{ID: 4, Pattern: "[", Kind: spmedge.RuleRegex, Priority: 1, Context: "all", Active: true},
		{ID: 5, Pattern: "d", Kind: spmedge.RuleExact, Priority: 1, Context: "sidebar", Active: true},
		{ID: 6, Pattern: "e", Kind: spmedge.RuleExact, Priority: 1, Context: "all", Condition: "len(", Active: true},
	}
	compiled := CompileRules(rules)
	require.Len(t, compiled, 3)
	assert.Equal(t, int64(1), compiled[0].rule.ID)
	assert.Equal(t, int64(2), compiled[1].rule.ID)
	assert.Equal(t, int64(3), compiled[2].rule.ID)
}

func TestApplyRulesContextAndCondition(t *testing.T) {
	sections := []*spmedge.Section{
		{Kind: spmedge.SectionBody, Raw: "remove NOISE from body"},
		{Kind: spmedge.SectionTable, Raw: "| NOISE | value |"},
		{Kind: spmedge.SectionBody, Category: "terms_and_conditions", Raw: "short"},
	}
	rules := CompileRules([]*spmedge.CleaningRule{
		{ID: 1, Pattern: "NOISE", Replacement: "signal", Kind: spmedge.RuleExact, Context: "body", Active: true},
		{ID: 2, Pattern: "short", Replacement: "long", Kind: spmedge.RuleExact, Context: "all",
			Condition: `category == "terms_and_conditions"`, Active: true},
	})

	CleanSections(sections, rules)
	assert.Equal(t, "remove signal from body", sections[0].Cleaned)
	assert.Equal(t, "| NOISE | value |", sections[1].Cleaned) // body-scoped rule skips tables
	assert.Equal(t, "long", sections[2].Cleaned)
	assert.Equal(t, "remove NOISE from body", sections[0].Raw) // Raw never mutates
}

func TestRegexRuleMultiline(t *testing.T) {
	sections := []*spmedge.Section{
		{Kind: spmedge.SectionBody, Raw: "DRAFT line one\nDRAFT line two"},
	}
	rules := CompileRules([]*spmedge.CleaningRule{
		{ID: 1, Pattern: `^DRAFT\s+`, Replacement: "", Kind: spmedge.RuleRegex, Context: "all", Active: true},
	})
	CleanSections(sections, rules)
	assert.Equal(t, "line one\nline two", sections[0].Cleaned)
}

func TestWhitespacePolicy(t *testing.T) {
	tests := []struct {
		name string
		kind spmedge.SectionKind
		in   string
		want string
	}{
		{"body collapses runs", spmedge.SectionBody, "a   b\t\tc  \n  d  e", "a b c\nd e"},
		{"table preserved", spmedge.SectionTable, "| a |   b |", "| a |   b |"},
		{"formula preserved", spmedge.SectionFormula, "5%  per  deal", "5%  per  deal"},
		{"short footer dropped", spmedge.SectionFooter, "Page 3 of 12", ""},
		{"long footer kept", spmedge.SectionFooter, "This confidential document is governed by the retention policy.", "This confidential document is governed by the retention policy."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, applyWhitespacePolicy(tt.kind, tt.in))
		})
	}
}

func TestReconstructDeterministic(t *testing.T) {
	content := "# Plan Overview\n\nThe plan   covers fiscal 2025.\n\nPage 3\n\n# Payouts\n\nPaid quarterly via payroll."
	rules := CompileRules(nil)

	build := func() string {
		sections := BuildSections(content)
		CleanSections(sections, rules)
		return Reconstruct(sections)
	}
	first := build()
	assert.Equal(t, first, build())
	assert.Contains(t, first, "# Plan Overview\nThe plan covers fiscal 2025.")
	assert.NotContains(t, first, "Page 3")
	assert.NotContains(t, first, "\n\n\n")
}

func TestExtractComponents(t *testing.T) {
	content := "# Plan Overview\nPlan Name: FY25 Enterprise Sales Plan for fiscal year 2025.\n\n# Effective Dates\nEffective Date: January 1, 2025 through 12/31/2025.\n\n# Payouts\nPayouts are paid quarterly.\n\n# Compensation Components\nTarget Incentive: 40% of base salary.\n"
	sections := BuildSections(content)
	CleanSections(sections, CompileRules(nil))

	schema, err := spmedge.ParseSchema("type-1", []byte(`{
		"plan_info": {"fields": {"title": {"type": "string"}}},
		"effective_dates": {"fields": {"start": {"type": "date"}}},
		"components": {"type": "string"}
	}`))
	require.NoError(t, err)

	out := ExtractComponents(sections, schema)
	require.NotNil(t, out)

	info, ok := out["plan_info"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2025", info["plan_year"])

	dates, ok := out["effective_dates"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "January 1, 2025", dates["start"])
	assert.Equal(t, "12/31/2025", dates["end"])

	// categories the schema does not name fold under "components"
	comps, ok := out["components"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, comps, spmedge.CategoryPayoutSchedule)
	assert.Contains(t, comps, spmedge.CategoryCompComponents)

	assert.Nil(t, ExtractComponents(sections, nil))
}
