package cleaner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spm-edge/spmedge/internal/spmedge"
)

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line  string
		kind  spmedge.SectionKind
		level int
	}{
		{"# Plan Overview", spmedge.SectionHeader, 1},
		{"## Eligibility", spmedge.SectionHeader, 2},
		{"### Details", spmedge.SectionHeader, 3},
		{"COMPENSATION PLAN 2025", spmedge.SectionHeader, 1},
		{"1. Introduction", spmedge.SectionHeader, 2},
		{"IV. Governance", spmedge.SectionHeader, 2},
		{"A. Definitions", spmedge.SectionHeader, 3},
		{"Plan Overview", spmedge.SectionHeader, 1},
		{"Terms & Conditions:", spmedge.SectionHeader, 1},
		{"| Tier | Rate |", spmedge.SectionTable, 0},
		{"|------|------|", spmedge.SectionTable, 0},
		{"+------+------+", spmedge.SectionTable, 0},
		{"5% per closed deal", spmedge.SectionFormula, 0},
		{"$1,000 for each new logo", spmedge.SectionFormula, 0},
		{"Quota attainment above 100% accelerates.", spmedge.SectionFormula, 0},
		{"Page 3 of 12", spmedge.SectionFooter, 0},
		{"7", spmedge.SectionFooter, 0},
		{"Confidential - Internal Use Only", spmedge.SectionFooter, 0},
		{"The plan rewards sustained performance.", spmedge.SectionBody, 0},
		{"ok", spmedge.SectionBody, 0},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			kind, level := classifyLine(tt.line)
			assert.Equal(t, tt.kind, kind, "line %q", tt.line)
			assert.Equal(t, tt.level, level, "line %q", tt.line)
		})
	}
}

func TestDetectCategory(t *testing.T) {
	tests := []struct {
		line     string
		category string
	}{
		{"Effective Date: January 1, 2025", spmedge.CategoryEffectiveDates},
		{"Payouts are made quarterly.", spmedge.CategoryPayoutSchedule},
		{"Windfall deals require approval.", spmedge.CategorySpecialProvisions},
		{"Terms and Conditions apply.", spmedge.CategoryTermsAndConditions},
		{"Target Incentive: 40% of base salary", spmedge.CategoryCompComponents},
		{"Plan Name: FY25 Enterprise Sales", spmedge.CategoryPlanInfo},
		{"Nothing notable here.", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.category, detectCategory(tt.line), "line %q", tt.line)
	}
}

func TestBuildSectionsHierarchy(t *testing.T) {
	content := "# Plan Overview\nThis plan covers enterprise sales.\n\n## Eligibility\nFull-time sellers only.\n\n# Payouts\nPaid quarterly.\n"
	roots := BuildSections(content)
	require := assert.New(t)

	require.Len(roots, 2)
	require.Equal("# Plan Overview", roots[0].Raw)
	require.Len(roots[0].Children, 2) // body + ## Eligibility
	require.Equal(spmedge.SectionBody, roots[0].Children[0].Kind)
	eligibility := roots[0].Children[1]
	require.Equal(spmedge.SectionHeader, eligibility.Kind)
	require.Equal(2, eligibility.Level)
	require.Len(eligibility.Children, 1)

	require.Equal("# Payouts", roots[1].Raw)
	require.Equal(spmedge.CategoryPayoutSchedule, roots[1].Category)
}

func TestBuildSectionsGroupsConsecutiveKinds(t *testing.T) {
	content := "| A | B |\n|---|---|\n| 1 | 2 |\nplain body line\nanother body line"
	roots := BuildSections(content)
	assert.Len(t, roots, 2)
	assert.Equal(t, spmedge.SectionTable, roots[0].Kind)
	assert.Equal(t, "| A | B |\n|---|---|\n| 1 | 2 |", roots[0].Raw)
	assert.Equal(t, spmedge.SectionBody, roots[1].Kind)
}

func TestHeaderStackPopsSiblings(t *testing.T) {
	content := "## First\nbody one\n\n## Second\nbody two"
	roots := BuildSections(content)
	assert.Len(t, roots, 2)
	assert.Equal(t, "## Second", roots[1].Raw)
	assert.Len(t, roots[1].Children, 1)
}
