package cleaner

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/spm-edge/spmedge/internal/spmedge"
)

var (
	markdownHeader = regexp.MustCompile(`^(#{1,3})\s+\S`)
	numericHeader  = regexp.MustCompile(`^\d{1,2}\.\s+\S`)
	romanHeader    = regexp.MustCompile(`^[IVXLCDM]{1,6}\.\s+\S`)
	letterHeader   = regexp.MustCompile(`^[A-Z]\.\s+\S`)

	tableSeparator = regexp.MustCompile(`^[\s|+:=-]+$`)
	pipeRow        = regexp.MustCompile(`\|.*\|`)

	formulaAmount = regexp.MustCompile(`(?i)(\d+(\.\d+)?\s*%|\$\s?[\d,]+(\.\d+)?)\s*(per|for|of)\b`)
	formulaPhrase = regexp.MustCompile(`(?i)\b(attainment|quota|target\s+incentive)\b`)

	pageNumber   = regexp.MustCompile(`(?i)^(page\s+)?\d{1,4}(\s+of\s+\d{1,4})?$`)
	confidential = regexp.MustCompile(`(?i)confidential|proprietary|all rights reserved|internal use only|©`)
)

// knownSectionNames are header-like section titles that appear without any
// markup in compensation documents.
var knownSectionNames = []string{
	"plan overview",
	"plan summary",
	"eligibility",
	"payouts",
	"payout schedule",
	"compensation components",
	"effective dates",
	"special provisions",
	"terms & conditions",
	"terms and conditions",
}

// classifyLine assigns a section kind to one line. Header classifications
// also carry a level in 1-3.
func classifyLine(line string) (spmedge.SectionKind, int) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return spmedge.SectionBody, 0
	}

	if m := markdownHeader.FindStringSubmatch(trimmed); m != nil {
		return spmedge.SectionHeader, len(m[1])
	}

	if pageNumber.MatchString(trimmed) || (confidential.MatchString(trimmed) && len(trimmed) < 80) {
		return spmedge.SectionFooter, 0
	}

	if pipeRow.MatchString(trimmed) || tableSeparator.MatchString(trimmed) && strings.ContainsAny(trimmed, "-+=") {
		return spmedge.SectionTable, 0
	}

	if romanHeader.MatchString(trimmed) && !startsLowercaseAfterPrefix(trimmed) {
		return spmedge.SectionHeader, 2
	}
	if numericHeader.MatchString(trimmed) && len(trimmed) < 80 {
		return spmedge.SectionHeader, 2
	}
	if letterHeader.MatchString(trimmed) && len(trimmed) < 80 {
		return spmedge.SectionHeader, 3
	}
	if isAllCapsHeader(trimmed) {
		return spmedge.SectionHeader, 1
	}
	lower := strings.ToLower(strings.TrimRight(trimmed, ":"))
	for _, name := range knownSectionNames {
		if lower == name {
			return spmedge.SectionHeader, 1
		}
	}

	if formulaAmount.MatchString(trimmed) || formulaPhrase.MatchString(trimmed) {
		return spmedge.SectionFormula, 0
	}

	return spmedge.SectionBody, 0
}

// isAllCapsHeader reports whether a line of at least 5 characters consists
// of uppercase letters (plus digits and punctuation) with no lowercase.
func isAllCapsHeader(s string) bool {
	if len(s) < 5 || len(s) > 80 {
		return false
	}
	letters := 0
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			letters++
		}
	}
	return letters >= 3
}

func startsLowercaseAfterPrefix(s string) bool {
	idx := strings.Index(s, ". ")
	if idx < 0 || idx+2 >= len(s) {
		return false
	}
	r := rune(s[idx+2])
	return unicode.IsLower(r)
}

// categoryPatterns tag sections with SPM component categories.
var categoryPatterns = map[string]*regexp.Regexp{
	spmedge.CategoryPlanInfo:           regexp.MustCompile(`(?i)\bplan\s+(name|title|id|overview|year)\b|\bfiscal\s+year\b`),
	spmedge.CategoryPlanSummary:        regexp.MustCompile(`(?i)\b(summary|purpose|objective)s?\b`),
	spmedge.CategoryEffectiveDates:     regexp.MustCompile(`(?i)\beffective\s+(date|from|through)\b|\bplan\s+period\b|\bvalid\s+(from|through|until)\b`),
	spmedge.CategoryPayoutSchedule:     regexp.MustCompile(`(?i)\bpayouts?\b|\bpayment\s+(schedule|frequency|date)s?\b|\bpaid\s+(monthly|quarterly|annually)\b`),
	spmedge.CategorySpecialProvisions:  regexp.MustCompile(`(?i)\bspecial\s+provisions?\b|\bwindfall\b|\bclawback\b|\bsplit\s+credit\b`),
	spmedge.CategoryTermsAndConditions: regexp.MustCompile(`(?i)\bterms\s+(and|&)\s+conditions\b|\bgoverning\s+law\b|\btermination\b|\beligib`),
	spmedge.CategoryCompComponents:     regexp.MustCompile(`(?i)\btarget\s+incentive\b|\bbase\s+salary\b|\bcommission\s+rate\b|\bbonus\b|\bquota\b`),
}

// detectCategory returns the SPM category a line suggests, or "". The
// category list is checked in its declared order for determinism.
func detectCategory(line string) string {
	for _, cat := range spmedge.SPMCategories {
		if categoryPatterns[cat].MatchString(line) {
			return cat
		}
	}
	return ""
}
