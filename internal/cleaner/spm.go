package cleaner

import (
	"regexp"
	"strings"

	"github.com/spm-edge/spmedge/internal/spmedge"
)

var (
	yearPattern = regexp.MustCompile(`\b(20\d{2})\b`)
	datePattern = regexp.MustCompile(`(?i)\b((january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2},?\s+20\d{2}|\d{1,2}[/-]\d{1,2}[/-]\d{2,4})\b`)
	pctPattern  = regexp.MustCompile(`\d+(\.\d+)?\s*%`)
	freqPattern = regexp.MustCompile(`(?i)\b(monthly|quarterly|semi-annually|annually|weekly)\b`)
)

// ExtractComponents walks the SPM-tagged sections and runs the
// category-specific extractor for each, shaping the result by the
// document type's schema: only top-level schema keys that match a
// recognized category (or "components"/"sections") are populated.
func ExtractComponents(sections []*spmedge.Section, schema *spmedge.Schema) map[string]any {
	if schema == nil {
		return nil
	}

	byCategory := map[string][]*spmedge.Section{}
	Walk(sections, func(s *spmedge.Section) {
		if s.Category != "" && s.Cleaned != "" {
			byCategory[s.Category] = append(byCategory[s.Category], s)
		}
	})

	extracted := map[string]any{}
	for cat, secs := range byCategory {
		if v := extractCategory(cat, secs); v != nil {
			extracted[cat] = v
		}
	}
	if len(extracted) == 0 {
		return nil
	}

	// shape by the schema: keep keys the schema names, collect the rest
	// under "components" when the schema has such a field
	result := map[string]any{}
	var leftover map[string]any
	for cat, v := range extracted {
		if _, ok := schema.Fields[cat]; ok {
			result[cat] = v
			continue
		}
		if leftover == nil {
			leftover = map[string]any{}
		}
		leftover[cat] = v
	}
	if leftover != nil {
		if _, ok := schema.Fields["components"]; ok {
			result["components"] = leftover
		} else {
			for cat, v := range leftover {
				result[cat] = v
			}
		}
	}
	return result
}

func extractCategory(category string, secs []*spmedge.Section) any {
	text := joinSections(secs)
	switch category {
	case spmedge.CategoryPlanInfo:
		info := map[string]any{"text": text}
		if title := firstHeader(secs); title != "" {
			info["title"] = title
		}
		if y := yearPattern.FindString(text); y != "" {
			info["plan_year"] = y
		}
		return info
	case spmedge.CategoryPlanSummary:
		return map[string]any{"text": text}
	case spmedge.CategoryEffectiveDates:
		dates := dedupe(datePattern.FindAllString(text, -1))
		out := map[string]any{"text": text, "dates": dates}
		if len(dates) > 0 {
			out["start"] = dates[0]
		}
		if len(dates) > 1 {
			out["end"] = dates[len(dates)-1]
		}
		return out
	case spmedge.CategoryPayoutSchedule:
		out := map[string]any{"text": text}
		if f := freqPattern.FindString(text); f != "" {
			out["frequency"] = strings.ToLower(f)
		}
		if rows := tableLines(secs); len(rows) > 0 {
			out["rows"] = rows
		}
		return out
	case spmedge.CategorySpecialProvisions:
		return map[string]any{"provisions": nonEmptyLines(text)}
	case spmedge.CategoryTermsAndConditions:
		return map[string]any{"text": text}
	case spmedge.CategoryCompComponents:
		out := map[string]any{"text": text}
		if pcts := dedupe(pctPattern.FindAllString(text, -1)); len(pcts) > 0 {
			out["percentages"] = pcts
		}
		if formulas := formulaLines(secs); len(formulas) > 0 {
			out["formulas"] = formulas
		}
		return out
	}
	return nil
}

func joinSections(secs []*spmedge.Section) string {
	parts := make([]string, 0, len(secs))
	for _, s := range secs {
		parts = append(parts, s.Cleaned)
	}
	return strings.Join(parts, "\n")
}

func firstHeader(secs []*spmedge.Section) string {
	for _, s := range secs {
		if s.Kind == spmedge.SectionHeader {
			return s.Cleaned
		}
	}
	return ""
}

func tableLines(secs []*spmedge.Section) []string {
	var rows []string
	for _, s := range secs {
		if s.Kind == spmedge.SectionTable {
			rows = append(rows, nonEmptyLines(s.Cleaned)...)
		}
	}
	return rows
}

func formulaLines(secs []*spmedge.Section) []string {
	var lines []string
	for _, s := range secs {
		if s.Kind == spmedge.SectionFormula {
			lines = append(lines, nonEmptyLines(s.Cleaned)...)
		}
	}
	return lines
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
