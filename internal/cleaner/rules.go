package cleaner

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/spm-edge/spmedge/internal/spmedge"
)

// compiledRule is a cleaning rule ready to apply: regex patterns are
// compiled with multiline semantics, conditions with expr.
type compiledRule struct {
	rule spmedge.CleaningRule
	re   *regexp.Regexp
	cond *vm.Program
}

// CompileRules prepares rules for application: sorted by priority then ID,
// regex patterns compiled multiline, expr conditions compiled. Rules with
// an unknown context, a bad pattern, or a bad condition are skipped with a
// warning rather than failing the stage.
func CompileRules(rules []*spmedge.CleaningRule) []compiledRule {
	sorted := make([]*spmedge.CleaningRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})

	var compiled []compiledRule
	for _, r := range sorted {
		if !validContext(r.Context) {
			slog.Warn("cleaning rule has unknown context, skipping", "rule", r.ID, "context", r.Context)
			continue
		}
		cr := compiledRule{rule: *r}
		if r.Kind == spmedge.RuleRegex {
			re, err := regexp.Compile("(?m)" + r.Pattern)
			if err != nil {
				slog.Warn("cleaning rule pattern invalid, skipping", "rule", r.ID, "err", err)
				continue
			}
			cr.re = re
		}
		if r.Condition != "" {
			prog, err := expr.Compile(r.Condition, expr.Env(conditionEnv{}), expr.AsBool())
			if err != nil {
				slog.Warn("cleaning rule condition invalid, skipping", "rule", r.ID, "err", err)
				continue
			}
			cr.cond = prog
		}
		compiled = append(compiled, cr)
	}
	return compiled
}

func validContext(ctx string) bool {
	switch spmedge.SectionKind(ctx) {
	case spmedge.SectionHeader, spmedge.SectionBody, spmedge.SectionTable,
		spmedge.SectionFormula, spmedge.SectionFooter:
		return true
	}
	return ctx == spmedge.RuleContextAll
}

// conditionEnv is the attribute set a rule condition sees.
type conditionEnv struct {
	Kind     string `expr:"kind"`
	Level    int    `expr:"level"`
	Category string `expr:"category"`
	Length   int    `expr:"length"`
}

// CleanSections applies the compiled rules to every section, writing the
// result into Cleaned and leaving Raw untouched, then applies the
// per-kind whitespace policy.
func CleanSections(sections []*spmedge.Section, rules []compiledRule) {
	Walk(sections, func(s *spmedge.Section) {
		s.Cleaned = applyRules(s, rules)
		s.Cleaned = applyWhitespacePolicy(s.Kind, s.Cleaned)
	})
}

func applyRules(s *spmedge.Section, rules []compiledRule) string {
	text := s.Raw
	for _, cr := range rules {
		if cr.rule.Context != spmedge.RuleContextAll && cr.rule.Context != string(s.Kind) {
			continue
		}
		if cr.cond != nil {
			env := conditionEnv{
				Kind:     string(s.Kind),
				Level:    s.Level,
				Category: s.Category,
				Length:   len(text),
			}
			out, err := expr.Run(cr.cond, env)
			if err != nil {
				slog.Warn("cleaning rule condition failed, rule disabled for section",
					"rule", cr.rule.ID, "err", err)
				continue
			}
			if ok, _ := out.(bool); !ok {
				continue
			}
		}
		if cr.re != nil {
			text = cr.re.ReplaceAllString(text, cr.rule.Replacement)
		} else {
			text = strings.ReplaceAll(text, cr.rule.Pattern, cr.rule.Replacement)
		}
	}
	return text
}

var spaceRun = regexp.MustCompile(`[ \t]+`)

// applyWhitespacePolicy normalizes a cleaned section by kind: tables and
// formulas keep their structure, short footers disappear, body whitespace
// runs collapse.
func applyWhitespacePolicy(kind spmedge.SectionKind, text string) string {
	switch kind {
	case spmedge.SectionTable, spmedge.SectionFormula:
		return strings.TrimRight(text, " \t\n")
	case spmedge.SectionFooter:
		if len(strings.TrimSpace(text)) < 30 {
			return ""
		}
		return strings.TrimSpace(text)
	case spmedge.SectionHeader:
		return strings.TrimSpace(text)
	default:
		lines := strings.Split(text, "\n")
		for i, line := range lines {
			lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
		}
		return strings.TrimSpace(strings.Join(lines, "\n"))
	}
}

// Reconstruct re-serializes cleaned sections depth-first, separating
// top-level sections with blank lines, then collapses runs of three or
// more newlines to two.
func Reconstruct(sections []*spmedge.Section) string {
	var parts []string
	for _, root := range sections {
		var b strings.Builder
		writeSection(&b, root)
		if part := strings.TrimSpace(b.String()); part != "" {
			parts = append(parts, part)
		}
	}
	out := strings.Join(parts, "\n\n")
	out = newlineRun.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

var newlineRun = regexp.MustCompile(`\n{3,}`)

func writeSection(b *strings.Builder, s *spmedge.Section) {
	if s.Cleaned != "" {
		b.WriteString(s.Cleaned)
		b.WriteString("\n")
	}
	for _, c := range s.Children {
		writeSection(b, c)
	}
}

// Flatten lists sections depth-first with their document order position,
// the shape persisted to the document_sections table.
func Flatten(sections []*spmedge.Section) []*spmedge.Section {
	var flat []*spmedge.Section
	Walk(sections, func(s *spmedge.Section) { flat = append(flat, s) })
	return flat
}
