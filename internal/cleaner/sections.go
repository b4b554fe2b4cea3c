package cleaner

import (
	"strings"

	"github.com/spm-edge/spmedge/internal/spmedge"
)

// BuildSections scans content line by line, groups consecutive lines of
// the same kind into sections, and organizes them under a header stack:
// a header at level L closes every open header at level >= L and attaches
// beneath the surviving top, or becomes a root.
func BuildSections(content string) []*spmedge.Section {
	var roots []*spmedge.Section
	var stack []*spmedge.Section // open headers, outermost first

	attach := func(sec *spmedge.Section) {
		if len(stack) == 0 {
			roots = append(roots, sec)
			return
		}
		top := stack[len(stack)-1]
		top.Children = append(top.Children, sec)
	}

	var current *spmedge.Section
	flush := func() {
		if current == nil {
			return
		}
		current.Raw = strings.TrimRight(current.Raw, "\n")
		attach(current)
		current = nil
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}

		kind, level := classifyLine(line)
		category := detectCategory(trimmed)

		if kind == spmedge.SectionHeader {
			flush()
			header := &spmedge.Section{Kind: kind, Level: level, Category: category, Raw: trimmed}
			for len(stack) > 0 && stack[len(stack)-1].Level >= level {
				stack = stack[:len(stack)-1]
			}
			attach(header)
			stack = append(stack, header)
			continue
		}

		if current != nil && current.Kind != kind {
			flush()
		}
		if current == nil {
			current = &spmedge.Section{Kind: kind, Category: category}
		} else if current.Category == "" {
			current.Category = category
		}
		if current.Raw != "" {
			current.Raw += "\n"
		}
		current.Raw += line
	}
	flush()
	return roots
}

// Walk visits every section depth-first in document order.
func Walk(sections []*spmedge.Section, fn func(*spmedge.Section)) {
	for _, s := range sections {
		fn(s)
		Walk(s.Children, fn)
	}
}
