package spmedge

import (
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "plan.pdf", "plan.pdf"},
		{"spaces", "Q3 Comp Plan.pdf", "Q3_Comp_Plan.pdf"},
		{"path separators", "a/b\\c.txt", "a_b_c.txt"},
		{"specials dropped", "plan (final)!.docx", "plan_final.docx"},
		{"unicode dropped", "plän€.pdf", "pln.pdf"},
		{"keeps dash underscore dot", "a-b_c.d.txt", "a-b_c.d.txt"},
		{"collapses runs", "a   b.pdf", "a_b.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.in); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeFilenameIdempotent(t *testing.T) {
	inputs := []string{
		"Q3 Comp Plan (v2).pdf",
		"weird///name\\\\here.docx",
		strings.Repeat("x", 250) + ".txt",
		"___already___clean___.md",
		"ünïcødé name.pdf",
	}
	for _, in := range inputs {
		once := SanitizeFilename(in)
		twice := SanitizeFilename(once)
		if once != twice {
			t.Errorf("not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestSanitizeFilenameTruncates(t *testing.T) {
	long := strings.Repeat("a", 180) + ".pdf"
	got := SanitizeFilename(long)
	if len(got) != 100+len(".pdf") {
		t.Errorf("base not truncated to 100: len=%d", len(got))
	}
	if !strings.HasSuffix(got, ".pdf") {
		t.Errorf("extension lost: %q", got)
	}
}

func TestFallbackName(t *testing.T) {
	id := "123e4567-e89b-12d3-a456-426614174000"
	got := FallbackName(id)
	if got != "doc_123e4567e89b" {
		t.Errorf("FallbackName = %q", got)
	}
}
