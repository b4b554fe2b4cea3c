package llmutil_test

import (
	"testing"

	"github.com/spm-edge/spmedge/internal/llmutil"
)

func TestParseStructured_PlainJSON(t *testing.T) {
	out := llmutil.ParseStructured(`{"plan_name": "FY25", "target_incentive": 0.4}`)
	if out["plan_name"] != "FY25" {
		t.Errorf("plan_name: got %v", out["plan_name"])
	}
	if llmutil.IsRawText(out) {
		t.Error("parsed JSON marked as raw text")
	}
}

func TestParseStructured_Fenced(t *testing.T) {
	out := llmutil.ParseStructured("```json\n{\"plan_name\": \"FY25\"}\n```")
	if out["plan_name"] != "FY25" {
		t.Errorf("plan_name: got %v", out["plan_name"])
	}
}

func TestParseStructured_TrailingProse(t *testing.T) {
	out := llmutil.ParseStructured("Here you go:\n{\"key\": \"value\"}\n\nLet me know if you need more.")
	if out["key"] != "value" {
		t.Errorf("key: got %v", out["key"])
	}
}

func TestParseStructured_MalformedFallsBackToRawText(t *testing.T) {
	input := "```json\n{foo:\n```"
	out := llmutil.ParseStructured(input)
	if !llmutil.IsRawText(out) {
		t.Fatalf("expected raw_text fallback, got %v", out)
	}
	if out[llmutil.RawTextKey] != input {
		t.Errorf("raw_text: got %q", out[llmutil.RawTextKey])
	}
}

func TestParseStructured_NoJSONAtAll(t *testing.T) {
	out := llmutil.ParseStructured("I could not find any structured data.")
	if !llmutil.IsRawText(out) {
		t.Fatalf("expected raw_text fallback, got %v", out)
	}
}

func TestIsRawText(t *testing.T) {
	if llmutil.IsRawText(map[string]any{"raw_text": "x", "other": 1}) {
		t.Error("two-field map must not count as raw text")
	}
	if !llmutil.IsRawText(map[string]any{"raw_text": "x"}) {
		t.Error("single raw_text field must count")
	}
}
