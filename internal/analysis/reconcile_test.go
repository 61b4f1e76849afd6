package analysis

import (
	"strings"
	"testing"
)

const validJSON = `{"overall_summary":{"verdict":"Mostly reasonable","confidence_level":"Medium","one_line_summary":"ok"},"positive_points":[],"final_advice_for_patient":["Keep receipts"]}`

func TestReconcileAcceptsWellFormedVariants(t *testing.T) {
	cases := map[string]string{
		"bare":               validJSON,
		"padded":             "\n\n  " + validJSON + "  \n",
		"json fence":         "```json\n" + validJSON + "\n```",
		"plain fence":        "```\n" + validJSON + "\n```",
		"trailing comma":     `{"overall_summary":{"verdict":"Mostly reasonable","confidence_level":"Medium","one_line_summary":"ok",},}`,
		"trailing array":     `{"overall_summary":{"one_line_summary":"ok"},"final_advice_for_patient":["a","b",]}`,
		"fenced with comma":  "```json\n{\"overall_summary\":{\"one_line_summary\":\"ok\"},}\n```",
		"newline in string":  "{\"overall_summary\":{\"one_line_summary\":\"line one\nline two\"}}",
		"uppercase tag":      "```JSON\n" + validJSON + "```",
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			got := Reconcile(raw)
			if got.Kind != KindStructured {
				t.Fatalf("expected structured analysis, got %s (%+v)", got.Kind, got.Fallback)
			}
			if got.Structured == nil {
				t.Fatalf("expected typed view")
			}
		})
	}
}

func TestReconcileFencedScenario(t *testing.T) {
	raw := "```json\n{\"overall_summary\":{\"verdict\":\"Mostly reasonable\",\"confidence_level\":\"Medium\",\"one_line_summary\":\"ok\"}}\n```"
	got := Reconcile(raw)
	if got.Kind != KindStructured {
		t.Fatalf("expected structured, got %s", got.Kind)
	}
	if got.Structured.OverallSummary.Verdict != "Mostly reasonable" {
		t.Fatalf("unexpected verdict %q", got.Structured.OverallSummary.Verdict)
	}
	if got.OneLineSummary() != "ok" {
		t.Fatalf("unexpected summary %q", got.OneLineSummary())
	}
}

func TestReconcileFallsBackOnProse(t *testing.T) {
	for _, raw := range []string{"I cannot analyze this.", "", "```\nnope\n```", "42", `["a","b"]`, `{"unterminated": `} {
		got := Reconcile(raw)
		if got.Kind != KindFallback {
			t.Fatalf("expected fallback for %q, got %s", raw, got.Kind)
		}
		if got.Fallback.RawResponse != raw {
			t.Fatalf("expected raw response preserved, got %q", got.Fallback.RawResponse)
		}
		if !strings.HasPrefix(got.Fallback.ParseError, "could not parse model response as JSON") {
			t.Fatalf("unexpected parse error %q", got.Fallback.ParseError)
		}
	}
}

func TestReconcileKeepsUnknownKeys(t *testing.T) {
	got := Reconcile(`{"overall_summary":{"verdict":"Needs review"},"provider_notes":{"x":1}}`)
	doc := got.Document()
	if _, ok := doc["provider_notes"]; !ok {
		t.Fatalf("expected provider_notes to survive, got %v", doc)
	}
}

func TestReconcileSchemaMismatchStillStructured(t *testing.T) {
	got := Reconcile(`{"overall_summary":"just a string","custom":true}`)
	if got.Kind != KindStructured {
		t.Fatalf("expected structured, got %s", got.Kind)
	}
	if got.Structured != nil {
		t.Fatalf("expected no typed view for mismatched schema")
	}
}

func TestStripFences(t *testing.T) {
	if got := stripFences("```json\n{}\n```"); got != "{}" {
		t.Fatalf("unexpected %q", got)
	}
	if got := stripFences("  {}  "); got != "{}" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestReconcileTrailingCommaKeepsBacktickText(t *testing.T) {
	raw := "```json\n{\"overall_summary\":{\"one_line_summary\":\"ok\"},\"data_quality_notes\":{\"note\":\"item code ```A1``` unclear\"},}\n```"
	got := Reconcile(raw)
	if got.Kind != KindStructured {
		t.Fatalf("expected structured, got %s", got.Kind)
	}
	if note := got.Structured.DataQualityNotes.Note; note != "item code ```A1``` unclear" {
		t.Fatalf("expected note to survive the first pass untouched, got %q", note)
	}
}
