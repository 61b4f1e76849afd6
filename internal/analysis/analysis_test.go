package analysis

import (
	"encoding/json"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

type holder struct {
	Analysis Analysis `bson:"analysis" json:"analysis"`
}

func TestFallbackSerializesAsPlainObject(t *testing.T) {
	data, err := json.Marshal(NewFallback("I cannot analyze this.", "bad json"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"parse_error":"bad json","raw_response":"I cannot analyze this."}`
	if string(data) != want {
		t.Fatalf("expected %s, got %s", want, data)
	}

	data, _ = json.Marshal(NewFallback("raw", ""))
	if string(data) != `{"raw_response":"raw"}` {
		t.Fatalf("expected loose fallback, got %s", data)
	}
}

func TestJSONDecodeDiscriminatesVariants(t *testing.T) {
	var a Analysis
	if err := json.Unmarshal([]byte(`{"raw_response":"x","parse_error":"y"}`), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if a.Kind != KindFallback || a.Fallback.ParseError != "y" {
		t.Fatalf("expected fallback, got %+v", a)
	}

	// a structured document that happens to carry raw_response stays structured
	if err := json.Unmarshal([]byte(`{"raw_response":"x","overall_summary":{"verdict":"v"}}`), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if a.Kind != KindStructured {
		t.Fatalf("expected structured, got %s", a.Kind)
	}
}

func TestBSONRoundTripStructured(t *testing.T) {
	in := holder{Analysis: Reconcile(`{"overall_summary":{"verdict":"Needs review","confidence_level":"Low","one_line_summary":"check pharmacy"},"potential_issues":[{"item_name":"Gloves","severity":"Low"}],"extra":{"score":3}}`)}

	data, err := bson.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out holder
	if err := bson.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if out.Analysis.Kind != KindStructured || out.Analysis.Structured == nil {
		t.Fatalf("expected structured analysis, got %+v", out.Analysis)
	}
	if got := out.Analysis.Structured.PotentialIssues; len(got) != 1 || got[0].ItemName != "Gloves" {
		t.Fatalf("unexpected issues: %+v", got)
	}
	extra, ok := out.Analysis.Document()["extra"].(map[string]interface{})
	if !ok || extra["score"] != float64(3) {
		t.Fatalf("expected extra keys preserved, got %v", out.Analysis.Document()["extra"])
	}
}

func TestBSONRoundTripFallback(t *testing.T) {
	data, err := bson.Marshal(holder{Analysis: NewFallback("I cannot analyze this.", "nope")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out holder
	if err := bson.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Analysis.Kind != KindFallback || out.Analysis.Fallback.RawResponse != "I cannot analyze this." {
		t.Fatalf("expected fallback, got %+v", out.Analysis)
	}
}

func TestZeroAnalysisMarshalsNull(t *testing.T) {
	data, err := json.Marshal(holder{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"analysis":null}` {
		t.Fatalf("unexpected %s", data)
	}
}
