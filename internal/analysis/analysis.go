// analysis.go - Bill analysis payload: structured model output or raw fallback

package analysis

import (
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kind discriminates the Analysis union.
type Kind string

const (
	KindStructured Kind = "structured"
	KindFallback   Kind = "fallback"
)

// OverallSummary is the verdict block of a structured analysis.
type OverallSummary struct {
	Verdict         string `json:"verdict"`
	ConfidenceLevel string `json:"confidence_level"`
	OneLineSummary  string `json:"one_line_summary"`
}

type PositivePoint struct {
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
}

type PotentialIssue struct {
	Type            string `json:"type"`
	ItemName        string `json:"item_name"`
	WhyFlagged      string `json:"why_flagged"`
	Severity        string `json:"severity"`
	SuggestedAction string `json:"suggested_action"`
}

type InsuranceAttentionItem struct {
	ItemName           string `json:"item_name"`
	Reason             string `json:"reason"`
	CoverageLikelihood string `json:"coverage_likelihood"`
}

type RoomAndPackageNotes struct {
	RoomRentObservation string `json:"room_rent_observation"`
	PackageMismatch     string `json:"package_mismatch"`
}

type DataQualityNotes struct {
	OCRConfidence string `json:"ocr_confidence"`
	Note          string `json:"note"`
}

// StructuredAnalysis is the typed view of the model's JSON contract.
type StructuredAnalysis struct {
	OverallSummary          OverallSummary           `json:"overall_summary"`
	PositivePoints          []PositivePoint          `json:"positive_points"`
	PotentialIssues         []PotentialIssue         `json:"potential_issues"`
	InsuranceAttentionItems []InsuranceAttentionItem `json:"insurance_attention_items"`
	RoomAndPackageNotes     RoomAndPackageNotes      `json:"room_and_package_notes"`
	DataQualityNotes        DataQualityNotes         `json:"data_quality_notes"`
	FinalAdviceForPatient   []string                 `json:"final_advice_for_patient"`
	ImportantDisclaimer     string                   `json:"important_disclaimer"`
}

// FallbackAnalysis wraps model output that could not be parsed.
type FallbackAnalysis struct {
	RawResponse string `json:"raw_response"`
	ParseError  string `json:"parse_error,omitempty"`
}

// Analysis is either a structured object or a fallback wrapper. Structured
// analyses keep the whole parsed document so keys outside the typed view
// survive storage and transport.
type Analysis struct {
	Kind       Kind
	Structured *StructuredAnalysis // nil when the document does not fit the typed view
	Fallback   *FallbackAnalysis

	document map[string]interface{}
}

// NewStructured builds a structured analysis from a parsed JSON object.
func NewStructured(document map[string]interface{}) Analysis {
	a := Analysis{Kind: KindStructured, document: document}
	a.Structured = typedView(document)
	return a
}

// NewFallback builds a fallback analysis.
func NewFallback(raw, parseErr string) Analysis {
	return Analysis{
		Kind:     KindFallback,
		Fallback: &FallbackAnalysis{RawResponse: raw, ParseError: parseErr},
	}
}

// IsZero reports whether no analysis has been set.
func (a Analysis) IsZero() bool {
	return a.Kind == ""
}

// Document returns the plain object form: the parsed model document for
// structured analyses and {raw_response, parse_error} for fallbacks.
func (a Analysis) Document() map[string]interface{} {
	switch a.Kind {
	case KindStructured:
		return a.document
	case KindFallback:
		doc := map[string]interface{}{"raw_response": a.Fallback.RawResponse}
		if a.Fallback.ParseError != "" {
			doc["parse_error"] = a.Fallback.ParseError
		}
		return doc
	}
	return nil
}

// OneLineSummary returns the summary line if the analysis carries one.
func (a Analysis) OneLineSummary() string {
	if a.Structured != nil {
		return a.Structured.OverallSummary.OneLineSummary
	}
	return ""
}

func (a Analysis) MarshalJSON() ([]byte, error) {
	if a.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(a.Document())
}

func (a *Analysis) UnmarshalJSON(data []byte) error {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	*a = fromDocument(doc)
	return nil
}

func (a Analysis) MarshalBSON() ([]byte, error) {
	doc := a.Document()
	if doc == nil {
		doc = map[string]interface{}{}
	}
	return bson.Marshal(doc)
}

func (a *Analysis) UnmarshalBSON(data []byte) error {
	var doc bson.M
	if err := bson.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	normalized, _ := normalizeBSON(doc).(map[string]interface{})
	if len(normalized) == 0 {
		*a = Analysis{}
		return nil
	}
	*a = fromDocument(normalized)
	return nil
}

var fallbackKeys = map[string]bool{"raw_response": true, "parse_error": true, "error_message": true}

// fromDocument restores the variant from a plain object.
func fromDocument(doc map[string]interface{}) Analysis {
	if doc == nil {
		return Analysis{}
	}
	raw, hasRaw := doc["raw_response"].(string)
	if hasRaw {
		onlyFallbackKeys := true
		for key := range doc {
			if !fallbackKeys[key] {
				onlyFallbackKeys = false
				break
			}
		}
		if onlyFallbackKeys {
			parseErr, _ := doc["parse_error"].(string)
			return NewFallback(raw, parseErr)
		}
	}
	return NewStructured(doc)
}

func typedView(doc map[string]interface{}) *StructuredAnalysis {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil
	}
	var s StructuredAnalysis
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	return &s
}

// normalizeBSON turns decoded BSON values into the shapes encoding/json produces.
func normalizeBSON(v interface{}) interface{} {
	switch val := v.(type) {
	case primitive.M:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = normalizeBSON(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = normalizeBSON(item)
		}
		return out
	case primitive.D:
		out := make(map[string]interface{}, len(val))
		for _, e := range val {
			out[e.Key] = normalizeBSON(e.Value)
		}
		return out
	case primitive.A:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeBSON(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeBSON(item)
		}
		return out
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return val
	}
}
