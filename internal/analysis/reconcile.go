// reconcile.go - Tolerant parsing of model output into an Analysis

package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	openingFence  = regexp.MustCompile("^```[A-Za-z0-9_+-]*[ \t]*\r?\n?")
	anyFence      = regexp.MustCompile("```[A-Za-z0-9_+-]*")
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
	whitespaceRun = regexp.MustCompile(`\s+`)

	errNotObject = errors.New("top-level value is not a JSON object")
)

// Reconcile turns raw model text into a structured analysis, repairing common
// formatting slips. Text that still does not parse becomes a fallback
// analysis carrying the raw response. It never fails.
func Reconcile(raw string) Analysis {
	doc, err := parseObject(trailingComma.ReplaceAllString(stripFences(raw), "$1"))
	if err == nil {
		return NewStructured(doc)
	}

	doc, err = parseObject(repair(raw))
	if err == nil {
		return NewStructured(doc)
	}

	return NewFallback(raw, fmt.Sprintf("could not parse model response as JSON: %v", err))
}

// stripFences trims the text and removes one surrounding code fence.
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = openingFence.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// repair removes every fence marker, trailing commas before a closing
// bracket, and collapses whitespace runs (including raw newlines inside
// strings) to single spaces.
func repair(raw string) string {
	text := anyFence.ReplaceAllString(raw, "")
	text = trailingComma.ReplaceAllString(text, "$1")
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func parseObject(text string) (map[string]interface{}, error) {
	var value interface{}
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, err
	}
	doc, ok := value.(map[string]interface{})
	if !ok {
		return nil, errNotObject
	}
	return doc, nil
}
