package services

import (
	"encoding/json"
	"regexp"
	"strings"

	"candidate-screener/internal/errs"
)

// Models wrap JSON in explanatory prose or markdown fences inconsistently,
// so extraction tries patterns in order of reliability.
var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

type ResponseExtractor struct{}

func NewResponseExtractor() *ResponseExtractor {
	return &ResponseExtractor{}
}

// ExtractJSON recovers a JSON object from free-form model output. It tries,
// in order: a fenced code block, the first greedy {...} span, and finally
// returns the input unchanged so the JSON decoder reports the failure.
//
// The greedy span runs from the first '{' to the last '}'. A response
// containing multiple disjoint JSON objects therefore yields a span covering
// all of them; this is a known fragility kept until the desired precedence
// is settled.
func (e *ResponseExtractor) ExtractJSON(raw string) string {
	if m := fencedJSONRe.FindStringSubmatch(raw); m != nil {
		return m[1]
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start != -1 && end != -1 && end > start {
		return raw[start : end+1]
	}

	return raw
}

// DecodeInto extracts and unmarshals a JSON object from raw into target.
// A decode failure after extraction is a ParseError; callers must not retry
// the generation call for it.
func (e *ResponseExtractor) DecodeInto(raw string, target any) error {
	jsonStr := e.ExtractJSON(raw)

	if err := json.Unmarshal([]byte(jsonStr), target); err != nil {
		return errs.Wrap(errs.KindParse, "response did not decode into expected structure", err)
	}

	return nil
}
