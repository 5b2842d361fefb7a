// Package viz holds the pluggable visualization strategies: each one turns a
// natural-language question into a specific textual diagram notation by
// prompting a text-generation backend, decoding the structured block in its
// reply, and rendering that into the target format.
package viz

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"server/internal/domain"
)

// maxContentLength bounds rendered output so downstream renderers are never
// handed pathologically large diagrams.
const maxContentLength = 50000

// Options customizes a single generation request. Unrecognized Style values
// are passed through untouched; strategies ignore what they do not understand.
type Options struct {
	Complexity string `json:"complexity"`
	MaxDepth   int    `json:"max_depth"`
	Style      string `json:"style"`
}

// WithDefaults fills unset fields with the service defaults.
func (o Options) WithDefaults() Options {
	if o.Complexity == "" {
		o.Complexity = "balanced"
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = 4
	}
	if o.Style == "" {
		o.Style = "default"
	}
	return o
}

// Result is the standardized output of any strategy. Ownership of the
// metadata map transfers to the caller.
type Result struct {
	Type     string
	Content  string
	Metadata map[string]any
}

// Strategy is implemented by every visualization backend.
//
// Generate may block on network I/O to the text-generation provider and must
// not mutate shared state outside its return value. It fails with a
// *domain.ValidationError when the provider output cannot be parsed or the
// rendered content fails self-validation; any other error signals a
// generation failure whose retry eligibility is the job manager's decision.
//
// ValidateContent is pure and deterministic: no I/O, false for empty or
// too-short content, content missing the notation's structural marker, and
// content beyond maxContentLength.
type Strategy interface {
	Generate(ctx context.Context, question string, opts Options) (*Result, error)
	ValidateContent(content string) bool
}

// TextGenerator is the provider boundary strategies call through. The Gemini
// client satisfies it; tests substitute fakes.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, temperature float64) (string, error)
}

var jsonFence = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

// decodeModelJSON pulls the structured payload out of a model reply. Models
// routinely wrap the JSON block in conversational text, so the fenced block
// is located first; failing that the whole reply is tried as raw JSON. Any
// mismatch with the target schema is a validation defect, never coerced.
func decodeModelJSON(raw string, v any) error {
	text := strings.TrimSpace(raw)
	if text == "" {
		return domain.NewValidationError("model response was empty", nil)
	}
	if m := jsonFence.FindStringSubmatch(text); m != nil {
		if err := json.Unmarshal([]byte(m[1]), v); err != nil {
			return domain.NewValidationError("model response contained an invalid JSON block", err)
		}
		return nil
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return domain.NewValidationError("model response contained no valid JSON", err)
	}
	return nil
}
