package classifier

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kittclouds/memori/internal/store"
)

// classifyResponse is the wire shape a ChatBackend's raw text is expected
// to unmarshal into. Field names mirror the Memory attributes.
type classifyResponse struct {
	Classification       string   `json:"classification"`
	Importance           string   `json:"importance"`
	ImportanceScore      float64  `json:"importanceScore"`
	ConfidenceScore      float64  `json:"confidenceScore"`
	Topic                string   `json:"topic"`
	Entities             []string `json:"entities"`
	Keywords             []string `json:"keywords"`
	CategoryPrimary      string   `json:"categoryPrimary"`
	ClassificationReason string   `json:"classificationReason"`
	Summary              string   `json:"summary"`
}

// buildUserPrompt assembles the canonical classify() input into a single
// prompt string for a ChatBackend (the wire format of the prompt itself is
// an external collaborator concern; this is a minimal, legible rendering).
func buildUserPrompt(userInput, assistantOutput string, exchangeContext map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", userInput, assistantOutput)
	if len(exchangeContext) > 0 {
		if ctxJSON, err := json.Marshal(exchangeContext); err == nil {
			fmt.Fprintf(&b, "Context: %s\n", ctxJSON)
		}
	}
	return b.String()
}

// parseOrFallback runs a three-tier repair: direct unmarshal, then regex
// field repair, then the deterministic fallback.
func parseOrFallback(raw, userInput string) store.Memory {
	cleaned := stripCodeFence(strings.TrimSpace(raw))
	if cleaned == "" {
		return fallbackMemory(userInput)
	}

	var resp classifyResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err == nil {
		if m, ok := toMemory(resp); ok {
			return m
		}
	}

	if resp, ok := repairFields(cleaned); ok {
		if m, ok := toMemory(resp); ok {
			return m
		}
	}

	return fallbackMemory(userInput)
}

// stripCodeFence removes a ```json ... ``` / ``` ... ``` wrapper, if present.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 0 {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// toMemory normalizes and validates resp into a store.Memory. Uppercase
// classification/importance values are normalized to the canonical
// lowercase; an unrecognized value after normalization fails validation
// rather than being silently coerced.
func toMemory(resp classifyResponse) (store.Memory, bool) {
	class := store.Classification(strings.ToLower(strings.TrimSpace(resp.Classification)))
	if !store.IsValidClassification(class) {
		return store.Memory{}, false
	}
	importance := store.Importance(strings.ToLower(strings.TrimSpace(resp.Importance)))
	if !store.IsValidImportance(importance) {
		return store.Memory{}, false
	}

	importanceScore := clamp01(resp.ImportanceScore)
	confidenceScore := clamp01(resp.ConfidenceScore)
	summary := strings.TrimSpace(resp.Summary)
	if summary == "" {
		return store.Memory{}, false
	}

	return store.Memory{
		Classification:       class,
		Importance:           importance,
		ImportanceScore:      importanceScore,
		ConfidenceScore:      confidenceScore,
		Topic:                strings.TrimSpace(resp.Topic),
		Entities:             resp.Entities,
		Keywords:             resp.Keywords,
		CategoryPrimary:      strings.TrimSpace(resp.CategoryPrimary),
		ClassificationReason: strings.TrimSpace(resp.ClassificationReason),
		Summary:              summary,
	}, true
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

var fieldPatterns = map[string]*regexp.Regexp{
	"classification":       regexp.MustCompile(`"classification"\s*:\s*"([^"]*)"`),
	"importance":           regexp.MustCompile(`"importance"\s*:\s*"([^"]*)"`),
	"topic":                regexp.MustCompile(`"topic"\s*:\s*"([^"]*)"`),
	"categoryPrimary":      regexp.MustCompile(`"categoryPrimary"\s*:\s*"([^"]*)"`),
	"classificationReason": regexp.MustCompile(`"classificationReason"\s*:\s*"([^"]*)"`),
	"summary":              regexp.MustCompile(`"summary"\s*:\s*"([^"]*)"`),
}

var numberPatterns = map[string]*regexp.Regexp{
	"importanceScore": regexp.MustCompile(`"importanceScore"\s*:\s*([\d.]+)`),
	"confidenceScore": regexp.MustCompile(`"confidenceScore"\s*:\s*([\d.]+)`),
}

// repairFields recovers individual top-level fields via regex when the raw
// text isn't valid JSON (truncated output, stray trailing commentary).
func repairFields(raw string) (classifyResponse, bool) {
	var resp classifyResponse
	found := false

	if m := fieldPatterns["classification"].FindStringSubmatch(raw); m != nil {
		resp.Classification = m[1]
		found = true
	}
	if m := fieldPatterns["importance"].FindStringSubmatch(raw); m != nil {
		resp.Importance = m[1]
		found = true
	}
	if m := fieldPatterns["topic"].FindStringSubmatch(raw); m != nil {
		resp.Topic = m[1]
	}
	if m := fieldPatterns["categoryPrimary"].FindStringSubmatch(raw); m != nil {
		resp.CategoryPrimary = m[1]
	}
	if m := fieldPatterns["classificationReason"].FindStringSubmatch(raw); m != nil {
		resp.ClassificationReason = m[1]
	}
	if m := fieldPatterns["summary"].FindStringSubmatch(raw); m != nil {
		resp.Summary = m[1]
	}
	if m := numberPatterns["importanceScore"].FindStringSubmatch(raw); m != nil {
		fmt.Sscanf(m[1], "%f", &resp.ImportanceScore)
	}
	if m := numberPatterns["confidenceScore"].FindStringSubmatch(raw); m != nil {
		fmt.Sscanf(m[1], "%f", &resp.ConfidenceScore)
	}

	return resp, found
}

const fallbackSummaryLen = 100

// fallbackMemory is the deterministic result used whenever the backend
// call or response parsing fails.
func fallbackMemory(userInput string) store.Memory {
	summary := userInput
	if len(summary) > fallbackSummaryLen {
		summary = summary[:fallbackSummaryLen]
	}
	summary += "..."

	return store.Memory{
		Classification:       store.ClassConversation,
		Importance:           store.ImportanceMedium,
		ImportanceScore:      0.5,
		ConfidenceScore:      0.5,
		ClassificationReason: "Fallback processing due to error",
		Summary:              summary,
	}
}
