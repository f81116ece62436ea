package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// classificationPayload is the structured object the model is instructed to
// return. Anything that does not unmarshal into this shape is a parse
// failure.
type classificationPayload struct {
	Category      string  `json:"category"`
	TaxCode       string  `json:"taxCode"`
	Reasoning     string  `json:"reasoning"`
	Confidence    float64 `json:"confidence"`
	TaxDeductible bool    `json:"isTaxDeductible"`
}

// parseClassification strictly parses the model output as a single JSON
// object. Responses wrapped in markdown code fences are unwrapped first;
// anything else unparseable is an error.
func parseClassification(content string) (*classificationPayload, error) {
	content = cleanMarkdownWrapper(content)

	var payload classificationPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if payload.Category == "" {
		return nil, fmt.Errorf("no category found in response")
	}
	if payload.Confidence < 0 || payload.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range", payload.Confidence)
	}

	return &payload, nil
}

// cleanMarkdownWrapper strips a surrounding ```json ... ``` fence that
// models sometimes add despite instructions.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx >= 0 {
			content = content[idx+1:]
		} else {
			content = strings.TrimPrefix(content, "```json")
			content = strings.TrimPrefix(content, "```")
		}
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}

	return strings.TrimSpace(content)
}
