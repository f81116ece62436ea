package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		wantCategory string
		wantErr      bool
	}{
		{
			name:         "plain json",
			content:      `{"category": "Travel", "taxCode": "SA103F_BOX20", "isTaxDeductible": true, "confidence": 0.92, "reasoning": "Ride hailing"}`,
			wantCategory: "Travel",
		},
		{
			name: "json wrapped in markdown fence",
			content: "```json\n" +
				`{"category": "Travel", "confidence": 0.8}` + "\n```",
			wantCategory: "Travel",
		},
		{
			name: "fence without language tag",
			content: "```\n" +
				`{"category": "Office Costs", "confidence": 0.5}` + "\n```",
			wantCategory: "Office Costs",
		},
		{
			name:    "prose is a parse failure",
			content: "This looks like a travel expense to me.",
			wantErr: true,
		},
		{
			name:    "missing category is a parse failure",
			content: `{"confidence": 0.9}`,
			wantErr: true,
		},
		{
			name:    "confidence out of range",
			content: `{"category": "Travel", "confidence": 1.4}`,
			wantErr: true,
		},
		{
			name:    "empty content",
			content: "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseClassification(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCategory, got.Category)
		})
	}
}
