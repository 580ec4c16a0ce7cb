package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "bare array",
			input: `[{"name": "Lamp"}]`,
			want:  `[{"name": "Lamp"}]`,
		},
		{
			name:  "markdown fenced",
			input: "```json\n[{\"name\": \"Lamp\"}]\n```",
			want:  `[{"name": "Lamp"}]`,
		},
		{
			name:  "surrounding prose",
			input: "Here are the items I found: [1, 2] hope this helps",
			want:  "[1, 2]",
		},
		{
			name:    "no array",
			input:   "I could not identify any items in this image.",
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSONArray(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDetections(t *testing.T) {
	text := "```json\n" + `[
		{"name": "Desk Lamp", "condition": "good", "color": "black", "estimated_value": 25},
		{"name": "", "condition": "unusable entry without a name"},
		{"name": "Mug", "position": "left"}
	]` + "\n```"

	items, err := parseDetections(text)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Desk Lamp", items[0].Name)
	assert.Equal(t, 25.0, items[0].EstimatedValue)
	assert.Equal(t, "Mug", items[1].Name)
	assert.Equal(t, "left", items[1].Position)
}

func TestParseDetectionsMalformedJSON(t *testing.T) {
	_, err := parseDetections(`[{"name": "Lamp"`)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestParseDetectionsEmptyArray(t *testing.T) {
	items, err := parseDetections("[]")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCalculateGeminiCost(t *testing.T) {
	cost := calculateGeminiCost(1_000_000, 1_000_000, 0.50, 3.00)
	assert.InDelta(t, 3.50, cost, 1e-9)
	assert.Zero(t, calculateGeminiCost(0, 0, 0.50, 3.00))
}
