package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"json fence", "```json\n{\"goals\": [\"a\"]}\n```", `{"goals": ["a"]}`},
		{"bare fence", "```\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"fence with other language", "```javascript\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"plain object", `{"key": "value"}`, `{"key": "value"}`},
		{"preamble", "Here is the market analysis:\n{\"summary\": \"crowded\"}", `{"summary": "crowded"}`},
		{"array with preamble", "Messages:\n[\"a\", \"b\"]", `["a", "b"]`},
		{"trailing chatter", "{\"key\": \"value\"}\n\nLet me know if you need more!", `{"key": "value"}`},
		{"escaped quotes", "Result: {\"message\": \"He said \\\"hi\\\"\"}", `{"message": "He said \"hi\""}`},
		{"braces inside strings", `Out: {"template": "Hello {name}!"}`, `{"template": "Hello {name}!"}`},
		{"no json", "nothing to see", "nothing to see"},
		{"unbalanced", `{"key": "value"`, `{"key": "value"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanJSONBlock(tt.input))
		})
	}
}

func TestExtractBalanced(t *testing.T) {
	assert.Equal(t, `{"a": {"b": [1, 2]}}`, extractJSONObject(`{"a": {"b": [1, 2]}} tail`))
	assert.Equal(t, `[[1, 2], [3]]`, extractJSONArray(`[[1, 2], [3]] tail`))
	assert.Equal(t, `[{"id": "]"}]`, extractJSONArray(`[{"id": "]"}]`))
	assert.Equal(t, "", extractJSONObject(""))
	assert.Equal(t, "", extractJSONObject("not json"))
	assert.Equal(t, "", extractJSONArray(`{"a": 1}`))
}
