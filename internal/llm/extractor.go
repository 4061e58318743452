// Package llm - extractor.go builds prompts that ask for structured JSON output.
package llm

import (
	"fmt"
	"strings"
)

// ExtractionSchema describes the JSON object a prompt asks the model to return.
type ExtractionSchema struct {
	Name        string        // Schema name, used in logs
	Description string        // Task preamble
	Fields      []SchemaField // Expected output fields
}

// SchemaField defines a single field in the extraction output.
type SchemaField struct {
	Name        string // JSON field name
	Type        string // Type hint shown to the model
	Description string // Description for the model
	Required    bool   // Whether this field is required
}

// BuildExtractionPrompt constructs the prompt from a schema and the input text.
func BuildExtractionPrompt(schema ExtractionSchema, inputText string) string {
	var sb strings.Builder

	sb.WriteString(schema.Description)
	sb.WriteString("\n\n")

	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n{\n")
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = "\"string\""
		}
		requiredHint := ""
		if field.Required {
			requiredHint = " (required)"
		}
		fmt.Fprintf(&sb, "  \"%s\": %s%s", field.Name, typeHint, requiredHint)
		if field.Description != "" {
			fmt.Fprintf(&sb, " // %s", field.Description)
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n\n")

	sb.WriteString("IMPORTANT:\n")
	sb.WriteString("- Ground every statement in the input; do not invent facts about named companies.\n")
	sb.WriteString("- Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n\n")

	sb.WriteString("Input:\n\"\"\"\n")
	sb.WriteString(inputText)
	sb.WriteString("\n\"\"\"\n")

	return sb.String()
}

// GoalsSchema asks for product goals and search keywords derived from an idea.
func GoalsSchema() ExtractionSchema {
	return ExtractionSchema{
		Name: "ProductGoals",
		Description: `You are a product strategist. Turn a raw product idea into a short list of
concrete, measurable product goals and the keywords a market researcher would search for.`,
		Fields: []SchemaField{
			{Name: "goals", Type: "[\"string\"]", Description: "3-6 product goals, one sentence each", Required: true},
			{Name: "keywords", Type: "[\"string\"]", Description: "3-8 market search keywords", Required: true},
		},
	}
}

// MarketAnalysisSchema asks for a competitive landscape.
func MarketAnalysisSchema() ExtractionSchema {
	return ExtractionSchema{
		Name: "MarketAnalysis",
		Description: `You are a market analyst. Given a product idea, its sector and goals, describe the
competitive landscape and where the idea can win.`,
		Fields: []SchemaField{
			{Name: "summary", Description: "Two to four sentence market summary", Required: true},
			{Name: "competitors", Type: "[{\"name\": \"string\", \"description\": \"string\", \"positioning\": \"string\"}]", Description: "2-6 existing products or companies", Required: true},
			{Name: "opportunities", Type: "[\"string\"]", Description: "Gaps the idea can exploit", Required: true},
			{Name: "risks", Type: "[\"string\"]", Description: "Main market or execution risks", Required: false},
		},
	}
}

// OutreachSchema asks for launch outreach messages for several audiences.
func OutreachSchema() ExtractionSchema {
	return ExtractionSchema{
		Name: "OutreachMessages",
		Description: `You are a launch marketer. Draft short outreach emails announcing the product
to each audience. Keep each body under 180 words and end with a clear call to action.`,
		Fields: []SchemaField{
			{Name: "messages", Type: "[{\"audience\": \"string\", \"subject\": \"string\", \"body\": \"string\"}]", Description: "One message each for early adopters, investors and partners", Required: true},
		},
	}
}
