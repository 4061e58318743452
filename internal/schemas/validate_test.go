package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	assert.Equal(t, []string{Goals, MarketAnalysis, Outreach, Report}, Names())
}

func TestValidate_AllSchemasCompile(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			_, err := load(name)
			require.NoError(t, err)
		})
	}
}

func TestValidate_Goals(t *testing.T) {
	valid := `{"goals": ["Reach 500 weekly users", "Halve the time to finish", "Convert 5% of trials"],
		"keywords": ["scheduling", "clinics", "intake"]}`
	assert.NoError(t, Validate(Goals, []byte(valid)))

	tooFew := `{"goals": ["Reach 500 weekly users"], "keywords": ["scheduling", "clinics", "intake"]}`
	err := Validate(Goals, []byte(tooFew))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, Goals, ve.Schema)
	assert.Contains(t, ve.Summary(), "goals")
}

func TestValidate_MarketAnalysis_MissingField(t *testing.T) {
	doc := `{"summary": "A crowded market of expensive suites and spreadsheets.", "competitors": [
		{"name": "A", "description": "a"}, {"name": "B", "description": "b"}]}`
	err := Validate(MarketAnalysis, []byte(doc))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Error(), "opportunities")
}

func TestValidate_Outreach_ShortBody(t *testing.T) {
	doc := `{"messages": [
		{"audience": "a", "subject": "s", "body": "too short"},
		{"audience": "b", "subject": "s", "body": "too short"},
		{"audience": "c", "subject": "s", "body": "too short"}]}`
	var ve *ValidationError
	require.ErrorAs(t, Validate(Outreach, []byte(doc)), &ve)
	assert.Len(t, ve.Errors, 3)
}

func TestValidate_UnknownSchema(t *testing.T) {
	err := Validate("nope", []byte(`{}`))
	var le *SchemaLoadError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, err.Error(), "schema not found")
}

func TestValidate_MalformedDocument(t *testing.T) {
	err := Validate(Report, []byte(`{not json`))
	var le *SchemaLoadError
	assert.True(t, errors.As(err, &le))
}

func TestValidateJSONString(t *testing.T) {
	schema := `{"type": "object", "required": ["name"], "properties": {"name": {"type": "string"}}}`

	assert.NoError(t, ValidateJSONString(schema, `{"name": "x"}`))

	err := ValidateJSONString(schema, `{"name": 1}`)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Errors[0].Field)

	err = ValidateJSONString(`{"type": 5}`, `{}`)
	var le *SchemaLoadError
	assert.ErrorAs(t, err, &le)
}
