package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nexus/internal/doc"
)

const personSchema = `{
  "@context": {"schema": "http://schema.org/"},
  "shapes": [{
    "@id": "nsg:PersonShape",
    "@type": "sh:NodeShape",
    "property": [
      {"path": "schema:familyName", "datatype": "xsd:string", "minCount": "1", "maxCount": 1},
      {"path": "schema:givenName", "datatype": "xsd:string", "pattern": "^[A-Z][a-z]+$"},
      {"path": "schema:height", "datatype": "xsd:float", "maxCount": 1},
      {"path": "schema:birthYear", "datatype": "xsd:integer"},
      {"path": "schema:gender", "in": ["male", "female", "other"]},
      {"path": "schema:sameAs", "or": [{"datatype": "xsd:anyURI"}, {"datatype": "xsd:boolean"}]}
    ]
  }]
}`

func mustObject(t *testing.T, s string) doc.Object {
	t.Helper()
	obj, err := doc.ParseObject([]byte(s))
	require.NoError(t, err)
	return obj
}

func TestValidateAcceptsConformingPayload(t *testing.T) {
	v := New(nil)
	schema := mustObject(t, personSchema)

	payloads := []string{
		`{"familyName": "Einstein"}`,
		`{"schema:familyName": "Einstein", "givenName": "Albert", "height": 1.75, "birthYear": 1879}`,
		`{"http://schema.org/familyName": "Einstein", "givenName": ["Albert", "Hans"]}`,
		`{"familyName": "Curie", "gender": "female", "sameAs": true, "unknown": {"a": 1}}`,
		`{"familyName": "Bohr", "height": 2}`,
	}
	for _, p := range payloads {
		assert.NoError(t, v.Validate(schema, mustObject(t, p)), p)
	}
}

func TestValidateRejectsViolations(t *testing.T) {
	v := New(nil)
	schema := mustObject(t, personSchema)

	tests := []struct {
		name    string
		payload string
		field   string
	}{
		{"missing required", `{"givenName": "Albert"}`, "familyName"},
		{"too many", `{"familyName": ["A", "B"]}`, "familyName"},
		{"wrong type", `{"familyName": 42}`, "familyName"},
		{"pattern", `{"familyName": "E", "givenName": "albert"}`, "givenName"},
		{"float for integer", `{"familyName": "E", "birthYear": 18.5}`, "birthYear"},
		{"not in list", `{"familyName": "E", "gender": "robot"}`, "gender"},
		{"no alternative", `{"familyName": "E", "sameAs": 3}`, "sameAs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(schema, mustObject(t, tt.payload))
			require.Error(t, err)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			require.NotEmpty(t, ve.Violations)
			assert.Contains(t, ve.Error(), tt.field)
		})
	}
}

func TestCompileRejectsMalformedShapes(t *testing.T) {
	v := New(nil)

	tests := []struct {
		name   string
		schema string
	}{
		{"shapes scalar", `{"shapes": "nope"}`},
		{"property without path", `{"shapes": {"property": [{"datatype": "xsd:string"}]}}`},
		{"bad minCount", `{"shapes": {"property": [{"path": "a", "minCount": "one"}]}}`},
		{"negative maxCount", `{"shapes": {"property": [{"path": "a", "maxCount": -1}]}}`},
		{"min over max", `{"shapes": {"property": [{"path": "a", "minCount": 2, "maxCount": 1}]}}`},
		{"bad pattern", `{"shapes": {"property": [{"path": "a", "pattern": "("}]}}`},
		{"or without datatype", `{"shapes": {"property": [{"path": "a", "or": [{}]}]}}`},
		{"empty in", `{"shapes": {"property": [{"path": "a", "in": []}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.CheckSchema(mustObject(t, tt.schema))
			require.Error(t, err)
			var se *SchemaError
			assert.ErrorAs(t, err, &se)
		})
	}
}

func TestSchemaWithoutShapesAcceptsAnything(t *testing.T) {
	v := New(nil)
	schema := mustObject(t, `{"description": "free form"}`)
	require.NoError(t, v.CheckSchema(schema))
	assert.NoError(t, v.Validate(schema, mustObject(t, `{"x": [1, "a", null]}`)))
}

func TestCompileCachesByContent(t *testing.T) {
	v := New(nil)

	a, err := v.Compile(mustObject(t, personSchema))
	require.NoError(t, err)
	b, err := v.Compile(mustObject(t, personSchema))
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, v.CachedRulesets())

	edited := mustObject(t, `{"shapes": {"property": {"path": "schema:name", "minCount": 1}}}`)
	c, err := v.Compile(edited)
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash, c.Hash)
	assert.Equal(t, 2, v.CachedRulesets())

	require.Len(t, c.Properties, 1)
	assert.Equal(t, "name", c.Properties[0].Name)
	assert.Equal(t, 1, c.Properties[0].MinCount)
}

func TestLocalName(t *testing.T) {
	assert.Equal(t, "familyName", LocalName("schema:familyName"))
	assert.Equal(t, "familyName", LocalName("http://schema.org/familyName"))
	assert.Equal(t, "Person", LocalName("http://example.org/ns#Person"))
	assert.Equal(t, "plain", LocalName("plain"))
	assert.Equal(t, "trailing:", LocalName("trailing:"))
}

func TestValidateReportsOneViolationPerField(t *testing.T) {
	v := New(nil)
	schema := mustObject(t, `{
  "shapes": {
    "property": [
      {"path": "schema:givenName", "datatype": "xsd:string", "minCount": 1},
      {"path": "schema:email", "datatype": "xsd:string", "pattern": "^[a-z]+@[a-z]+\\.[a-z]+$"},
      {"path": "schema:sameAs", "or": [{"datatype": "xsd:anyURI"}, {"datatype": "xsd:boolean"}]}
    ]
  }
}`)

	tests := []struct {
		name    string
		payload string
		want    []string
	}{
		{"bad email", `{"givenName": "B", "email": "nope"}`, []string{"email: "}},
		{"wrong type", `{"givenName": 5}`, []string{"givenName: "}},
		{"bad list element", `{"givenName": "B", "email": ["a@b.org", "nope"]}`, []string{"email: value 1: "}},
		{"no alternative", `{"givenName": "B", "sameAs": 3}`, []string{"sameAs: value 3 matches none"}},
		{"two fields", `{"email": "nope"}`, []string{"email: ", "givenName: expected at least 1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ve *ValidationError
			require.ErrorAs(t, v.Validate(schema, mustObject(t, tt.payload)), &ve)
			require.Len(t, ve.Violations, len(tt.want), ve.Violations)
			for i, prefix := range tt.want {
				assert.True(t, strings.HasPrefix(ve.Violations[i], prefix), ve.Violations[i])
			}
		})
	}
}

func TestValidateCountsBeforeTypes(t *testing.T) {
	v := New(nil)
	schema := mustObject(t, personSchema)

	var ve *ValidationError
	require.ErrorAs(t, v.Validate(schema, mustObject(t, `{"familyName": [1, 2]}`)), &ve)
	assert.Equal(t, []string{"familyName: expected at most 1 value(s), found 2"}, ve.Violations)
	assert.NoError(t, v.Validate(schema, mustObject(t, `{"familyName": ["Einstein"]}`)))
}
