package testutil

import (
	"testing"

	"github.com/roach88/nexus/internal/doc"
)

// PersonSchema is a schema payload whose shape requires a string
// familyName and constrains a few optional fields.
const PersonSchema = `{
  "@context": {"schema": "http://schema.org/", "xsd": "http://www.w3.org/2001/XMLSchema#"},
  "@type": "owl:Ontology",
  "shapes": [{
    "@id": "this:PersonShape",
    "@type": "sh:NodeShape",
    "targetClass": "schema:Person",
    "property": [
      {"path": "schema:familyName", "datatype": "xsd:string", "minCount": "1", "maxCount": 1},
      {"path": "schema:givenName", "datatype": "xsd:string"},
      {"path": "schema:height", "datatype": "xsd:float", "maxCount": 1},
      {"path": "schema:sameAs", "datatype": "xsd:anyURI"}
    ]
  }]
}`

// Einstein conforms to PersonSchema.
const Einstein = `{"@context": {"schema": "http://schema.org/"}, "@type": "schema:Person", "familyName": "Einstein", "givenName": "Albert"}`

// MustObject parses a JSON object literal or fails the test.
func MustObject(t testing.TB, s string) doc.Object {
	t.Helper()
	obj, err := doc.ParseObject([]byte(s))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return obj
}
