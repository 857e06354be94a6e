// Package validate checks instance payloads against schema rulesets.
//
// A schema payload carries "shapes": one node shape object or a list of
// them. Each shape lists property constraints:
//
//	{
//	  "path": "schema:familyName",
//	  "datatype": "xsd:string",
//	  "pattern": "^[A-Z].*$",
//	  "minCount": 1,
//	  "maxCount": 1,
//	  "in": ["a", "b"],
//	  "or": [{"datatype": "xsd:string"}, {"datatype": "xsd:anyURI"}]
//	}
//
// Only that subset is understood. Properties are matched against payload
// keys by local name, the text after the last ':', '/' or '#', so
// "schema:familyName", "http://schema.org/familyName" and "familyName" all
// address the same field.
//
// Compile turns the shapes into a CUE struct (value constraints: datatype,
// pattern, in) plus cardinality rules (minCount, maxCount) checked directly.
// Compiled rulesets are cached by the content hash of the schema payload,
// so a schema edit can never be served a stale ruleset.
package validate
