// Package query defines the structured search filter language.
//
// Filters arrive as JSON:
//
//	{"op": "eq",  "path": "schema:familyName", "value": "Einstein"}
//	{"op": "ne",  "path": "schema:givenName",  "value": "Hans"}
//	{"op": "and", "value": [<filter>, ...]}
//	{"op": "or",  "value": [<filter>, ...]}
//	{"op": "not", "value": <filter>}
//
// Paths are matched by local name against indexed payload fields, the same
// way the schema validator matches shape properties. The reserved paths
// nxv:deprecated, nxv:published and nxv:rev address resource metadata.
//
// Predicate is a sealed interface so backend compilers (see querysql) can
// switch exhaustively over it.
package query
