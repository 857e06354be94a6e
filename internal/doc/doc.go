// Package doc defines the document model stored by nexus.
//
// A payload is an opaque JSON tree. The store never interprets it beyond
// what schema validation and search projection need, so the model is a
// small sealed set of value types:
//
//   - Null, String, Number, Bool
//   - Array, Object
//
// Numbers keep their decimal text (json.Number) so that a payload round
// trips through the ledger without float drift.
//
// MarshalCanonical produces RFC 8785 style canonical JSON: object keys in
// UTF-16 code unit order, NFC normalized strings, no HTML escaping. Content
// hashes (PayloadHash, BlobDigest) are computed over that form with a
// domain-separated SHA-256.
package doc
