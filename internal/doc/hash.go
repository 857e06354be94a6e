package doc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash domains. The version suffix leaves room for algorithm changes.
const (
	DomainPayload = "nexus/payload/v1"
	DomainRuleset = "nexus/ruleset/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PayloadHash identifies a payload by content. Two payloads that differ
// only in key order or Unicode normalization hash the same.
func PayloadHash(obj Object) (string, error) {
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("payload hash: %w", err)
	}
	return hashWithDomain(DomainPayload, canonical), nil
}

// RulesetHash identifies a compiled validation ruleset by the schema payload
// it was compiled from.
func RulesetHash(obj Object) (string, error) {
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ruleset hash: %w", err)
	}
	return hashWithDomain(DomainRuleset, canonical), nil
}
