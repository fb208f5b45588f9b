package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows the algorithm to change later.
const (
	DomainEvent      = "dirsync/event/v1"
	DomainCorrection = "dirsync/correction/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the identity of an event from (item, kind, version).
// A redelivered event hashes to the same id.
func EventID(ev Event) (string, error) {
	data, err := MarshalCanonical(map[string]any{
		"item_id": ev.ItemID,
		"kind":    string(ev.Kind),
		"version": ev.Version,
	})
	if err != nil {
		return "", fmt.Errorf("event id: %w", err)
	}
	return hashWithDomain(DomainEvent, data), nil
}

// CorrectionHash fingerprints a correction. Equal corrections hash equally
// regardless of Unicode normalization form.
func CorrectionHash(c ItemCorrection) (string, error) {
	entries := make([]any, 0, len(c.Corrections))
	for _, mc := range c.Corrections {
		entries = append(entries, map[string]any{
			"field":  mc.Field,
			"op":     string(mc.Op),
			"values": valuesToAny(mc.NewValues),
		})
	}
	data, err := MarshalCanonical(entries)
	if err != nil {
		return "", fmt.Errorf("correction hash: %w", err)
	}
	return hashWithDomain(DomainCorrection, data), nil
}

func valuesToAny(vals []MetadataValue) []any {
	out := make([]any, 0, len(vals))
	for _, v := range vals {
		out = append(out, map[string]any{
			"authority": v.Authority,
			"value":     v.Value,
		})
	}
	return out
}
