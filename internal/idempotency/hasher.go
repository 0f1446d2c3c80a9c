package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DedupKey derives the stable deduplication key for a lead on a channel. It
// is sent with every outbound notification so receivers can drop replays.
func DedupKey(leadID, channel string) string {
	return ComputeHash(leadID, channel)
}

// ComputeHash hashes the ordered parts. Parts are separated so that
// ("ab","c") and ("a","bc") differ.
func ComputeHash(parts ...string) string {
	var builder strings.Builder
	for _, part := range parts {
		builder.WriteString(part)
		builder.WriteByte('|')
	}
	sum := sha256.Sum256([]byte(builder.String()))
	return hex.EncodeToString(sum[:])
}
