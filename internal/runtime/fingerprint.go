package runtime

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/graft/pkg/domain"
)

// Fingerprint derives the deterministic dedup key for an intent. Two
// submissions with the same type, tenant, session and parameters must hash
// identically regardless of map iteration order, so parameters are
// serialized with recursively sorted keys. Metadata is excluded: it is not
// semantically relevant to the operation.
func Fingerprint(in domain.Intent) string {
	var b strings.Builder
	b.WriteString(in.Type)
	b.WriteByte(0)
	b.WriteString(in.TenantID)
	b.WriteByte(0)
	b.WriteString(in.SessionID)
	b.WriteByte(0)
	writeCanonical(&b, in.Parameters)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// writeCanonical emits a stable textual form of a JSON-ish value.
func writeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			// Keys are JSON-encoded like values; a raw key containing ':'
			// or ',' would collide with the structural delimiters.
			key, _ := json.Marshal(k)
			b.Write(key)
			b.WriteByte(':')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	case nil:
		b.WriteString("null")
	default:
		// Scalars: JSON encoding is already canonical.
		if data, err := json.Marshal(val); err == nil {
			b.Write(data)
		} else {
			fmt.Fprintf(b, "%v", val)
		}
	}
}
