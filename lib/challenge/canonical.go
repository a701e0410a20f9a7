package challenge

import (
	"encoding/json"
	"sort"
	"strings"
)

// canonicalize serializes structured data into a deterministic JSON-shaped
// text form. Mapping keys are sorted lexicographically at every level, so two
// semantically equal values always serialize identically no matter how they
// were built. This is what signatures are computed over; it is never parsed
// back.
func canonicalize(v any) string {
	var sb strings.Builder
	writeCanonical(&sb, v)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case []any:
		sb.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, elem)
		}
		sb.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeJSONScalar(sb, k)
			sb.WriteByte(':')
			writeCanonical(sb, val[k])
		}
		sb.WriteByte('}')
	case map[string]string:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeJSONScalar(sb, k)
			sb.WriteByte(':')
			writeJSONScalar(sb, val[k])
		}
		sb.WriteByte('}')
	default:
		writeJSONScalar(sb, val)
	}
}

func writeJSONScalar(sb *strings.Builder, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		// NaN, infinities and other unmarshalable values degrade to null
		// rather than failing the signature computation.
		sb.WriteString("null")
		return
	}
	sb.Write(b)
}
