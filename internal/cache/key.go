package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Domain prefixes keep lookup and component keys apart even when their
// material coincides.
const (
	DomainLookup    = "lineage/lookup/v1"
	DomainComponent = "lineage/component/v1"
)

// Key hashes parts under a domain: SHA256(domain + 0x00 + canonical(parts)).
//
// Strings are hashed byte for byte, as the database compares them.
// Maps are written in sorted key order.
func Key(domain string, parts ...any) string {
	var sb strings.Builder
	writeCanonical(&sb, parts)

	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write([]byte(sb.String()))
	return hex.EncodeToString(h.Sum(nil))
}

func writeCanonical(sb *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case string:
		sb.WriteString(strconv.Quote(val))
	case []byte:
		sb.WriteString("b")
		sb.WriteString(strconv.Quote(string(val)))
	case bool:
		sb.WriteString(strconv.FormatBool(val))
	case int:
		sb.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		sb.WriteString(strconv.FormatInt(val, 10))
	case float64:
		sb.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case time.Time:
		sb.WriteString(strconv.Quote(val.UTC().Format(time.RFC3339Nano)))
	case []any:
		sb.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, elem)
		}
		sb.WriteByte(']')
	case []string:
		elems := make([]any, len(val))
		for i, s := range val {
			elems[i] = s
		}
		writeCanonical(sb, elems)
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
			writeCanonical(sb, k)
			sb.WriteByte(':')
			writeCanonical(sb, val[k])
		}
		sb.WriteByte('}')
	case fmt.Stringer:
		writeCanonical(sb, val.String())
	default:
		writeCanonical(sb, fmt.Sprintf("%T:%v", val, val))
	}
}
