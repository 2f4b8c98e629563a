// Package dedupe memoizes tool results by canonical arguments within a TTL.
//
// Canonicalization produces a deterministic textual form of a tool argument
// record: object keys are sorted recursively, numeric values are normalized
// to a minimal representation, and nulls standing for absent fields are
// dropped. The canonical form feeds an xxhash fingerprint used as the cache
// and loop-detection key.
package dedupe

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Canonicalize renders args in canonical form. The result is stable across
// map iteration order and numeric representation differences (2, 2.0 and
// json.Number("2") all render as "2"). Canonicalize is idempotent over the
// JSON round-trip of its own output.
func Canonicalize(args map[string]any) string {
	var sb strings.Builder
	writeValue(&sb, args)
	return sb.String()
}

// Fingerprint returns the cache key for a (tool, args) pair.
func Fingerprint(toolName string, args map[string]any) string {
	h := xxhash.New()
	_, _ = h.WriteString(toolName)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(Canonicalize(args))
	return fmt.Sprintf("%016x", h.Sum64())
}

// FingerprintOutput hashes a tool output for no-op detection.
func FingerprintOutput(output string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(output))
}

func writeValue(sb *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case map[string]any:
		writeObject(sb, val)
	case []any:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeValue(sb, item)
		}
		sb.WriteByte(']')
	case string:
		b, _ := json.Marshal(val)
		sb.Write(b)
	case bool:
		sb.WriteString(strconv.FormatBool(val))
	case json.Number:
		writeNumber(sb, val.String())
	case float64:
		sb.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case float32:
		sb.WriteString(strconv.FormatFloat(float64(val), 'g', -1, 64))
	case int:
		sb.WriteString(strconv.Itoa(val))
	case int64:
		sb.WriteString(strconv.FormatInt(val, 10))
	case uint64:
		sb.WriteString(strconv.FormatUint(val, 10))
	default:
		// Uncommon caller-supplied types: fall back to their JSON form.
		b, err := json.Marshal(val)
		if err != nil {
			sb.WriteString(fmt.Sprintf("%q", fmt.Sprint(val)))
			return
		}
		sb.Write(b)
	}
}

func writeObject(sb *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v == nil {
			// Null values represent absence.
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		sb.Write(kb)
		sb.WriteByte(':')
		writeValue(sb, m[k])
	}
	sb.WriteByte('}')
}

// writeNumber normalizes a textual number: integral floats lose their
// fraction, exponents collapse.
func writeNumber(sb *strings.Builder, s string) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		return
	}
	sb.WriteString(s)
}
