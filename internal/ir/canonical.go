package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 style canonical JSON. It is the only
// encoding used for content hashes (snapshot digests, batch keys).
//
// Differences from json.Marshal:
//   - object keys sorted by UTF-16 code units
//   - no HTML escaping
//   - strings NFC normalized
//   - floats rejected
//   - null rejected except as an explicit IRNull inside a change set
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("null is forbidden in canonical JSON")
	case IRNull:
		buf.WriteString("null")
		return nil
	case IRString:
		return writeCanonicalString(buf, string(val))
	case string:
		return writeCanonicalString(buf, val)
	case IRInt:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
		return nil
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
		return nil
	case int:
		buf.WriteString(strconv.Itoa(val))
		return nil
	case IRBool:
		buf.WriteString(strconv.FormatBool(bool(val)))
		return nil
	case bool:
		buf.WriteString(strconv.FormatBool(val))
		return nil
	case IRArray:
		return writeCanonicalArray(buf, val)
	case IRObject:
		return writeCanonicalObject(buf, val)
	case float32, float64:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	case []any, map[string]any:
		conv, err := FromGo(val)
		if err != nil {
			return err
		}
		return writeCanonical(buf, conv)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

func writeCanonicalArray(buf *bytes.Buffer, arr IRArray) error {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonical(buf, elem); err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeCanonicalObject(buf *bytes.Buffer, obj IRObject) error {
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonicalString(buf, k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := writeCanonical(buf, obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// writeCanonicalString escapes only quote, backslash and control characters.
// encoding/json also escapes U+2028 and U+2029, which RFC 8785 leaves literal,
// so those two escapes are undone afterwards.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	out := bytes.TrimSuffix(tmp.Bytes(), []byte("\n"))
	buf.Write(restoreLineSeparators(out))
	return nil
}

// restoreLineSeparators replaces the U+2028 and U+2029 escapes with the literal
// runes, leaving sequences whose backslash is itself escaped (\\u2028) alone.
func restoreLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+5 < len(data) &&
			data[i+1] == 'u' && data[i+2] == '2' && data[i+3] == '0' && data[i+4] == '2' &&
			(data[i+5] == '8' || data[i+5] == '9') {
			// count backslashes already emitted directly before this one
			run := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				run++
			}
			if run%2 == 0 {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}
