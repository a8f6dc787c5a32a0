package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"
)

// IRValue is the sealed family of values a fragment payload or a change set
// may carry: IRNull, IRString, IRInt, IRBool, IRArray and IRObject.
// There is no float member; positions and counts are integers and payloads
// must hash identically on every client.
type IRValue interface {
	irValue()
}

// IRNull is an explicit null. In a change set it clears the field.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString is a string value.
type IRString string

func (IRString) irValue() {}

// IRInt is an integer value. Always int64.
type IRInt int64

func (IRInt) irValue() {}

// IRBool is a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRArray is an ordered list of values.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject maps field names to values. Iterate with SortedKeys for a stable order.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// Clone returns a deep copy of the object.
func (obj IRObject) Clone() IRObject {
	if obj == nil {
		return nil
	}
	out := make(IRObject, len(obj))
	for k, v := range obj {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v IRValue) IRValue {
	switch val := v.(type) {
	case IRObject:
		return val.Clone()
	case IRArray:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			arr[i] = cloneValue(elem)
		}
		return arr
	default:
		return v
	}
}

// GetString returns the string stored under key, if the field is an IRString.
func (obj IRObject) GetString(key string) (string, bool) {
	s, ok := obj[key].(IRString)
	return string(s), ok
}

// GetInt returns the integer stored under key, if the field is an IRInt.
func (obj IRObject) GetInt(key string) (int64, bool) {
	n, ok := obj[key].(IRInt)
	return int64(n), ok
}

// IsNull reports whether key is present and explicitly null.
func (obj IRObject) IsNull(key string) bool {
	_, ok := obj[key].(IRNull)
	return ok
}

// SortedKeys returns the keys ordered by UTF-16 code units (RFC 8785).
// Plain string comparison orders by UTF-8 bytes and disagrees for
// characters outside the BMP.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// MarshalJSON writes the object with sorted keys. Not canonical: use
// MarshalCanonical when the bytes feed a hash.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for arrays of IR values.
func (arr IRArray) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := MarshalIRValue(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalIRValue encodes a single value as JSON.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case IRNull:
		return []byte("null"), nil
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRBool:
		return json.Marshal(bool(val))
	case IRArray:
		return val.MarshalJSON()
	case IRObject:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}

// UnmarshalJSON implements json.Unmarshaler. Floats are rejected.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	v, err := decodeIRValue(data)
	if err != nil {
		return err
	}
	o, ok := v.(IRObject)
	if !ok {
		return fmt.Errorf("expected JSON object, got %T", v)
	}
	*obj = o
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. Floats are rejected.
func (arr *IRArray) UnmarshalJSON(data []byte) error {
	v, err := decodeIRValue(data)
	if err != nil {
		return err
	}
	a, ok := v.(IRArray)
	if !ok {
		return fmt.Errorf("expected JSON array, got %T", v)
	}
	*arr = a
	return nil
}

func decodeIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromGo(raw)
}

// FromGo converts decoded JSON / YAML values into IR values.
// Accepts nil, bool, string, json.Number, the Go integer kinds, []any and
// map[string]any. Floats are only accepted when they hold an integral value,
// which is what YAML decoders hand back for plain numbers.
func FromGo(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case uint64:
		return IRInt(int64(val)), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are not allowed in payloads: %s", val)
		}
		return IRInt(n), nil
	case float64:
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("floats are not allowed in payloads: %v", val)
		}
		return IRInt(int64(val)), nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = conv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported payload type: %T", v)
	}
}

// ObjectFromGo is FromGo restricted to objects.
func ObjectFromGo(m map[string]any) (IRObject, error) {
	if m == nil {
		return IRObject{}, nil
	}
	v, err := FromGo(m)
	if err != nil {
		return nil, err
	}
	return v.(IRObject), nil
}

// ToGo converts an IR value back to plain Go values (for YAML/JSON output
// and assertions).
func ToGo(v IRValue) any {
	switch val := v.(type) {
	case IRNull:
		return nil
	case IRString:
		return string(val)
	case IRInt:
		return int64(val)
	case IRBool:
		return bool(val)
	case IRArray:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case IRObject:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	default:
		return nil
	}
}
