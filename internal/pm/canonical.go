package pm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// EncodeCommand produces the canonical JSON form of a command.
//
// Canonical form:
//  1. Object keys sorted by UTF-16 code units (RFC 8785)
//  2. No HTML escaping
//  3. Strings are NFC normalized
//  4. Floats always carry a fraction or exponent, so they decode as Float
//  5. Null is written explicitly
func EncodeCommand(c Command) ([]byte, error) {
	obj, err := CommandObject(c)
	if err != nil {
		return nil, err
	}
	return marshalCanonical(obj)
}

// CommandObject returns the JSON object form of a command, with Value leaves.
// MarshalCanonical of the result is EncodeCommand's output.
func CommandObject(c Command) (map[string]any, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	obj := map[string]any{
		"kind": string(c.Kind),
		"id":   c.ModelID,
	}
	switch c.Kind {
	case CommandCreate:
		obj["type"] = c.ModelType
		attrs := make([]any, len(c.Attributes))
		for i, a := range c.Attributes {
			entry := map[string]any{
				"name":  a.Name,
				"value": OrNull(a.Value),
			}
			if a.Qualifier != "" {
				entry["qualifier"] = a.Qualifier
			}
			attrs[i] = entry
		}
		obj["attributes"] = attrs
	case CommandChange:
		obj["property"] = c.Property
		obj["old"] = OrNull(c.Old)
		obj["new"] = OrNull(c.New)
	case CommandDelete:
		if c.ModelType != "" {
			obj["type"] = c.ModelType
		}
	}
	return obj, nil
}

// DecodeCommand parses the canonical JSON form of a command.
func DecodeCommand(data []byte) (Command, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}

	var c Command
	kind, err := stringField(raw, "kind")
	if err != nil {
		return Command{}, err
	}
	c.Kind = CommandKind(kind)
	if c.ModelID, err = stringField(raw, "id"); err != nil {
		return Command{}, err
	}
	if t, ok := raw["type"].(string); ok {
		c.ModelType = t
	}

	switch c.Kind {
	case CommandCreate:
		list, ok := raw["attributes"].([]any)
		if !ok && raw["attributes"] != nil {
			return Command{}, fmt.Errorf("decode command %s: attributes must be an array", c.ModelID)
		}
		c.Attributes = make([]Attribute, 0, len(list))
		for i, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				return Command{}, fmt.Errorf("decode command %s: attributes[%d] must be an object", c.ModelID, i)
			}
			name, err := stringField(entry, "name")
			if err != nil {
				return Command{}, fmt.Errorf("attributes[%d]: %w", i, err)
			}
			val, err := decodeValue(entry["value"])
			if err != nil {
				return Command{}, fmt.Errorf("attributes[%d] %q: %w", i, name, err)
			}
			q, _ := entry["qualifier"].(string)
			c.Attributes = append(c.Attributes, Attribute{Name: name, Value: val, Qualifier: q})
		}
	case CommandChange:
		prop, err := stringField(raw, "property")
		if err != nil {
			return Command{}, err
		}
		c.Property = prop
		if c.Old, err = decodeValue(raw["old"]); err != nil {
			return Command{}, fmt.Errorf("old: %w", err)
		}
		if c.New, err = decodeValue(raw["new"]); err != nil {
			return Command{}, fmt.Errorf("new: %w", err)
		}
	}

	if err := c.Validate(); err != nil {
		return Command{}, err
	}
	return c, nil
}

// stringField extracts a required string field.
func stringField(obj map[string]any, key string) (string, error) {
	v, ok := obj[key]
	if !ok {
		return "", fmt.Errorf("missing field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q must be a string, got %T", key, v)
	}
	return s, nil
}

// decodeValue converts a decoded JSON scalar into a wire value.
// Numbers with a fraction or exponent become Float, all others Int.
func decodeValue(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			f, err := val.Float64()
			if err != nil {
				return nil, fmt.Errorf("invalid float %s: %w", s, err)
			}
			return Float(f), nil
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return Int(n), nil
	default:
		return nil, fmt.Errorf("attribute values must be scalars, got %T", v)
	}
}

// MarshalCanonical writes v as canonical JSON. v may nest map[string]any,
// []any, Value, string, int64 and bool.
func MarshalCanonical(v any) ([]byte, error) {
	return marshalCanonical(v)
}

func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case String:
		return marshalCanonicalString(string(val))
	case string:
		return marshalCanonicalString(val)
	case Int:
		return []byte(strconv.FormatInt(int64(val), 10)), nil
	case Float:
		return marshalCanonicalFloat(float64(val))
	case Bool:
		return []byte(strconv.FormatBool(bool(val))), nil
	case bool:
		return []byte(strconv.FormatBool(val)), nil
	case int64:
		return []byte(strconv.FormatInt(val, 10)), nil
	case int:
		return []byte(strconv.Itoa(val)), nil
	case []any:
		return marshalCanonicalArray(val)
	case map[string]any:
		return marshalCanonicalObject(val)
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

// marshalCanonicalFloat writes the shortest round-tripping representation,
// forcing a fraction so the receiver does not mistake it for an Int.
func marshalCanonicalFloat(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("float %v cannot be encoded", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return []byte(s), nil
}

// marshalCanonicalString produces a canonical JSON string with NFC normalization.
// No HTML escaping; U+2028 and U+2029 are written literally.
func marshalCanonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	result := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return unescapeLineSeparators(result), nil
}

// unescapeLineSeparators converts \u2028 and \u2029 escapes produced by
// encoding/json back to literal characters, leaving \\u2028 (an escaped
// backslash followed by text) untouched.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+5 < len(data) && data[i+1] == 'u' &&
			string(data[i+2:i+5]) == "202" && (data[i+5] == '8' || data[i+5] == '9') {
			backslashes := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				backslashes++
			}
			if backslashes%2 == 0 {
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

func marshalCanonicalArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := marshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalCanonicalObject(obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalCanonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := marshalCanonical(obj[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// compareKeysRFC8785 orders keys by UTF-16 code units.
// Go's string comparison uses UTF-8 bytes, which differs for astral characters.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}
