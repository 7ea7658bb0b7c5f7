// Package canonical produces byte-stable JSON for hashing and signing.
//
// Output is only ever used as digest/signature input. Client facing JSON keeps
// its natural field order and goes through encoding/json directly.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

const DigestPrefix = "sha256:"

// Canonicalize encodes value with object keys sorted lexicographically, arrays
// in original order, compact separators and no HTML escaping.
func Canonicalize(value any) (string, error) {
	raw, err := Marshal(value)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Marshal is Canonicalize returning bytes.
func Marshal(value any) ([]byte, error) {
	normalized, err := normalize(value)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeValue(&buf, normalized); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Digest returns "sha256:<hex>" over the canonical encoding of value.
func Digest(value any) (string, error) {
	raw, err := Marshal(value)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return DigestPrefix + hex.EncodeToString(sum[:]), nil
}

// normalize round-trips value through encoding/json so structs, typed maps and
// custom marshalers collapse into map[string]any / []any / json.Number.
func normalize(value any) (any, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return nil, fmt.Errorf("canonical: encode value: %w", err)
	}
	dec := json.NewDecoder(&buf)
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("canonical: decode value: %w", err)
	}
	return out, nil
}

func writeValue(buf *bytes.Buffer, value any) error {
	switch typed := value.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if typed {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(typed.String())
	case string:
		return writeString(buf, typed)
	case []any:
		buf.WriteByte('[')
		for i, item := range typed {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, key := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeValue(buf, typed[key]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonical: unsupported value type %T", value)
	}
	return nil
}

func writeString(buf *bytes.Buffer, value string) error {
	var scratch bytes.Buffer
	enc := json.NewEncoder(&scratch)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return fmt.Errorf("canonical: encode string: %w", err)
	}
	buf.Write(bytes.TrimRight(scratch.Bytes(), "\n"))
	return nil
}
