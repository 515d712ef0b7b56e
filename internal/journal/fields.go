package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Field is one key/value pair of a serialized payload. All values are textual,
// including numerics, so persisted payloads tolerate schema evolution.
type Field struct {
	Key   string
	Value string
}

// Fields is the ordered string-keyed textual form of a payload. It is the only
// representation that crosses the persistence edge; fold logic works with the
// typed payload structs instead.
type Fields []Field

// Get returns the value for key and whether it was present.
func (f Fields) Get(key string) (string, bool) {
	for _, field := range f {
		if field.Key == key {
			return field.Value, true
		}
	}
	return "", false
}

// Set replaces the value for key in place, or appends the pair when absent.
func (f *Fields) Set(key, value string) {
	for i, field := range *f {
		if field.Key == key {
			(*f)[i].Value = value
			return
		}
	}
	*f = append(*f, Field{Key: key, Value: value})
}

// GetInt parses the value for key as a base-10 integer, defaulting to 0 when
// the key is absent.
func (f Fields) GetInt(key string) (int64, error) {
	raw, ok := f.Get(key)
	if !ok || raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	return value, nil
}

// GetFloat parses the value for key as a float, defaulting to 0 when absent.
func (f Fields) GetFloat(key string) (float64, error) {
	raw, ok := f.Get(key)
	if !ok || raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	return value, nil
}

// SetInt stores an integer value in textual form.
func (f *Fields) SetInt(key string, value int64) {
	f.Set(key, strconv.FormatInt(value, 10))
}

// SetFloat stores a float value in textual form.
func (f *Fields) SetFloat(key string, value float64) {
	f.Set(key, strconv.FormatFloat(value, 'f', -1, 64))
}

// MarshalJSON encodes the fields as a JSON object preserving insertion order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(field.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the document's key order.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("payload fields: expected JSON object")
	}

	fields := Fields{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("payload fields: expected string key")
		}
		valueTok, err := dec.Token()
		if err != nil {
			return err
		}
		value, ok := valueTok.(string)
		if !ok {
			// Values are textual by contract; re-encode anything else so older
			// readers keep working against newer writers.
			encoded, err := json.Marshal(valueTok)
			if err != nil {
				return err
			}
			value = string(encoded)
		}
		fields = append(fields, Field{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*f = fields
	return nil
}
