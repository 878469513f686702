package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// Metadata limits
const (
	MaxMetadataKeys      = 32
	MaxMetadataKeyLength = 64
)

// ErrUnsupportedMetadataValue is returned for metadata values that are not
// a string, number or boolean
var ErrUnsupportedMetadataValue = errors.New("metadata values must be a string, number or boolean")

// MetadataKind identifies the primitive held by a MetadataValue
type MetadataKind int

const (
	MetadataKindInvalid MetadataKind = iota
	MetadataKindString
	MetadataKindNumber
	MetadataKindBool
)

// MetadataValue is a string, number or boolean
type MetadataValue struct {
	kind MetadataKind
	str  string
	num  float64
	b    bool
}

// StringValue wraps a string
func StringValue(s string) MetadataValue {
	return MetadataValue{kind: MetadataKindString, str: s}
}

// NumberValue wraps a number
func NumberValue(n float64) MetadataValue {
	return MetadataValue{kind: MetadataKindNumber, num: n}
}

// BoolValue wraps a boolean
func BoolValue(b bool) MetadataValue {
	return MetadataValue{kind: MetadataKindBool, b: b}
}

// MetadataValueOf converts a Go primitive into a MetadataValue
func MetadataValueOf(v interface{}) (MetadataValue, error) {
	switch x := v.(type) {
	case string:
		return StringValue(x), nil
	case bool:
		return BoolValue(x), nil
	case float64:
		return NumberValue(x), nil
	case float32:
		return NumberValue(float64(x)), nil
	case int:
		return NumberValue(float64(x)), nil
	case int32:
		return NumberValue(float64(x)), nil
	case int64:
		return NumberValue(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return MetadataValue{}, fmt.Errorf("invalid number %q: %w", x.String(), err)
		}
		return NumberValue(f), nil
	default:
		return MetadataValue{}, ErrUnsupportedMetadataValue
	}
}

// Kind returns the primitive kind
func (v MetadataValue) Kind() MetadataKind {
	return v.kind
}

// Interface returns the wrapped primitive as string, float64 or bool
func (v MetadataValue) Interface() interface{} {
	switch v.kind {
	case MetadataKindString:
		return v.str
	case MetadataKindNumber:
		return v.num
	case MetadataKindBool:
		return v.b
	}
	return nil
}

// String renders the value for display
func (v MetadataValue) String() string {
	switch v.kind {
	case MetadataKindString:
		return v.str
	case MetadataKindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case MetadataKindBool:
		return strconv.FormatBool(v.b)
	}
	return ""
}

// MarshalJSON implements json.Marshaler
func (v MetadataValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON implements json.Unmarshaler
func (v *MetadataValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	parsed, err := MetadataValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Metadata is free-form supplemental context keyed by string
type Metadata map[string]MetadataValue

// Validate checks key count and key lengths
func (m Metadata) Validate() error {
	if len(m) > MaxMetadataKeys {
		return fmt.Errorf("metadata must have at most %d keys", MaxMetadataKeys)
	}
	for k, v := range m {
		if k == "" {
			return errors.New("metadata keys must not be empty")
		}
		if utf8.RuneCountInString(k) > MaxMetadataKeyLength {
			return fmt.Errorf("metadata key %q exceeds %d characters", k, MaxMetadataKeyLength)
		}
		if v.kind == MetadataKindInvalid {
			return fmt.Errorf("metadata key %q: %w", k, ErrUnsupportedMetadataValue)
		}
	}
	return nil
}

// ToMap converts the metadata into plain Go values
func (m Metadata) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v.Interface()
	}
	return out
}

// MetadataFromMap builds Metadata from plain Go values
func MetadataFromMap(src map[string]interface{}) (Metadata, error) {
	out := make(Metadata, len(src))
	for k, raw := range src {
		v, err := MetadataValueOf(raw)
		if err != nil {
			return nil, fmt.Errorf("metadata key %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Value implements driver.Valuer, storing metadata as a JSON object
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSON and JSONB columns
func (m *Metadata) Scan(src interface{}) error {
	var data []byte
	switch s := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		data = s
	case string:
		data = []byte(s)
	default:
		return fmt.Errorf("cannot scan %T into Metadata", src)
	}

	decoded := Metadata{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("failed to decode metadata: %w", err)
	}
	*m = decoded
	return nil
}
