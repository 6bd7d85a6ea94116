// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package payload

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
)

// MarshalJSON serializes the value into JSON. Map keys are sorted.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON deserializes JSON into the value. JSON null results in null
// Value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var x any
	if err := json.Unmarshal(data, &x); err != nil {
		return fmt.Errorf("cannot unmarshal payload: %w", err)
	}
	parsed, err := FromAny(x)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Parse parses given JSON document into Value. Empty or whitespace-only input
// is treated as null.
func Parse(data []byte) (Value, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NullValue(), nil
	}
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return Value{}, err
	}
	return v, nil
}

// ParseString is like Parse but for strings.
func ParseString(s string) (Value, error) {
	return Parse([]byte(s))
}

// ToJSONString serializes the value into JSON string. Serialization of Value
// cannot fail for values built by this package, so in the rare case of an
// error "null" is returned.
func (v Value) ToJSONString() string {
	data, err := v.MarshalJSON()
	if err != nil {
		return "null"
	}
	return string(data)
}
