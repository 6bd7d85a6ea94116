// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

/*
Package payload provides Value, an opaque structured value used for DAG run
parameters and task status content.

Value is a tagged union of JSON-like data: null, boolean, number, string,
array and map with string keys. It's (de)serialized to and from JSON, compared
structurally and can be inspected through typed accessors. The tracker never
interprets payloads on its own, except the status policy which looks for
failure markers in task content.
*/
package payload

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind enumerates types of values stored in Value.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Map
)

// String serialize Kind.
func (k Kind) String() string {
	return [...]string{
		"null",
		"bool",
		"number",
		"string",
		"array",
		"map",
	}[k]
}

// Value is an immutable, JSON-like value. Zero value represents null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	m    map[string]Value
}

// NullValue returns null Value.
func NullValue() Value { return Value{} }

// BoolValue wraps a boolean.
func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

// NumberValue wraps a number.
func NumberValue(n float64) Value { return Value{kind: Number, n: n} }

// StringValue wraps a string.
func StringValue(s string) Value { return Value{kind: String, s: s} }

// ArrayValue creates array Value from given elements. Elements are copied.
func ArrayValue(elems ...Value) Value {
	arr := make([]Value, len(elems))
	copy(arr, elems)
	return Value{kind: Array, arr: arr}
}

// MapValue creates map Value from given map. The map is copied.
func MapValue(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: Map, m: cp}
}

// FromAny converts generic Go value, like the ones produced by decoding JSON
// into any, into Value. Supported types are nil, bool, all integer and float
// types, string, []any, map[string]any and Value itself. For other types
// non-nil error is returned.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		return t, nil
	case bool:
		return BoolValue(t), nil
	case string:
		return StringValue(t), nil
	case float64:
		return NumberValue(t), nil
	case float32:
		return NumberValue(float64(t)), nil
	case int:
		return NumberValue(float64(t)), nil
	case int32:
		return NumberValue(float64(t)), nil
	case int64:
		return NumberValue(float64(t)), nil
	case uint:
		return NumberValue(float64(t)), nil
	case uint32:
		return NumberValue(float64(t)), nil
	case uint64:
		return NumberValue(float64(t)), nil
	case []any:
		arr := make([]Value, 0, len(t))
		for idx, elem := range t {
			v, err := FromAny(elem)
			if err != nil {
				return Value{}, fmt.Errorf("array element %d: %w", idx, err)
			}
			arr = append(arr, v)
		}
		return Value{kind: Array, arr: arr}, nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for key, elem := range t {
			v, err := FromAny(elem)
			if err != nil {
				return Value{}, fmt.Errorf("map key %q: %w", key, err)
			}
			m[key] = v
		}
		return Value{kind: Map, m: m}, nil
	}
	return Value{}, fmt.Errorf("unsupported payload type %T", x)
}

// MustFromAny is like FromAny, but panics on unsupported types. It's meant for
// literals in tests and examples.
func MustFromAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}

// Any converts Value back into generic Go value (nil, bool, float64, string,
// []any or map[string]any).
func (v Value) Any() any {
	switch v.kind {
	case Bool:
		return v.b
	case Number:
		return v.n
	case String:
		return v.s
	case Array:
		arr := make([]any, len(v.arr))
		for idx, elem := range v.arr {
			arr[idx] = elem.Any()
		}
		return arr
	case Map:
		m := make(map[string]any, len(v.m))
		for key, elem := range v.m {
			m[key] = elem.Any()
		}
		return m
	}
	return nil
}

// Kind returns kind of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull checks if the value is null.
func (v Value) IsNull() bool { return v.kind == Null }

// AsBool returns boolean and true, if the value is a boolean.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == Bool }

// AsNumber returns number and true, if the value is a number.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == Number }

// AsString returns string and true, if the value is a string.
func (v Value) AsString() (string, bool) { return v.s, v.kind == String }

// Len returns number of elements for arrays and maps, length in bytes for
// strings and 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.arr)
	case Map:
		return len(v.m)
	case String:
		return len(v.s)
	}
	return 0
}

// Elems returns a copy of array elements. For non-array values nil is
// returned.
func (v Value) Elems() []Value {
	if v.kind != Array {
		return nil
	}
	arr := make([]Value, len(v.arr))
	copy(arr, v.arr)
	return arr
}

// Keys returns sorted map keys. For non-map values nil is returned.
func (v Value) Keys() []string {
	if v.kind != Map {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for key := range v.m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Get returns map entry for given key. Second return value is false if the
// value is not a map or the key does not exist.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Map {
		return Value{}, false
	}
	elem, ok := v.m[key]
	return elem, ok
}

// IsEmpty reports whether the value carries no information: null, false, zero,
// empty string, empty array or empty map.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case Null:
		return true
	case Bool:
		return !v.b
	case Number:
		return v.n == 0
	}
	return v.Len() == 0
}

// Equal compares two values structurally. Maps are compared regardless of key
// order.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case Null:
		return true
	case Bool:
		return v.b == other.b
	case Number:
		return v.n == other.n
	case String:
		return v.s == other.s
	case Array:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for idx := range v.arr {
			if !v.arr[idx].Equal(other.arr[idx]) {
				return false
			}
		}
		return true
	case Map:
		if len(v.m) != len(other.m) {
			return false
		}
		for key, elem := range v.m {
			otherElem, ok := other.m[key]
			if !ok || !elem.Equal(otherElem) {
				return false
			}
		}
		return true
	}
	return false
}

// String returns compact, human readable representation of the value. It's
// not a JSON serialization, use MarshalJSON for that.
func (v Value) String() string {
	var sb strings.Builder
	v.writeTo(&sb)
	return sb.String()
}

func (v Value) writeTo(sb *strings.Builder) {
	switch v.kind {
	case Null:
		sb.WriteString("null")
	case Bool:
		sb.WriteString(strconv.FormatBool(v.b))
	case Number:
		sb.WriteString(formatNumber(v.n))
	case String:
		sb.WriteString(strconv.Quote(v.s))
	case Array:
		sb.WriteByte('[')
		for idx, elem := range v.arr {
			if idx > 0 {
				sb.WriteByte(',')
			}
			elem.writeTo(sb)
		}
		sb.WriteByte(']')
	case Map:
		sb.WriteByte('{')
		for idx, key := range v.Keys() {
			if idx > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(key))
			sb.WriteByte(':')
			v.m[key].writeTo(sb)
		}
		sb.WriteByte('}')
	}
}

func formatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}
