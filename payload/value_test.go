package payload

import (
	"encoding/json"
	"testing"
)

func TestParseKinds(t *testing.T) {
	inputs := []struct {
		json     string
		expected Kind
	}{
		{"null", Null},
		{"", Null},
		{"  ", Null},
		{"true", Bool},
		{"42", Number},
		{"-3.25", Number},
		{`"hello"`, String},
		{`[1, "two", null]`, Array},
		{`{"ok": true}`, Map},
	}

	for _, input := range inputs {
		v, err := ParseString(input.json)
		if err != nil {
			t.Errorf("Unexpected error while parsing [%s]: %s", input.json,
				err.Error())
			continue
		}
		if v.Kind() != input.expected {
			t.Errorf("Expected kind %s for [%s], got: %s",
				input.expected.String(), input.json, v.Kind().String())
		}
	}
}

func TestParseInvalid(t *testing.T) {
	inputs := []string{"{", "[1,", `{"a": }`, "nope"}
	for _, input := range inputs {
		if _, err := ParseString(input); err == nil {
			t.Errorf("Expected error while parsing [%s], got nil", input)
		}
	}
}

func TestJSONRoundTripKeepsStructure(t *testing.T) {
	const doc = `{"ok":false,"error":"timeout","meta":{"tries":3,"hosts":["a","b"]},"extra":null}`
	v, err := ParseString(doc)
	if err != nil {
		t.Fatalf("Cannot parse document: %s", err.Error())
	}
	data, mErr := json.Marshal(v)
	if mErr != nil {
		t.Fatalf("Cannot marshal value: %s", mErr.Error())
	}
	back, pErr := Parse(data)
	if pErr != nil {
		t.Fatalf("Cannot parse marshaled value: %s", pErr.Error())
	}
	if !v.Equal(back) {
		t.Errorf("Expected %s after round trip, got: %s", v, back)
	}
}

func TestMarshalSortsMapKeys(t *testing.T) {
	v := MapValue(map[string]Value{
		"zeta":  NumberValue(1),
		"alpha": StringValue("x"),
		"mid":   BoolValue(true),
	})
	expected := `{"alpha":"x","mid":true,"zeta":1}`
	if got := v.ToJSONString(); got != expected {
		t.Errorf("Expected %s, got: %s", expected, got)
	}
}

func TestEqual(t *testing.T) {
	a := MustFromAny(map[string]any{"x": []any{1, "a"}, "y": nil})
	b := MustFromAny(map[string]any{"y": nil, "x": []any{1.0, "a"}})
	c := MustFromAny(map[string]any{"y": nil, "x": []any{"a", 1}})

	if !a.Equal(b) {
		t.Errorf("Expected %s to equal %s", a, b)
	}
	if a.Equal(c) {
		t.Errorf("Expected %s to differ from %s", a, c)
	}
	if NullValue().Equal(BoolValue(false)) {
		t.Error("Expected null to differ from false")
	}
}

func TestAccessors(t *testing.T) {
	v := MustFromAny(map[string]any{
		"ok":     false,
		"count":  7,
		"error":  "boom",
		"output": []any{"a", "b"},
	})

	ok, isBool := mustGet(t, v, "ok").AsBool()
	if !isBool || ok {
		t.Errorf("Expected ok=false boolean, got: %v (bool=%v)", ok, isBool)
	}
	count, isNum := mustGet(t, v, "count").AsNumber()
	if !isNum || count != 7 {
		t.Errorf("Expected count=7, got: %v", count)
	}
	errMsg, isStr := mustGet(t, v, "error").AsString()
	if !isStr || errMsg != "boom" {
		t.Errorf("Expected error=boom, got: %s", errMsg)
	}
	if n := len(mustGet(t, v, "output").Elems()); n != 2 {
		t.Errorf("Expected 2 output elements, got: %d", n)
	}
	if _, exists := v.Get("missing"); exists {
		t.Error("Expected missing key to not exist")
	}
	if _, exists := StringValue("x").Get("x"); exists {
		t.Error("Expected Get on string value to return false")
	}

	keys := v.Keys()
	expectedKeys := []string{"count", "error", "ok", "output"}
	for idx, key := range expectedKeys {
		if keys[idx] != key {
			t.Errorf("Expected key %s at %d, got: %s", key, idx, keys[idx])
		}
	}
}

func TestIsEmpty(t *testing.T) {
	empties := []Value{
		NullValue(), BoolValue(false), NumberValue(0), StringValue(""),
		ArrayValue(), MapValue(nil),
	}
	for _, v := range empties {
		if !v.IsEmpty() {
			t.Errorf("Expected %s to be empty", v)
		}
	}
	nonEmpties := []Value{
		BoolValue(true), NumberValue(-1), StringValue("x"),
		ArrayValue(NullValue()), MapValue(map[string]Value{"k": NullValue()}),
	}
	for _, v := range nonEmpties {
		if v.IsEmpty() {
			t.Errorf("Expected %s to be non-empty", v)
		}
	}
}

func TestFromAnyUnsupported(t *testing.T) {
	if _, err := FromAny(struct{}{}); err == nil {
		t.Error("Expected error for struct input, got nil")
	}
	if _, err := FromAny(map[string]any{"ch": make(chan int)}); err == nil {
		t.Error("Expected error for nested channel, got nil")
	}
}

func TestValueInsideStruct(t *testing.T) {
	type envelope struct {
		Name    string `json:"name"`
		Content Value  `json:"content"`
	}
	in := envelope{Name: "extract", Content: MustFromAny(map[string]any{"ok": true})}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Cannot marshal envelope: %s", err.Error())
	}
	expected := `{"name":"extract","content":{"ok":true}}`
	if string(data) != expected {
		t.Errorf("Expected %s, got: %s", expected, string(data))
	}

	var out envelope
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Cannot unmarshal envelope: %s", err.Error())
	}
	if !out.Content.Equal(in.Content) {
		t.Errorf("Expected content %s, got: %s", in.Content, out.Content)
	}
}

func mustGet(t *testing.T, v Value, key string) Value {
	t.Helper()
	elem, ok := v.Get(key)
	if !ok {
		t.Fatalf("Expected key %s in %s", key, v)
	}
	return elem
}
