package journal

import (
	"encoding/json"
	"testing"
)

func TestFieldsPreserveOrder(t *testing.T) {
	fields := Fields{}
	fields.Set("zulu", "1")
	fields.Set("alpha", "2")
	fields.Set("mike", "3")

	data, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal fields: %v", err)
	}
	if string(data) != `{"zulu":"1","alpha":"2","mike":"3"}` {
		t.Fatalf("unexpected encoding: %s", data)
	}

	var decoded Fields
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal fields: %v", err)
	}
	if len(decoded) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(decoded))
	}
	for i, key := range []string{"zulu", "alpha", "mike"} {
		if decoded[i].Key != key {
			t.Fatalf("expected key %q at %d, got %q", key, i, decoded[i].Key)
		}
	}
}

func TestFieldsSetReplacesInPlace(t *testing.T) {
	fields := Fields{}
	fields.Set("a", "1")
	fields.Set("b", "2")
	fields.Set("a", "3")

	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}
	if fields[0].Key != "a" || fields[0].Value != "3" {
		t.Fatalf("expected replaced value at original position, got %+v", fields[0])
	}
}

func TestFieldsToleratesNonStringValues(t *testing.T) {
	// A newer writer might emit raw numerics; older readers keep the textual form.
	var fields Fields
	if err := json.Unmarshal([]byte(`{"health":42,"name":"boss"}`), &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	health, ok := fields.Get("health")
	if !ok || health != "42" {
		t.Fatalf("expected textual 42, got %q (present=%v)", health, ok)
	}
}

func TestFieldsNumericHelpers(t *testing.T) {
	fields := Fields{}
	fields.SetInt("delta", -500)
	fields.SetFloat("x", 12.5)

	delta, err := fields.GetInt("delta")
	if err != nil || delta != -500 {
		t.Fatalf("get int: %d, %v", delta, err)
	}
	x, err := fields.GetFloat("x")
	if err != nil || x != 12.5 {
		t.Fatalf("get float: %f, %v", x, err)
	}
	missing, err := fields.GetInt("absent")
	if err != nil || missing != 0 {
		t.Fatalf("expected zero default for absent key, got %d, %v", missing, err)
	}
	fields.Set("delta", "not-a-number")
	if _, err := fields.GetInt("delta"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFieldsRejectsNonObject(t *testing.T) {
	var fields Fields
	if err := json.Unmarshal([]byte(`[1,2]`), &fields); err == nil {
		t.Fatal("expected error for non-object payload")
	}
}
