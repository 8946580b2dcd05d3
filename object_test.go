package transformz

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func TestObject(t *testing.T) {
	t.Run("Keeps Insertion Order", func(t *testing.T) {
		o := ObjectOf("b", 1, "a", 2)
		o.Set("c", 3)
		o.Set("b", 10)

		if diff := cmp.Diff([]string{"b", "a", "c"}, o.Keys()); diff != "" {
			t.Errorf("keys mismatch (-want +got):\n%s", diff)
		}
		if v, _ := o.Get("b"); v != 10 {
			t.Errorf("expected 10, got %v", v)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		o := ObjectOf("a", 1, "b", 2)
		o.Delete("a")
		o.Delete("zzz")
		if diff := cmp.Diff([]string{"b"}, o.Keys()); diff != "" {
			t.Errorf("keys mismatch (-want +got):\n%s", diff)
		}
		if o.Len() != 1 {
			t.Errorf("expected 1, got %d", o.Len())
		}
	})

	t.Run("Nil Object", func(t *testing.T) {
		var o *Object
		if _, ok := o.Get("a"); ok {
			t.Error("expected nil object to have no keys")
		}
		if o.Len() != 0 || o.Keys() != nil || o.Map() != nil || o.Clone() != nil {
			t.Error("expected nil accessors")
		}
	})

	t.Run("ObjectOf Panics On Odd Pairs", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		ObjectOf("a")
	})

	t.Run("Map Converts Nested Objects", func(t *testing.T) {
		o := ObjectOf("inner", ObjectOf("x", 1), "list", []any{ObjectOf("y", 2), Missing})
		want := map[string]any{
			"inner": map[string]any{"x": 1},
			"list":  []any{map[string]any{"y": 2}, nil},
		}
		if diff := cmp.Diff(want, o.Map()); diff != "" {
			t.Errorf("map mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Clone Is Deep", func(t *testing.T) {
		o := ObjectOf("inner", ObjectOf("x", 1), "tags", []any{"a"})
		c := o.Clone()
		inner, _ := c.Get("inner")
		inner.(*Object).Set("x", 99)
		tags, _ := c.Get("tags")
		tags.([]any)[0] = "changed"

		orig, _ := o.Get("inner")
		if v, _ := orig.(*Object).Get("x"); v != 1 {
			t.Errorf("expected original to keep 1, got %v", v)
		}
		origTags, _ := o.Get("tags")
		if origTags.([]any)[0] != "a" {
			t.Errorf("expected original tags untouched, got %v", origTags)
		}
	})
}

func TestObjectJSON(t *testing.T) {
	t.Run("Marshal Keeps Order", func(t *testing.T) {
		o := ObjectOf("zeta", 1, "alpha", ObjectOf("m", "x", "b", nil))
		data, err := json.Marshal(o)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := `{"zeta":1,"alpha":{"m":"x","b":null}}`
		if string(data) != want {
			t.Errorf("expected %s, got %s", want, data)
		}
	})

	t.Run("Unmarshal Keeps Order", func(t *testing.T) {
		var o Object
		if err := json.Unmarshal([]byte(`{"z":1,"a":{"y":true,"b":[1,"x"]}}`), &o); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff([]string{"z", "a"}, o.Keys()); diff != "" {
			t.Errorf("keys mismatch (-want +got):\n%s", diff)
		}
		inner, _ := o.Get("a")
		if diff := cmp.Diff([]string{"y", "b"}, inner.(*Object).Keys()); diff != "" {
			t.Errorf("inner keys mismatch (-want +got):\n%s", diff)
		}
		b, _ := inner.(*Object).Get("b")
		if diff := cmp.Diff([]any{float64(1), "x"}, b); diff != "" {
			t.Errorf("array mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Unmarshal Rejects Non-Object", func(t *testing.T) {
		var o Object
		err := o.UnmarshalJSON([]byte(`[1,2]`))
		if !errors.Is(err, ErrParse) {
			t.Errorf("expected ErrParse, got %v", err)
		}
	})

	t.Run("DecodeOrderedJSON", func(t *testing.T) {
		v, err := DecodeOrderedJSON([]byte(`[{"b":1,"a":2}, "s", null]`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		arr := v.([]any)
		if len(arr) != 3 {
			t.Fatalf("expected 3 elements, got %d", len(arr))
		}
		if diff := cmp.Diff([]string{"b", "a"}, arr[0].(*Object).Keys()); diff != "" {
			t.Errorf("keys mismatch (-want +got):\n%s", diff)
		}
		if arr[2] != nil {
			t.Errorf("expected nil, got %v", arr[2])
		}
	})

	t.Run("DecodeOrderedJSON Errors", func(t *testing.T) {
		for _, input := range []string{`{"a":`, `{"a":1} {"b":2}`, ``, `{"a" 1}`} {
			if _, err := DecodeOrderedJSON([]byte(input)); !errors.Is(err, ErrParse) {
				t.Errorf("input %q: expected ErrParse, got %v", input, err)
			}
		}
	})
}

func TestObjectYAML(t *testing.T) {
	o := ObjectOf("zeta", 1, "alpha", []any{"x"})
	data, err := yaml.Marshal(o)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "zeta: 1\nalpha:\n    - x\n"
	if string(data) != want {
		t.Errorf("expected %q, got %q", want, data)
	}
}
