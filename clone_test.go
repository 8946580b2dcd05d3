package transformz

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type counter struct{ n int }

func (c *counter) CloneValue() any { return &counter{n: c.n} }

func TestClone(t *testing.T) {
	t.Run("Nested Maps And Slices", func(t *testing.T) {
		orig := map[string]any{
			"list": []any{map[string]any{"k": "v"}},
			"strs": []string{"a"},
			"rows": []map[string]any{{"x": 1}},
		}
		c := Clone(orig).(map[string]any)
		if diff := cmp.Diff(orig, c); diff != "" {
			t.Fatalf("clone mismatch (-want +got):\n%s", diff)
		}

		c["list"].([]any)[0].(map[string]any)["k"] = "changed"
		c["strs"].([]string)[0] = "changed"
		c["rows"].([]map[string]any)[0]["x"] = 2

		if orig["list"].([]any)[0].(map[string]any)["k"] != "v" {
			t.Error("expected nested map to be copied")
		}
		if orig["strs"].([]string)[0] != "a" {
			t.Error("expected string slice to be copied")
		}
		if orig["rows"].([]map[string]any)[0]["x"] != 1 {
			t.Error("expected map slice to be copied")
		}
	})

	t.Run("Cloner", func(t *testing.T) {
		orig := &counter{n: 1}
		c := Clone(orig).(*counter)
		c.n = 5
		if orig.n != 1 {
			t.Errorf("expected 1, got %d", orig.n)
		}
	})

	t.Run("Scalars", func(t *testing.T) {
		for _, v := range []any{nil, "s", 1, 2.5, true} {
			if got := Clone(v); got != v {
				t.Errorf("expected %v, got %v", v, got)
			}
		}
	})
}
